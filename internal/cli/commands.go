package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/specialistvlad/wcctgo/internal/config"
	"github.com/specialistvlad/wcctgo/internal/field"
	"github.com/specialistvlad/wcctgo/internal/server"
	"github.com/specialistvlad/wcctgo/internal/stream"
)

// solverFlags are shared by the commands that run the parity comparison.
type solverFlags struct {
	n         int
	steps     int
	omega     float64
	runner    string
	workers   int
	dtype     string
	epsilon   float64
	artifacts string
}

func (f *solverFlags) register(cmd *cobra.Command) {
	d := config.Default().Solver
	fs := cmd.Flags()
	fs.IntVar(&f.n, "n", d.N, "Grid side length, boundary included.")
	fs.IntVar(&f.steps, "steps", d.Steps, "Number of red-black sweeps.")
	fs.Float64Var(&f.omega, "omega", d.Omega, "Relaxation factor.")
	fs.StringVar(&f.runner, "runner", d.Runner, "Graph runner: interp or gorgonia.")
	fs.IntVar(&f.workers, "workers", d.Workers, "Parallel workers for the reference solver and the interpreter.")
	fs.StringVar(&f.dtype, "dtype", d.DType, "Graph element type: float64 or float32.")
	fs.Float64Var(&f.epsilon, "epsilon", d.Epsilon, "Denominator guard of the relative errors.")
	fs.StringVar(&f.artifacts, "artifacts", config.Default().Artifacts.Dir, "Directory graph artifacts are written to.")
}

func (f *solverFlags) apply(cmd *cobra.Command, m *config.Model) {
	changed := cmd.Flags().Changed
	if changed("n") {
		m.Solver.N = f.n
	}
	if changed("steps") {
		m.Solver.Steps = f.steps
	}
	if changed("omega") {
		m.Solver.Omega = f.omega
	}
	if changed("runner") {
		m.Solver.Runner = f.runner
	}
	if changed("workers") {
		m.Solver.Workers = f.workers
	}
	if changed("dtype") {
		m.Solver.DType = f.dtype
	}
	if changed("epsilon") {
		m.Solver.Epsilon = f.epsilon
	}
	if changed("artifacts") {
		m.Artifacts.Dir = f.artifacts
	}
}

// fieldFlags are shared by the commands that run a field simulation.
type fieldFlags struct {
	n           int
	steps       int
	lambda      float64
	m2          float64
	dt          float64
	seed        uint64
	phaseOffset float64
}

func (f *fieldFlags) register(cmd *cobra.Command) {
	d := config.Default().Field
	fs := cmd.Flags()
	fs.IntVar(&f.n, "n", d.N, "Lattice side length.")
	fs.IntVarP(&f.steps, "steps", "T", d.Steps, "Number of time steps.")
	fs.Float64Var(&f.lambda, "lam", d.Lambda, "Quartic coupling lambda.")
	fs.Float64Var(&f.m2, "m2", d.M2, "Mass term m^2.")
	fs.Float64Var(&f.dt, "dt", d.Dt, "Time step.")
	fs.Uint64Var(&f.seed, "seed", d.Seed, "Seed of the initial field.")
	fs.Float64Var(&f.phaseOffset, "phase-offset", d.PhaseOffset, "Offset added to phi before taking its phase.")
}

func (f *fieldFlags) apply(cmd *cobra.Command, m *config.Model) {
	changed := cmd.Flags().Changed
	if changed("n") {
		m.Field.N = f.n
	}
	if changed("steps") {
		m.Field.Steps = f.steps
	}
	if changed("lam") {
		m.Field.Lambda = f.lambda
	}
	if changed("m2") {
		m.Field.M2 = f.m2
	}
	if changed("dt") {
		m.Field.Dt = f.dt
	}
	if changed("seed") {
		m.Field.Seed = f.seed
	}
	if changed("phase-offset") {
		m.Field.PhaseOffset = f.phaseOffset
	}
}

func newServeCommand(o *options) *cobra.Command {
	var (
		sf        solverFlags
		addr      string
		streaming bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the xi streaming endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.newApp(cmd, func(m *config.Model) {
				sf.apply(cmd, m)
				if cmd.Flags().Changed("addr") {
					m.Server.Addr = addr
				}
				if cmd.Flags().Changed("streaming") {
					m.Server.Streaming = streaming
				}
			})
			if err != nil {
				return err
			}
			return a.Serve(cmd.Context())
		},
	}
	sf.register(cmd)
	d := config.Default().Server
	cmd.Flags().StringVar(&addr, "addr", d.Addr, "Listen address.")
	cmd.Flags().BoolVar(&streaming, "streaming", d.Streaming, "Mount the socket.io xi streaming endpoint.")
	return cmd
}

func newSolveCommand(o *options) *cobra.Command {
	var (
		sf       solverFlags
		history  bool
		plotPath string
	)
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Compare the reference solver with the graph runner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.newApp(cmd, func(m *config.Model) { sf.apply(cmd, m) })
			if err != nil {
				return err
			}
			req := a.SolveRequest()
			req.History = history || plotPath != ""
			m, err := a.Solve(cmd.Context(), req)
			if err != nil {
				return err
			}
			if plotPath != "" {
				if err := writeFile(plotPath, func(f *os.File) error { return a.PlotConvergence(f, m.History) }); err != nil {
					return err
				}
			}
			resp := server.NewSolveResponse(m, a.Model().Solver.Runner)
			if !history {
				resp.History = nil
			}
			return o.printJSON(resp)
		},
	}
	sf.register(cmd)
	cmd.Flags().BoolVar(&history, "history", false, "Include the truth error after every sweep.")
	cmd.Flags().StringVar(&plotPath, "plot", "", "Write a PNG convergence chart to this file.")
	return cmd
}

func newXiCommand(o *options) *cobra.Command {
	var (
		ff       fieldFlags
		series   bool
		plotPath string
	)
	cmd := &cobra.Command{
		Use:   "xi",
		Short: "Simulate the phi^4 field and report its phase coherence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.newApp(cmd, func(m *config.Model) { ff.apply(cmd, m) })
			if err != nil {
				return err
			}
			res, err := a.Xi(cmd.Context(), a.FieldParams(), nil)
			if err != nil {
				return err
			}
			if plotPath != "" {
				if err := writeFile(plotPath, func(f *os.File) error { return a.PlotXi(f, res.Xi) }); err != nil {
					return err
				}
			}
			return o.printJSON(server.NewXiResponse(res, series))
		},
	}
	ff.register(cmd)
	cmd.Flags().BoolVar(&series, "series", false, "Include the whole xi series.")
	cmd.Flags().StringVar(&plotPath, "plot", "", "Write a PNG chart of the series to this file.")
	return cmd
}

func newGraphCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export or replay the relaxation graph artifact",
	}

	var exportFlags solverFlags
	export := &cobra.Command{
		Use:   "export",
		Short: "Write the graph for --omega to the artifact directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.newApp(cmd, func(m *config.Model) { exportFlags.apply(cmd, m) })
			if err != nil {
				return err
			}
			path, err := a.ExportGraph(cmd.Context(), a.Model().Solver.Omega)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(o.stdout, path)
			return err
		},
	}
	exportFlags.register(export)

	var replayFlags solverFlags
	replay := &cobra.Command{
		Use:   "replay PATH",
		Short: "Compare a persisted graph against the reference solver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(cmd, func(m *config.Model) { replayFlags.apply(cmd, m) })
			if err != nil {
				return err
			}
			s := a.Model().Solver
			m, err := a.ReplayGraph(cmd.Context(), args[0], s.N, s.Steps)
			if err != nil {
				return err
			}
			return o.printJSON(server.NewSolveResponse(m, s.Runner))
		},
	}
	replayFlags.register(replay)

	cmd.AddCommand(export, replay)
	return cmd
}

func newWatchCommand(o *options) *cobra.Command {
	var (
		ff      fieldFlags
		url     string
		timeout time.Duration
		quiet   bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream a field run from a serving instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.newApp(cmd, func(m *config.Model) { ff.apply(cmd, m) })
			if err != nil {
				return err
			}
			done, err := a.Watch(cmd.Context(), stream.WatchOptions{URL: url, Timeout: timeout}, a.FieldParams(), func(s stream.Step) {
				if !quiet {
					fmt.Fprintf(o.stdout, "t=%d xi=%.6f\n", s.T, s.Xi)
				}
			})
			if err != nil {
				return err
			}
			return o.printJSON(server.NewXiResponse(&field.Result{Final: done.XiFinal, Mean: done.XiMean, Steps: done.Steps}, false))
		},
	}
	ff.register(cmd)
	cmd.Flags().StringVar(&url, "url", "http://localhost:8000/socket.io/", "Socket.io endpoint of a running server.")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Give up after this long.")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the summary.")
	return cmd
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
