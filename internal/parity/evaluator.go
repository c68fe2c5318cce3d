package parity

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/wcctgo/internal/ctxlog"
	"github.com/specialistvlad/wcctgo/internal/grid"
	"github.com/specialistvlad/wcctgo/internal/opgraph"
	"github.com/specialistvlad/wcctgo/internal/rbsor"
	"github.com/specialistvlad/wcctgo/internal/runtime"
	"github.com/specialistvlad/wcctgo/internal/sweep"
)

// GraphSink persists a built graph and reports where it went.
type GraphSink interface {
	SaveGraph(ctx context.Context, g *opgraph.Graph) (string, error)
}

// Request selects one solve.
type Request struct {
	N       int
	Steps   int
	Omega   float64
	History bool
}

// Evaluator builds the test problem and the relaxation graph for each
// request and compares the reference solver with the graph runner.
type Evaluator struct {
	runner     runtime.Runner
	runnerName string
	sink       GraphSink
	eps        float64
	workers    int
	dtype      opgraph.DType
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithEpsilon overrides the relative-error guard.
func WithEpsilon(eps float64) Option {
	return func(e *Evaluator) { e.eps = eps }
}

// WithGraphSink persists every built graph through sink.
func WithGraphSink(sink GraphSink) Option {
	return func(e *Evaluator) { e.sink = sink }
}

// WithWorkers sets the reference solver's row-band parallelism.
func WithWorkers(n int) Option {
	return func(e *Evaluator) { e.workers = n }
}

// WithDType selects the graph element type.
func WithDType(d opgraph.DType) Option {
	return func(e *Evaluator) { e.dtype = d }
}

// WithRunnerName labels the graph evaluator in logs.
func WithRunnerName(name string) Option {
	return func(e *Evaluator) { e.runnerName = name }
}

// New creates an Evaluator that executes graphs with runner.
func New(runner runtime.Runner, opts ...Option) *Evaluator {
	e := &Evaluator{runner: runner, runnerName: "graph", eps: DefaultEpsilon, workers: 1, dtype: opgraph.Float64}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Solve runs one comparison. Grids without interior cells are rejected with
// grid.ErrGridTooSmall, since there is nothing to compare.
func (e *Evaluator) Solve(ctx context.Context, req Request) (*Metrics, error) {
	if req.N < grid.MinInteriorSize {
		return nil, fmt.Errorf("parity: N=%d: %w", req.N, grid.ErrGridTooSmall)
	}
	if req.Steps < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSteps, req.Steps)
	}
	logger := ctxlog.FromContext(ctx)
	start := time.Now()

	g, err := opgraph.BuildRBSOR(req.Omega, opgraph.WithDType(e.dtype))
	if err != nil {
		return nil, fmt.Errorf("parity: building graph: %w", err)
	}
	var path string
	if e.sink != nil {
		if path, err = e.sink.SaveGraph(ctx, g); err != nil {
			return nil, fmt.Errorf("parity: persisting graph: %w", err)
		}
	}

	m, err := e.run(ctx, g, req.N, req.Steps, req.Omega, req.History)
	if err != nil {
		return nil, err
	}
	m.GraphPath = path
	logger.Info("Solve finished.", "n", req.N, "steps", req.Steps, "omega", req.Omega, "parity", m.Parity, "truth_error", m.TruthError, "duration", time.Since(start))
	return m, nil
}

// Replay compares a previously built graph against the reference solver,
// reading omega back from the graph.
func (e *Evaluator) Replay(ctx context.Context, g *opgraph.Graph, n, steps int) (*Metrics, error) {
	if n < grid.MinInteriorSize {
		return nil, fmt.Errorf("parity: N=%d: %w", n, grid.ErrGridTooSmall)
	}
	if steps < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSteps, steps)
	}
	omega, err := g.Omega()
	if err != nil {
		return nil, fmt.Errorf("parity: replay: %w", err)
	}
	m, err := e.run(ctx, g, n, steps, omega, false)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Info("Replay finished.", "graph", g.Name(), "n", n, "steps", steps, "omega", omega, "parity", m.Parity)
	return m, nil
}

func (e *Evaluator) run(ctx context.Context, g *opgraph.Graph, n, steps int, omega float64, history bool) (*Metrics, error) {
	p, err := grid.NewProblem(n)
	if err != nil {
		return nil, fmt.Errorf("parity: %w", err)
	}
	solver := rbsor.New(omega, rbsor.WithWorkers(e.workers))
	var ref sweep.Evaluator = solver
	var rec *historyRecorder
	if history {
		rec = &historyRecorder{Solver: solver, truth: p.Truth, eps: e.eps}
		ref = rec
	}
	cand := runtime.NewGraphEvaluator(g, e.runner, e.runnerName)

	m, err := Compare(ctx, p, ref, cand, steps, e.eps)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		m.History = rec.history
	}
	return m, nil
}

// historyRecorder records the truth error after every reference sweep.
type historyRecorder struct {
	*rbsor.Solver
	truth   *grid.Grid
	eps     float64
	history []float64
}

func (h *historyRecorder) Evaluate(ctx context.Context, in sweep.Inputs, steps int) (*grid.Grid, error) {
	h.history = make([]float64, 0, steps)
	return h.EvaluateObserved(ctx, in, steps, func(_ int, u *grid.Grid) {
		h.history = append(h.history, RelativeError(u.Data, h.truth.Data, h.eps))
	})
}
