package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/specialistvlad/wcctgo/internal/app"
	"github.com/specialistvlad/wcctgo/internal/config"
	"github.com/specialistvlad/wcctgo/internal/hcl"
)

// options carries the persistent flags and the output streams to every
// command.
type options struct {
	configPaths []string
	logLevel    string
	logFormat   string

	stdout io.Writer
	stderr io.Writer

	// started is set once argument validation has passed.
	started bool
}

// Execute runs the command line in args. Usage problems are reported as an
// *ExitError with ExitUsage, every other failure with ExitFailure.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o := &options{stdout: stdout, stderr: stderr}
	root := newRootCommand(o)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return nil
	case !o.started, errors.Is(err, config.ErrInvalid):
		return usageError(err)
	default:
		return failure(err)
	}
}

func newRootCommand(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "wcct",
		Short: "Red-black SOR parity checks and phi^4 coherence runs",
		Long: `wcct compares an array-based red-black SOR Poisson solver with the same
sweep expressed as a computation graph, and simulates a phi^4 lattice field
while tracking its phase coherence xi.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			o.started = true
			return nil
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError(err) })

	pf := root.PersistentFlags()
	pf.StringSliceVarP(&o.configPaths, "config", "c", nil, "HCL configuration files or directories (repeatable).")
	pf.StringVar(&o.logLevel, "log-level", "", "Logging level: debug, info, warn or error.")
	pf.StringVar(&o.logFormat, "log-format", "", "Log output format: text or json.")

	root.AddCommand(
		newServeCommand(o),
		newSolveCommand(o),
		newXiCommand(o),
		newGraphCommand(o),
		newWatchCommand(o),
	)
	return root
}

// newApp builds the application with the persistent flags and the command's
// own overrides.
func (o *options) newApp(cmd *cobra.Command, override func(*config.Model)) (*app.App, error) {
	return app.NewApp(cmd.Context(), o.stderr, &app.Config{
		ConfigPaths: o.configPaths,
		LogLevel:    o.logLevel,
		LogFormat:   o.logFormat,
		Override:    override,
	}, hcl.NewLoader())
}

func (o *options) printJSON(v any) error {
	enc := json.NewEncoder(o.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
