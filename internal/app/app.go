package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/specialistvlad/wcctgo/internal/artifact"
	"github.com/specialistvlad/wcctgo/internal/config"
	"github.com/specialistvlad/wcctgo/internal/ctxlog"
	"github.com/specialistvlad/wcctgo/internal/gorgonnx"
	"github.com/specialistvlad/wcctgo/internal/interp"
	"github.com/specialistvlad/wcctgo/internal/opgraph"
	"github.com/specialistvlad/wcctgo/internal/parity"
	"github.com/specialistvlad/wcctgo/internal/runtime"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	model  config.Model
	store  *artifact.Store
}

// NewApp is the constructor for the main application. It loads the
// configuration through loader, applies cfg on top of it and returns an App
// with its own isolated logger writing to outW.
func NewApp(ctx context.Context, outW io.Writer, cfg *Config, loader config.Loader) (*App, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	defaults := config.Default()
	bootLevel := pick(cfg.LogLevel, defaults.Logging.Level)
	bootFormat := pick(cfg.LogFormat, defaults.Logging.Format)
	logger := newLogger(bootLevel, bootFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)

	model := &defaults
	if loader != nil {
		loaded, err := loader.Load(ctx, defaults, cfg.ConfigPaths...)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		model = loaded
	}
	if cfg.LogLevel != "" {
		model.Logging.Level = cfg.LogLevel
	}
	if cfg.LogFormat != "" {
		model.Logging.Format = cfg.LogFormat
	}
	if cfg.Override != nil {
		cfg.Override(model)
	}
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if model.Logging.Level != bootLevel || model.Logging.Format != bootFormat {
		logger = newLogger(model.Logging.Level, model.Logging.Format, outW)
	}
	logger.Debug("Configuration loaded.", "paths", cfg.ConfigPaths, "runner", model.Solver.Runner, "artifacts", model.Artifacts.Dir)

	var store *artifact.Store
	if model.Artifacts.Dir == "" {
		logger.Info("Artifact directory not set, graphs will not be persisted.")
	} else {
		s, err := artifact.New(model.Artifacts.Dir)
		if err != nil {
			return nil, err
		}
		store = s
	}

	return &App{
		outW:   outW,
		logger: logger,
		model:  *model,
		store:  store,
	}, nil
}

// Model returns the effective configuration.
func (a *App) Model() config.Model { return a.model }

// Logger returns the application's logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Store returns the artifact store, nil when persistence is disabled.
func (a *App) Store() *artifact.Store { return a.store }

// Context attaches the application's logger to ctx.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// Evaluator builds the parity evaluator for the configured runner and
// returns it together with the runner name.
func (a *App) Evaluator() (*parity.Evaluator, string, error) {
	runner, name, err := newRunner(a.model.Solver)
	if err != nil {
		return nil, "", err
	}
	opts := []parity.Option{
		parity.WithRunnerName(name),
		parity.WithEpsilon(a.model.Solver.Epsilon),
		parity.WithWorkers(a.model.Solver.Workers),
		parity.WithDType(opgraph.DType(a.model.Solver.DType)),
	}
	if a.store != nil {
		opts = append(opts, parity.WithGraphSink(a.store))
	}
	return parity.New(runner, opts...), name, nil
}

func newRunner(s config.Solver) (runtime.Runner, string, error) {
	switch s.Runner {
	case interp.Name:
		return interp.New(interp.WithWorkers(s.Workers)), interp.Name, nil
	case gorgonnx.Name:
		return gorgonnx.New(), gorgonnx.Name, nil
	default:
		return nil, "", fmt.Errorf("%w: solver runner %q", config.ErrInvalid, s.Runner)
	}
}

func pick(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
