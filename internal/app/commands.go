package app

import (
	"context"
	"fmt"
	"io"

	"github.com/specialistvlad/wcctgo/internal/artifact"
	"github.com/specialistvlad/wcctgo/internal/field"
	"github.com/specialistvlad/wcctgo/internal/opgraph"
	"github.com/specialistvlad/wcctgo/internal/parity"
	"github.com/specialistvlad/wcctgo/internal/plot"
	"github.com/specialistvlad/wcctgo/internal/stream"
)

// SolveRequest returns the configured solve parameters.
func (a *App) SolveRequest() parity.Request {
	s := a.model.Solver
	return parity.Request{N: s.N, Steps: s.Steps, Omega: s.Omega}
}

// FieldParams returns the configured simulation parameters.
func (a *App) FieldParams() field.Params {
	f := a.model.Field
	return field.Params{N: f.N, Steps: f.Steps, Lambda: f.Lambda, M2: f.M2, Dt: f.Dt, Seed: f.Seed}
}

// Solve runs one parity comparison and persists its graph.
func (a *App) Solve(ctx context.Context, req parity.Request) (*parity.Metrics, error) {
	ctx = a.Context(ctx)
	ev, runner, err := a.Evaluator()
	if err != nil {
		return nil, err
	}
	a.logger.Info("🚀 Starting parity solve.", "runner", runner, "n", req.N, "steps", req.Steps, "omega", req.Omega)
	m, err := ev.Solve(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("solve failed: %w", err)
	}
	return m, nil
}

// Xi runs one field simulation; onStep, when set, sees every step.
func (a *App) Xi(ctx context.Context, p field.Params, onStep field.Observer) (*field.Result, error) {
	ctx = a.Context(ctx)
	opts := []field.Option{field.WithPhaseOffset(a.model.Field.PhaseOffset)}
	if onStep != nil {
		opts = append(opts, field.WithObserver(onStep))
	}
	res, err := field.Run(ctx, p, opts...)
	if err != nil {
		return nil, fmt.Errorf("xi run failed: %w", err)
	}
	a.logger.Info("🏁 Field run finished.", "steps", res.Steps, "xi_final", res.Final, "xi_mean", res.Mean)
	return res, nil
}

// ExportGraph builds the relaxation graph for omega and writes it to the
// artifact store.
func (a *App) ExportGraph(ctx context.Context, omega float64) (string, error) {
	ctx = a.Context(ctx)
	if a.store == nil {
		return "", fmt.Errorf("graph export failed: %w", artifact.ErrNoDir)
	}
	g, err := opgraph.BuildRBSOR(omega, opgraph.WithDType(opgraph.DType(a.model.Solver.DType)))
	if err != nil {
		return "", fmt.Errorf("graph export failed: %w", err)
	}
	path, err := a.store.SaveGraph(ctx, g)
	if err != nil {
		return "", fmt.Errorf("graph export failed: %w", err)
	}
	a.logger.Info("Graph exported.", "path", path, "omega", omega)
	return path, nil
}

// ReplayGraph loads a persisted graph and compares it against the reference
// solver, with omega read back from the graph.
func (a *App) ReplayGraph(ctx context.Context, path string, n, steps int) (*parity.Metrics, error) {
	ctx = a.Context(ctx)
	g, err := artifact.ReadGraph(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("graph replay failed: %w", err)
	}
	ev, _, err := a.Evaluator()
	if err != nil {
		return nil, err
	}
	m, err := ev.Replay(ctx, g, n, steps)
	if err != nil {
		return nil, fmt.Errorf("graph replay failed: %w", err)
	}
	m.GraphPath = path
	return m, nil
}

// Watch streams one remote field run from a serving instance.
func (a *App) Watch(ctx context.Context, opts stream.WatchOptions, p field.Params, onStep func(stream.Step)) (*stream.Done, error) {
	ctx = a.Context(ctx)
	done, err := stream.Watch(ctx, opts, stream.ParamsFrom(p, a.model.Field.PhaseOffset), onStep)
	if err != nil {
		return nil, fmt.Errorf("watch failed: %w", err)
	}
	return done, nil
}

// PlotXi writes a PNG chart of an xi series.
func (a *App) PlotXi(w io.Writer, xi []float64) error {
	return plot.Xi(w, xi)
}

// PlotConvergence writes a PNG chart of a truth-error history.
func (a *App) PlotConvergence(w io.Writer, hist []float64) error {
	return plot.Convergence(w, hist)
}
