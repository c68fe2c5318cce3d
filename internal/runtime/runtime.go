// Package runtime connects computation graphs to the sweep contract. A
// Runner executes a graph once; GraphEvaluator turns repeated executions of
// the relaxation graph into a sweep.Evaluator.
package runtime

import (
	"context"
	"fmt"

	"github.com/specialistvlad/wcctgo/internal/ctxlog"
	"github.com/specialistvlad/wcctgo/internal/grid"
	"github.com/specialistvlad/wcctgo/internal/opgraph"
	"github.com/specialistvlad/wcctgo/internal/sweep"
	"github.com/specialistvlad/wcctgo/internal/tensor"
)

// Runner executes a graph against named input tensors. Implementations must
// be deterministic and must not modify the inputs.
type Runner interface {
	Execute(ctx context.Context, g *opgraph.Graph, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, g *opgraph.Graph, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error)

// Execute implements Runner.
func (f RunnerFunc) Execute(ctx context.Context, g *opgraph.Graph, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	return f(ctx, g, inputs)
}

// GraphEvaluator replays the relaxation loop through a Runner: one Execute
// per sweep, with the previous output fed back as U.
type GraphEvaluator struct {
	graph  *opgraph.Graph
	runner Runner
	name   string
}

// NewGraphEvaluator wraps g and runner. name labels the evaluator in logs and
// metrics; it defaults to "graph".
func NewGraphEvaluator(g *opgraph.Graph, runner Runner, name string) *GraphEvaluator {
	if name == "" {
		name = "graph"
	}
	return &GraphEvaluator{graph: g, runner: runner, name: name}
}

// Name implements sweep.Evaluator.
func (e *GraphEvaluator) Name() string { return e.name }

// Graph returns the graph being executed.
func (e *GraphEvaluator) Graph() *opgraph.Graph { return e.graph }

// Evaluate implements sweep.Evaluator. Runner errors are returned wrapped
// with the failing step; nothing is retried.
func (e *GraphEvaluator) Evaluate(ctx context.Context, in sweep.Inputs, steps int) (*grid.Grid, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if steps < 0 {
		return nil, fmt.Errorf("%w: got %d", sweep.ErrNegativeSteps, steps)
	}
	logger := ctxlog.FromContext(ctx)

	inputs := map[string]*tensor.Tensor{
		opgraph.InputU: tensor.FromGrid(in.U),
		opgraph.InputF: tensor.FromGrid(in.F),
		opgraph.InputR: tensor.FromGrid(in.R),
		opgraph.InputB: tensor.FromGrid(in.B),
	}
	for step := 1; step <= steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("runtime: canceled after %d of %d sweeps: %w", step-1, steps, err)
		}
		outputs, err := e.runner.Execute(ctx, e.graph, inputs)
		if err != nil {
			return nil, fmt.Errorf("runtime: sweep %d of %d: %w", step, steps, err)
		}
		out, ok := outputs[opgraph.OutputName]
		if !ok || out == nil {
			return nil, fmt.Errorf("runtime: sweep %d of %d: runner returned no %q output", step, steps, opgraph.OutputName)
		}
		inputs[opgraph.InputU] = out
	}

	u, err := inputs[opgraph.InputU].ToGrid()
	if err != nil {
		return nil, fmt.Errorf("runtime: graph output: %w", err)
	}
	if u.N != in.U.N {
		return nil, fmt.Errorf("runtime: graph output is %dx%d, input was %dx%d: %w", u.N, u.N, in.U.N, in.U.N, grid.ErrSizeMismatch)
	}
	logger.Debug("Graph sweeps finished.", "evaluator", e.name, "graph", e.graph.Name(), "n", u.N, "steps", steps)
	return u, nil
}

var _ sweep.Evaluator = (*GraphEvaluator)(nil)
