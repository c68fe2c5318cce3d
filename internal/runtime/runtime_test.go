package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/wcctgo/internal/grid"
	"github.com/specialistvlad/wcctgo/internal/interp"
	"github.com/specialistvlad/wcctgo/internal/opgraph"
	"github.com/specialistvlad/wcctgo/internal/rbsor"
	"github.com/specialistvlad/wcctgo/internal/runtime"
	"github.com/specialistvlad/wcctgo/internal/sweep"
	"github.com/specialistvlad/wcctgo/internal/tensor"
)

var _ runtime.Runner = (*interp.Interpreter)(nil)

func setup(t *testing.T, n int, omega float64) (sweep.Inputs, *opgraph.Graph) {
	t.Helper()
	p, err := grid.NewProblem(n)
	require.NoError(t, err)
	g, err := opgraph.BuildRBSOR(omega)
	require.NoError(t, err)
	return sweep.FromProblem(p), g
}

func TestGraphEvaluator_MatchesReference(t *testing.T) {
	in, g := setup(t, 32, 1.9)
	ev := runtime.NewGraphEvaluator(g, interp.New(), "")
	assert.Equal(t, "graph", ev.Name())

	for _, steps := range []int{0, 1, 10, 60} {
		got, err := ev.Evaluate(context.Background(), in, steps)
		require.NoError(t, err)
		want, err := rbsor.New(1.9).Evaluate(context.Background(), in, steps)
		require.NoError(t, err)
		assert.Equal(t, want.Data, got.Data, "steps=%d", steps)
	}
	for _, v := range in.U.Data {
		require.Zero(t, v)
	}
}

func TestGraphEvaluator_DegenerateGrid(t *testing.T) {
	in, g := setup(t, 2, 1.9)
	for k := range in.U.Data {
		in.U.Data[k] = float64(k + 1)
	}

	got, err := runtime.NewGraphEvaluator(g, interp.New(), "interp").Evaluate(context.Background(), in, 25)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, got.Data)
}

func TestGraphEvaluator_PropagatesRunnerError(t *testing.T) {
	in, g := setup(t, 8, 1.9)
	engine := errors.New("engine exploded")
	calls := 0
	runner := runtime.RunnerFunc(func(ctx context.Context, g *opgraph.Graph, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
		calls++
		if calls == 3 {
			return nil, engine
		}
		return interp.New().Execute(ctx, g, inputs)
	})

	_, err := runtime.NewGraphEvaluator(g, runner, "flaky").Evaluate(context.Background(), in, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine)
	assert.ErrorContains(t, err, "sweep 3 of 10")
	assert.Equal(t, 3, calls, "failed sweeps are not retried")
}

func TestGraphEvaluator_MissingOutput(t *testing.T) {
	in, g := setup(t, 8, 1.9)
	runner := runtime.RunnerFunc(func(context.Context, *opgraph.Graph, map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
		return map[string]*tensor.Tensor{}, nil
	})

	_, err := runtime.NewGraphEvaluator(g, runner, "").Evaluate(context.Background(), in, 1)
	assert.ErrorContains(t, err, `no "Out" output`)
}

func TestGraphEvaluator_InputErrors(t *testing.T) {
	in, g := setup(t, 8, 1.9)
	ev := runtime.NewGraphEvaluator(g, interp.New(), "")

	_, err := ev.Evaluate(context.Background(), in, -2)
	assert.ErrorIs(t, err, sweep.ErrNegativeSteps)

	in.F = nil
	_, err = ev.Evaluate(context.Background(), in, 1)
	assert.ErrorIs(t, err, sweep.ErrMissingInput)
}
