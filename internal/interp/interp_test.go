package interp

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/wcctgo/internal/grid"
	"github.com/specialistvlad/wcctgo/internal/opgraph"
	"github.com/specialistvlad/wcctgo/internal/rbsor"
	"github.com/specialistvlad/wcctgo/internal/tensor"
)

func problemInputs(t *testing.T, n int) (*grid.Problem, map[string]*tensor.Tensor) {
	t.Helper()
	p, err := grid.NewProblem(n)
	require.NoError(t, err)
	return p, map[string]*tensor.Tensor{
		opgraph.InputU: tensor.FromGrid(p.U0),
		opgraph.InputF: tensor.FromGrid(p.F),
		opgraph.InputR: tensor.FromGrid(p.R),
		opgraph.InputB: tensor.FromGrid(p.B),
	}
}

func TestExecute_MatchesReferenceSweep(t *testing.T) {
	const omega = 1.9
	g, err := opgraph.BuildRBSOR(omega)
	require.NoError(t, err)
	p, inputs := problemInputs(t, 16)
	ref := p.U0.Clone()
	solver := rbsor.New(omega)

	in := New()
	for step := 1; step <= 5; step++ {
		outputs, err := in.Execute(context.Background(), g, inputs)
		require.NoError(t, err)
		out, err := outputs[opgraph.OutputName].ToGrid()
		require.NoError(t, err)

		require.NoError(t, solver.Sweep(ref, p.F, p.R, p.B))
		assert.Empty(t, cmp.Diff(ref.Data, out.Data), "step %d", step)

		inputs[opgraph.InputU] = outputs[opgraph.OutputName]
	}
}

func TestExecute_WorkerCountDoesNotChangeResult(t *testing.T) {
	g, err := opgraph.BuildRBSOR(1.7)
	require.NoError(t, err)
	_, inputs := problemInputs(t, 24)

	single, err := New(WithWorkers(1)).Execute(context.Background(), g, inputs)
	require.NoError(t, err)
	for _, workers := range []int{2, 4, 16} {
		many, err := New(WithWorkers(workers)).Execute(context.Background(), g, inputs)
		require.NoError(t, err)
		assert.True(t, single[opgraph.OutputName].Equal(many[opgraph.OutputName]), "workers=%d", workers)
	}
}

func TestExecute_DoesNotMutateInputs(t *testing.T) {
	g, err := opgraph.BuildRBSOR(1.9)
	require.NoError(t, err)
	_, inputs := problemInputs(t, 8)
	before := map[string]*tensor.Tensor{}
	for k, v := range inputs {
		before[k] = v.Clone()
	}

	outputs, err := New().Execute(context.Background(), g, inputs)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	for k, v := range inputs {
		assert.True(t, before[k].Equal(v), "input %s changed", k)
	}
	assert.NotSame(t, inputs[opgraph.InputU], outputs[opgraph.OutputName])
}

func TestExecute_InputValidation(t *testing.T) {
	g, err := opgraph.BuildRBSOR(1.9)
	require.NoError(t, err)

	t.Run("missing", func(t *testing.T) {
		_, inputs := problemInputs(t, 8)
		delete(inputs, opgraph.InputR)
		_, err := New().Execute(context.Background(), g, inputs)
		assert.ErrorIs(t, err, ErrMissingInput)
	})

	t.Run("unknown", func(t *testing.T) {
		_, inputs := problemInputs(t, 8)
		inputs["X"] = tensor.Scalar(1)
		_, err := New().Execute(context.Background(), g, inputs)
		assert.ErrorIs(t, err, ErrUnknownInput)
	})

	t.Run("inconsistent sizes", func(t *testing.T) {
		_, inputs := problemInputs(t, 8)
		other, err := grid.New(9)
		require.NoError(t, err)
		inputs[opgraph.InputF] = tensor.FromGrid(other)
		_, err = New().Execute(context.Background(), g, inputs)
		assert.ErrorIs(t, err, ErrShape)
	})

	t.Run("channel count", func(t *testing.T) {
		_, inputs := problemInputs(t, 4)
		u, err := tensor.New([]int{1, 2, 4, 4}, nil)
		require.NoError(t, err)
		inputs[opgraph.InputU] = u
		_, err = New().Execute(context.Background(), g, inputs)
		assert.ErrorIs(t, err, ErrShape)
	})

	t.Run("rank", func(t *testing.T) {
		_, inputs := problemInputs(t, 4)
		inputs[opgraph.InputB] = tensor.Scalar(0)
		_, err := New().Execute(context.Background(), g, inputs)
		assert.ErrorIs(t, err, ErrShape)
	})
}

func TestExecute_ReportsOnlyFailingKernels(t *testing.T) {
	g, err := opgraph.BuildRBSOR(1.9)
	require.NoError(t, err)
	_, inputs := problemInputs(t, 8)

	boom := errors.New("boom")
	in := New(WithWorkers(3))
	in.kernels = defaultRegistry()
	in.kernels[opgraph.OpSub] = func(opgraph.Node, []*tensor.Tensor, precision) (*tensor.Tensor, error) {
		return nil, boom
	}

	_, err = in.Execute(context.Background(), g, inputs)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "execution failed for D1")
	assert.NotContains(t, err.Error(), "not reached")
	assert.NotContains(t, err.Error(), "D2")
}

func TestExecute_Canceled(t *testing.T) {
	g, err := opgraph.BuildRBSOR(1.9)
	require.NoError(t, err)
	_, inputs := problemInputs(t, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = New().Execute(ctx, g, inputs)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecute_Float32(t *testing.T) {
	g64, err := opgraph.BuildRBSOR(1.9)
	require.NoError(t, err)
	g32, err := opgraph.BuildRBSOR(1.9, opgraph.WithDType(opgraph.Float32))
	require.NoError(t, err)
	_, inputs := problemInputs(t, 16)

	out64, err := New().Execute(context.Background(), g64, inputs)
	require.NoError(t, err)
	out32, err := New().Execute(context.Background(), g32, inputs)
	require.NoError(t, err)

	d32 := out32[opgraph.OutputName].Data()
	for _, v := range d32 {
		require.Equal(t, v, float64(float32(v)), "float32 graph must yield float32 values")
	}
	assert.Empty(t, cmp.Diff(out64[opgraph.OutputName].Data(), d32, cmpopts.EquateApprox(0, 1e-6)))
}

func TestConvKernel_ZeroPadding(t *testing.T) {
	x, err := tensor.New([]int{1, 1, 3, 3}, []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	})
	require.NoError(t, err)
	k, err := tensor.New([]int{1, 1, 3, 3}, opgraph.NeighborKernel[:])
	require.NoError(t, err)
	n := opgraph.Node{Name: "S", Op: opgraph.OpConv, Pads: []int{1, 1, 1, 1}}

	out, err := convKernel(n, []*tensor.Tensor{x, k}, float64Precision)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 3, 3}, out.Shape())
	assert.Equal(t, []float64{
		2 + 4, 1 + 3 + 5, 2 + 6,
		1 + 5 + 7, 2 + 4 + 6 + 8, 3 + 5 + 9,
		4 + 8, 5 + 7 + 9, 6 + 8,
	}, out.Data())

	n.Pads = []int{0, 0, 0, 0}
	out, err = convKernel(n, []*tensor.Tensor{x, k}, float64Precision)
	require.NoError(t, err)
	assert.Equal(t, []float64{20}, out.Data())
}

func TestElementwise_Broadcast(t *testing.T) {
	a, err := tensor.New([]int{2, 2}, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	mul := elementwise(func(x, y float64) float64 { return x * y })
	n := opgraph.Node{Name: "m", Op: opgraph.OpMul}

	out, err := mul(n, []*tensor.Tensor{a, tensor.Scalar(0.5)}, float64Precision)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1, 1.5, 2}, out.Data())

	out, err = mul(n, []*tensor.Tensor{tensor.Scalar(2), a}, float64Precision)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4, 6, 8}, out.Data())

	b, err := tensor.New([]int{4}, nil)
	require.NoError(t, err)
	_, err = mul(n, []*tensor.Tensor{a, b}, float64Precision)
	assert.ErrorIs(t, err, ErrShape)

	third := float32Precision(1.0 / 3.0)
	assert.Equal(t, float64(float32(1.0/3.0)), third)
	assert.False(t, math.IsNaN(third))
}
