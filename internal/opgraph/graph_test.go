package opgraph

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRBSOR(t *testing.T) {
	g, err := BuildRBSOR(1.9)
	require.NoError(t, err)

	assert.Equal(t, RBSORName, g.Name())
	assert.Equal(t, Float64, g.DType())

	var order []string
	for _, n := range g.Nodes() {
		order = append(order, n.Name)
	}
	want := []string{"S1", "D1", "C025", "J1", "E1", "COM", "W1", "WR", "Ur", "S2", "D2", "J2", "E2", "W2", "WB", "Out"}
	assert.Empty(t, cmp.Diff(want, order))

	var inputs []string
	for _, in := range g.Inputs() {
		inputs = append(inputs, in.Name)
	}
	assert.Equal(t, []string{"U", "F", "R", "B"}, inputs)
	require.Len(t, g.Outputs(), 1)
	assert.Equal(t, OutputName, g.Outputs()[0].Name)

	omega, err := g.Omega()
	require.NoError(t, err)
	assert.Equal(t, 1.9, omega)
	quarter, ok := g.Constant(ConstQuarter)
	require.True(t, ok)
	assert.Equal(t, 0.25, quarter)

	kernel := g.Initializers()[0]
	assert.Equal(t, []int{1, 1, 3, 3}, kernel.Shape)
	assert.Equal(t, NeighborKernel[:], kernel.Data)

	// The kernel forces the channel dimension to 1.
	shape, ok := g.ValueShape(OutputName)
	require.True(t, ok)
	assert.Equal(t, []Dim{Sym("b"), Fixed(1), Sym("h"), Sym("w")}, shape)
	shape, ok = g.ValueShape(ConstOmega)
	require.True(t, ok)
	assert.Empty(t, shape)
}

func TestBuildRBSOR_Topology(t *testing.T) {
	g, err := BuildRBSOR(1.5)
	require.NoError(t, err)

	index := map[string]int{}
	for i, n := range g.Nodes() {
		index[n.Name] = i
	}
	// Ur consumes both the input U (not a node) and WR.
	assert.Equal(t, []int{index["WR"]}, g.Dependencies(index["Ur"]))
	assert.ElementsMatch(t, []int{index["J1"], index["J2"]}, g.Dependents(index["C025"]))
	assert.Empty(t, g.Dependencies(index["S1"]))

	order := g.TopoOrder()
	require.Len(t, order, g.NumNodes())
	pos := make([]int, len(order))
	for p, i := range order {
		pos[i] = p
	}
	for i := 0; i < g.NumNodes(); i++ {
		for _, d := range g.Dependencies(i) {
			assert.Less(t, pos[d], pos[i])
		}
	}
}

func TestBuildRBSOR_Unrepresentable(t *testing.T) {
	for _, omega := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := BuildRBSOR(omega)
		assert.ErrorIs(t, err, ErrUnrepresentable, "omega=%v", omega)
	}

	_, err := BuildRBSOR(1e300, WithDType(Float32))
	assert.ErrorIs(t, err, ErrUnrepresentable)

	g, err := BuildRBSOR(1e300)
	require.NoError(t, err)
	assert.Equal(t, Float64, g.DType())

	g, err = BuildRBSOR(1.9, WithDType(Float32), WithName("rb_sor_f32"))
	require.NoError(t, err)
	assert.Equal(t, Float32, g.DType())
	assert.Equal(t, "rb_sor_f32", g.Name())
}

func TestGraph_IsImmutable(t *testing.T) {
	g, err := BuildRBSOR(1.9)
	require.NoError(t, err)

	spec := g.Spec()
	*spec.Nodes[5].Value = 42
	spec.Nodes[0].Inputs[0] = "X"
	spec.Initializers[0].Data[1] = 7

	nodes := g.Nodes()
	nodes[0].Pads[0] = 9

	omega, err := g.Omega()
	require.NoError(t, err)
	assert.Equal(t, 1.9, omega)
	assert.Equal(t, "U", g.Node(0).Inputs[0])
	assert.Equal(t, []int{1, 1, 1, 1}, g.Node(0).Pads)
	assert.Equal(t, 1.0, g.Initializers()[0].Data[1])
}

func TestNew_RoundTripsSpec(t *testing.T) {
	g, err := BuildRBSOR(1.25)
	require.NoError(t, err)

	again, err := New(g.Spec())
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(g.Spec(), again.Spec()))
}

func TestNew_SelfCheck(t *testing.T) {
	base, err := BuildRBSOR(1.9)
	require.NoError(t, err)

	testCases := []struct {
		name    string
		mutate  func(s *Spec)
		wantMsg string
	}{
		{
			name:    "dangling input",
			mutate:  func(s *Spec) { s.Inputs = append(s.Inputs, ValueInfo{Name: "X", Shape: []Dim{Sym("b")}}) },
			wantMsg: `input "X" is dangling`,
		},
		{
			name:    "undefined reference",
			mutate:  func(s *Spec) { s.Nodes[1].Inputs[1] = "G" },
			wantMsg: `reads undefined value "G"`,
		},
		{
			name: "cycle",
			mutate: func(s *Spec) {
				// S1 now reads Ur, which depends on S1.
				s.Nodes[0].Inputs[0] = "Ur"
			},
			wantMsg: "cycle detected",
		},
		{
			name: "self loop",
			mutate: func(s *Spec) {
				s.Nodes[1].Inputs[0] = "D1"
			},
			wantMsg: "cycle detected",
		},
		{
			name:    "wrong arity",
			mutate:  func(s *Spec) { s.Nodes[1].Inputs = []string{"S1"} },
			wantMsg: "takes 2 inputs, got 1",
		},
		{
			name:    "unknown op",
			mutate:  func(s *Spec) { s.Nodes[1].Op = "Div" },
			wantMsg: `unsupported op "Div"`,
		},
		{
			name:    "constant without value",
			mutate:  func(s *Spec) { s.Nodes[2].Value = nil },
			wantMsg: `constant "C025" has no value`,
		},
		{
			name:    "bad pads",
			mutate:  func(s *Spec) { s.Nodes[0].Pads = []int{1, 1} },
			wantMsg: "needs 4 pads",
		},
		{
			name:    "pads that shrink a symbolic dimension",
			mutate:  func(s *Spec) { s.Nodes[0].Pads = []int{0, 0, 0, 0} },
			wantMsg: "do not preserve symbolic dimension",
		},
		{
			name:    "malformed kernel data",
			mutate:  func(s *Spec) { s.Initializers[0].Data = s.Initializers[0].Data[:8] },
			wantMsg: "has 8 values for shape",
		},
		{
			name:    "kernel with wrong rank",
			mutate:  func(s *Spec) { s.Initializers[0].Shape = []int{3, 3}; s.Initializers[0].Data = make([]float64, 9) },
			wantMsg: "kernel must be rank 4",
		},
		{
			name:    "kernel channel mismatch",
			mutate:  func(s *Spec) { s.Initializers[0].Shape = []int{2, 1, 3, 3}; s.Initializers[0].Data = make([]float64, 18) },
			wantMsg: "shape mismatch",
		},
		{
			name:    "output shape mismatch",
			mutate:  func(s *Spec) { s.Outputs[0].Shape = []Dim{Sym("b"), Sym("c"), Sym("h")} },
			wantMsg: `output "Out" declared`,
		},
		{
			name:    "output not produced",
			mutate:  func(s *Spec) { s.Outputs[0].Name = "Nope" },
			wantMsg: `output "Nope" is not produced`,
		},
		{
			name:    "rank mismatch",
			mutate:  func(s *Spec) { s.Inputs[1].Shape = []Dim{Sym("h"), Sym("w")} },
			wantMsg: "rank mismatch",
		},
		{
			name:    "duplicate value",
			mutate:  func(s *Spec) { s.Nodes[1].Output = "S1" },
			wantMsg: `value "S1" is defined more than once`,
		},
		{
			name:    "bad dtype",
			mutate:  func(s *Spec) { s.DType = "int8" },
			wantMsg: `unsupported dtype "int8"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			spec := base.Spec()
			tc.mutate(&spec)
			_, err := New(spec)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidGraph)
			assert.ErrorContains(t, err, tc.wantMsg)
		})
	}
}

func TestNew_FixedShapes(t *testing.T) {
	one := 1.0
	spec := Spec{
		Name:    "fixed",
		Inputs:  []ValueInfo{{Name: "X", Shape: []Dim{Fixed(1), Fixed(1), Fixed(5), Fixed(5)}}},
		Outputs: []ValueInfo{{Name: "Y", Shape: []Dim{Fixed(1), Fixed(1), Fixed(3), Fixed(3)}}},
		Initializers: []Initializer{{
			Name: "K", Shape: []int{1, 1, 3, 3}, Data: make([]float64, 9),
		}},
		Nodes: []Node{
			{Name: "conv", Op: OpConv, Inputs: []string{"X", "K"}, Output: "Z", Pads: []int{0, 0, 0, 0}},
			{Name: "one", Op: OpConstant, Output: "C", Value: &one},
			{Name: "add", Op: OpAdd, Inputs: []string{"Z", "C"}, Output: "Y"},
		},
	}
	g, err := New(spec)
	require.NoError(t, err)
	assert.Equal(t, Float64, g.DType())
	shape, _ := g.ValueShape("Y")
	assert.Equal(t, []Dim{Fixed(1), Fixed(1), Fixed(3), Fixed(3)}, shape)

	spec.Outputs[0].Shape[3] = Fixed(5)
	_, err = New(spec)
	assert.ErrorIs(t, err, ErrInvalidGraph)
}
