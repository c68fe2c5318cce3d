package opgraph

import (
	"fmt"
	"math"
)

// Value names of the red-black relaxation graph.
const (
	RBSORName    = "rb_sor"
	InputU       = "U"
	InputF       = "F"
	InputR       = "R"
	InputB       = "B"
	KernelW      = "W"
	OutputName   = "Out"
	ConstQuarter = "C025"
	ConstOmega   = "COM"

	// Opset is the operator-set revision recorded in built graphs.
	Opset = 13
)

// NeighborKernel is the 3x3 four-neighbour stencil.
var NeighborKernel = [9]float64{
	0, 1, 0,
	1, 0, 1,
	0, 1, 0,
}

// BuildOption configures BuildRBSOR.
type BuildOption func(*buildOptions)

type buildOptions struct {
	dtype DType
	name  string
}

// WithDType selects the element type the graph computes in.
func WithDType(d DType) BuildOption {
	return func(o *buildOptions) { o.dtype = d }
}

// WithName overrides the graph name.
func WithName(name string) BuildOption {
	return func(o *buildOptions) { o.name = name }
}

// BuildRBSOR returns the graph of one full red-black relaxation sweep with
// omega embedded as a constant. The nodes follow the reference order: the
// red half-step S1 D1 C025 J1 E1 COM W1 WR Ur, then the black half-step
// S2 D2 J2 E2 W2 WB Out.
func BuildRBSOR(omega float64, opts ...BuildOption) (*Graph, error) {
	o := buildOptions{dtype: Float64, name: RBSORName}
	for _, opt := range opts {
		opt(&o)
	}
	if err := representable(omega, o.dtype); err != nil {
		return nil, err
	}

	quarter := 0.25
	nchw := func(name string) ValueInfo {
		return ValueInfo{Name: name, Shape: []Dim{Sym("b"), Sym("c"), Sym("h"), Sym("w")}}
	}
	pads := func() []int { return []int{1, 1, 1, 1} }
	op := func(op Op, a, b, out string) Node {
		return Node{Name: out, Op: op, Inputs: []string{a, b}, Output: out}
	}

	spec := Spec{
		Name:    o.name,
		DType:   o.dtype,
		Opset:   Opset,
		Inputs:  []ValueInfo{nchw(InputU), nchw(InputF), nchw(InputR), nchw(InputB)},
		Outputs: []ValueInfo{nchw(OutputName)},
		Initializers: []Initializer{{
			Name:  KernelW,
			Shape: []int{1, 1, 3, 3},
			Data:  NeighborKernel[:],
		}},
		Nodes: []Node{
			{Name: "S1", Op: OpConv, Inputs: []string{InputU, KernelW}, Output: "S1", Pads: pads()},
			op(OpSub, "S1", InputF, "D1"),
			{Name: ConstQuarter, Op: OpConstant, Output: ConstQuarter, Value: &quarter},
			op(OpMul, "D1", ConstQuarter, "J1"),
			op(OpSub, "J1", InputU, "E1"),
			{Name: ConstOmega, Op: OpConstant, Output: ConstOmega, Value: &omega},
			op(OpMul, "E1", ConstOmega, "W1"),
			op(OpMul, "W1", InputR, "WR"),
			op(OpAdd, InputU, "WR", "Ur"),
			{Name: "S2", Op: OpConv, Inputs: []string{"Ur", KernelW}, Output: "S2", Pads: pads()},
			op(OpSub, "S2", InputF, "D2"),
			op(OpMul, "D2", ConstQuarter, "J2"),
			op(OpSub, "J2", "Ur", "E2"),
			op(OpMul, "E2", ConstOmega, "W2"),
			op(OpMul, "W2", InputB, "WB"),
			op(OpAdd, "Ur", "WB", OutputName),
		},
	}
	return New(spec)
}

// Omega reads the relaxation factor back from a relaxation graph.
func (g *Graph) Omega() (float64, error) {
	v, ok := g.Constant(ConstOmega)
	if !ok {
		return 0, fmt.Errorf("%w: graph %q has no %s constant", ErrInvalidGraph, g.Name(), ConstOmega)
	}
	return v, nil
}

func representable(v float64, d DType) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %v", ErrUnrepresentable, v)
	}
	if d == Float32 && math.IsInf(float64(float32(v)), 0) {
		return fmt.Errorf("%w: %v overflows %s", ErrUnrepresentable, v, d)
	}
	return nil
}
