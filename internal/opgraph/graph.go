package opgraph

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
)

var (
	// ErrInvalidGraph is wrapped by every self-check failure.
	ErrInvalidGraph = errors.New("opgraph: invalid graph")

	// ErrUnrepresentable is returned when a constant cannot be stored in the
	// graph's element type.
	ErrUnrepresentable = errors.New("opgraph: value not representable in graph dtype")
)

// Op is an elementary operation type.
type Op string

const (
	OpConstant Op = "Constant"
	OpConv     Op = "Conv"
	OpSub      Op = "Sub"
	OpMul      Op = "Mul"
	OpAdd      Op = "Add"
)

// Arity returns the number of inputs the op takes, or -1 for unknown ops.
func (o Op) Arity() int {
	switch o {
	case OpConstant:
		return 0
	case OpConv, OpSub, OpMul, OpAdd:
		return 2
	default:
		return -1
	}
}

// DType is the element type the graph computes in.
type DType string

const (
	Float64 DType = "float64"
	Float32 DType = "float32"
)

// Valid reports whether d is a supported element type.
func (d DType) Valid() bool { return d == Float64 || d == Float32 }

// Dim is one tensor dimension: either a fixed size or a named symbol.
type Dim struct {
	Param string
	Value int
}

// Sym returns a symbolic dimension.
func Sym(name string) Dim { return Dim{Param: name} }

// Fixed returns a dimension of known size.
func Fixed(n int) Dim { return Dim{Value: n} }

// IsSymbolic reports whether the size is only known at execution time.
func (d Dim) IsSymbolic() bool { return d.Param != "" }

func (d Dim) String() string {
	if d.IsSymbolic() {
		return d.Param
	}
	return strconv.Itoa(d.Value)
}

// ValueInfo declares a named graph input or output.
type ValueInfo struct {
	Name  string
	Shape []Dim
}

// Initializer is a named constant tensor, such as a convolution kernel.
type Initializer struct {
	Name  string
	Shape []int
	Data  []float64
}

// Node is one operation. Output names the value it produces.
type Node struct {
	Name   string
	Op     Op
	Inputs []string
	Output string
	// Pads is [top, left, bottom, right]; Conv only.
	Pads []int
	// Value is the scalar produced by a Constant node.
	Value *float64
}

// Spec is the mutable description a Graph is built from.
type Spec struct {
	Name         string
	DType        DType
	Opset        int
	Inputs       []ValueInfo
	Outputs      []ValueInfo
	Initializers []Initializer
	Nodes        []Node
}

// Graph is a validated, immutable computation graph. All accessors return
// copies.
type Graph struct {
	spec       Spec
	producer   map[string]int
	deps       [][]int
	dependents [][]int
	shapes     map[string][]Dim
}

// New validates spec and returns the corresponding Graph. The spec is deep
// copied; later changes to it do not affect the graph. An empty DType means
// Float64.
func New(spec Spec) (*Graph, error) {
	s := spec.clone()
	if s.DType == "" {
		s.DType = Float64
	}
	g := &Graph{spec: s}
	if err := g.check(); err != nil {
		return nil, err
	}
	return g, nil
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.spec.Name }

// DType returns the element type.
func (g *Graph) DType() DType { return g.spec.DType }

// Spec returns a deep copy of the description the graph was built from.
func (g *Graph) Spec() Spec { return g.spec.clone() }

// Inputs returns the declared graph inputs.
func (g *Graph) Inputs() []ValueInfo { return cloneValueInfos(g.spec.Inputs) }

// Outputs returns the declared graph outputs.
func (g *Graph) Outputs() []ValueInfo { return cloneValueInfos(g.spec.Outputs) }

// Initializers returns copies of the constant tensors.
func (g *Graph) Initializers() []Initializer { return cloneInitializers(g.spec.Initializers) }

// Nodes returns the nodes in declaration order.
func (g *Graph) Nodes() []Node { return cloneNodes(g.spec.Nodes) }

// NumNodes returns the number of nodes.
func (g *Graph) NumNodes() int { return len(g.spec.Nodes) }

// Node returns the node at index i in declaration order.
func (g *Graph) Node(i int) Node { return g.spec.Nodes[i].clone() }

// Dependencies returns the indices of the nodes whose outputs node i reads.
func (g *Graph) Dependencies(i int) []int { return slices.Clone(g.deps[i]) }

// Dependents returns the indices of the nodes that read node i's output.
func (g *Graph) Dependents(i int) []int { return slices.Clone(g.dependents[i]) }

// ValueShape returns the inferred shape of a named value.
func (g *Graph) ValueShape(name string) ([]Dim, bool) {
	shape, ok := g.shapes[name]
	return slices.Clone(shape), ok
}

// Constant returns the scalar of the Constant node producing value name.
func (g *Graph) Constant(name string) (float64, bool) {
	i, ok := g.producer[name]
	if !ok {
		return 0, false
	}
	n := g.spec.Nodes[i]
	if n.Op != OpConstant || n.Value == nil {
		return 0, false
	}
	return *n.Value, true
}

func (s Spec) clone() Spec {
	out := s
	out.Inputs = cloneValueInfos(s.Inputs)
	out.Outputs = cloneValueInfos(s.Outputs)
	out.Initializers = cloneInitializers(s.Initializers)
	out.Nodes = cloneNodes(s.Nodes)
	return out
}

func (n Node) clone() Node {
	out := n
	out.Inputs = slices.Clone(n.Inputs)
	out.Pads = slices.Clone(n.Pads)
	if n.Value != nil {
		v := *n.Value
		out.Value = &v
	}
	return out
}

func cloneValueInfos(in []ValueInfo) []ValueInfo {
	if in == nil {
		return nil
	}
	out := make([]ValueInfo, len(in))
	for i, v := range in {
		out[i] = ValueInfo{Name: v.Name, Shape: slices.Clone(v.Shape)}
	}
	return out
}

func cloneInitializers(in []Initializer) []Initializer {
	if in == nil {
		return nil
	}
	out := make([]Initializer, len(in))
	for i, v := range in {
		out[i] = Initializer{Name: v.Name, Shape: slices.Clone(v.Shape), Data: slices.Clone(v.Data)}
	}
	return out
}

func cloneNodes(in []Node) []Node {
	if in == nil {
		return nil
	}
	out := make([]Node, len(in))
	for i, n := range in {
		out[i] = n.clone()
	}
	return out
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidGraph, fmt.Sprintf(format, args...))
}
