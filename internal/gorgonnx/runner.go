// Package gorgonnx executes opgraph graphs on the gorgonia tensor-graph
// engine. Each Execute call lowers the graph into a fresh gorgonia
// expression graph with the supplied inputs bound as values and runs it on a
// tape machine.
package gorgonnx

import (
	"context"
	"errors"
	"fmt"

	// gorgonia's tensor package checks the Go release through this module at
	// init; the version required in go.mod must know the toolchain in use.
	_ "go4.org/unsafe/assume-no-moving-gc"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/specialistvlad/wcctgo/internal/ctxlog"
	"github.com/specialistvlad/wcctgo/internal/opgraph"
	wt "github.com/specialistvlad/wcctgo/internal/tensor"
)

// Name identifies this runner in logs and metrics.
const Name = "gorgonia"

var (
	// ErrUnsupported is returned for graph constructs the engine cannot express.
	ErrUnsupported = errors.New("gorgonnx: unsupported graph construct")

	// ErrEngine wraps failures reported by gorgonia itself.
	ErrEngine = errors.New("gorgonnx: engine failure")

	// ErrMissingInput is returned when a declared input is not supplied.
	ErrMissingInput = errors.New("gorgonnx: missing graph input")
)

// Runner executes graphs with gorgonia. The zero value is ready to use.
type Runner struct{}

// New returns a gorgonia-backed runner.
func New() *Runner { return &Runner{} }

// Name returns the runner name.
func (r *Runner) Name() string { return Name }

// Execute lowers g, binds inputs and runs it once.
func (r *Runner) Execute(ctx context.Context, g *opgraph.Graph, inputs map[string]*wt.Tensor) (out map[string]*wt.Tensor, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := ctxlog.FromContext(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("%w: graph %q panicked: %v", ErrEngine, g.Name(), rec)
		}
	}()

	dt := tensor.Float64
	if g.DType() == opgraph.Float32 {
		dt = tensor.Float32
	}
	l := &lowering{graph: gorgonia.NewGraph(), dtype: dt, nodes: map[string]*gorgonia.Node{}}

	for _, in := range g.Inputs() {
		t, ok := inputs[in.Name]
		if !ok || t == nil {
			return nil, fmt.Errorf("%w: %q", ErrMissingInput, in.Name)
		}
		l.bind(in.Name, t.Shape(), t.Data())
	}
	for _, init := range g.Initializers() {
		l.bind(init.Name, init.Shape, init.Data)
	}
	for _, i := range g.TopoOrder() {
		if err := l.lower(g.Node(i)); err != nil {
			return nil, err
		}
	}

	vm := gorgonia.NewTapeMachine(l.graph)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngine, err)
	}

	out = make(map[string]*wt.Tensor, len(g.Outputs()))
	for _, decl := range g.Outputs() {
		n := l.nodes[decl.Name]
		t, err := fromValue(n.Value())
		if err != nil {
			return nil, fmt.Errorf("%w: output %q: %v", ErrEngine, decl.Name, err)
		}
		out[decl.Name] = t
	}
	logger.Debug("Graph executed on gorgonia.", "graph", g.Name(), "nodes", g.NumNodes())
	return out, nil
}

type lowering struct {
	graph *gorgonia.ExprGraph
	dtype tensor.Dtype
	nodes map[string]*gorgonia.Node
}

func (l *lowering) backing(data []float64) any {
	if l.dtype == tensor.Float32 {
		f := make([]float32, len(data))
		for k, v := range data {
			f[k] = float32(v)
		}
		return f
	}
	b := make([]float64, len(data))
	copy(b, data)
	return b
}

func (l *lowering) bind(name string, shape []int, data []float64) {
	if len(shape) == 0 {
		l.nodes[name] = l.scalar(name, data[0])
		return
	}
	value := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(l.backing(data)))
	l.nodes[name] = gorgonia.NewTensor(l.graph, l.dtype, len(shape),
		gorgonia.WithShape(shape...), gorgonia.WithName(name), gorgonia.WithValue(value))
}

func (l *lowering) scalar(name string, v float64) *gorgonia.Node {
	var value any = v
	if l.dtype == tensor.Float32 {
		value = float32(v)
	}
	return gorgonia.NewScalar(l.graph, l.dtype, gorgonia.WithName(name), gorgonia.WithValue(value))
}

func (l *lowering) lower(n opgraph.Node) error {
	args := make([]*gorgonia.Node, len(n.Inputs))
	for i, name := range n.Inputs {
		args[i] = l.nodes[name]
	}

	var (
		res *gorgonia.Node
		err error
	)
	switch n.Op {
	case opgraph.OpConstant:
		res = l.scalar(n.Output, *n.Value)
	case opgraph.OpConv:
		top, left, bottom, right := n.Pads[0], n.Pads[1], n.Pads[2], n.Pads[3]
		if top != bottom || left != right {
			return fmt.Errorf("%w: conv %q has asymmetric pads %v", ErrUnsupported, n.Name, n.Pads)
		}
		ks := args[1].Shape()
		res, err = gorgonia.Conv2d(args[0], args[1], tensor.Shape{ks[2], ks[3]}, []int{top, left}, []int{1, 1}, []int{1, 1})
	case opgraph.OpSub:
		res, err = gorgonia.Sub(args[0], args[1])
	case opgraph.OpAdd:
		res, err = gorgonia.Add(args[0], args[1])
	case opgraph.OpMul:
		if args[0].IsScalar() || args[1].IsScalar() {
			res, err = gorgonia.Mul(args[0], args[1])
		} else {
			res, err = gorgonia.HadamardProd(args[0], args[1])
		}
	default:
		return fmt.Errorf("%w: op %q", ErrUnsupported, n.Op)
	}
	if err != nil {
		return fmt.Errorf("%w: lowering %s %q: %v", ErrEngine, n.Op, n.Name, err)
	}
	l.nodes[n.Output] = res
	return nil
}

func fromValue(v gorgonia.Value) (*wt.Tensor, error) {
	if v == nil {
		return nil, errors.New("no value computed")
	}
	shape := []int(v.Shape())
	switch data := v.Data().(type) {
	case []float64:
		return wt.New(shape, data)
	case []float32:
		f := make([]float64, len(data))
		for k, x := range data {
			f[k] = float64(x)
		}
		return wt.New(shape, f)
	case float64:
		return wt.Scalar(data), nil
	case float32:
		return wt.Scalar(float64(data)), nil
	default:
		return nil, fmt.Errorf("unexpected value type %T", data)
	}
}
