package interp

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/specialistvlad/wcctgo/internal/ctxlog"
	"github.com/specialistvlad/wcctgo/internal/opgraph"
	"github.com/specialistvlad/wcctgo/internal/tensor"
)

var (
	// ErrMissingInput is returned when a declared graph input is not supplied.
	ErrMissingInput = errors.New("interp: missing graph input")

	// ErrUnknownInput is returned for supplied tensors the graph does not declare.
	ErrUnknownInput = errors.New("interp: unknown graph input")

	// ErrShape is returned when tensor shapes do not fit the graph.
	ErrShape = errors.New("interp: shape mismatch")

	// ErrUnsupportedOp is returned for ops without a registered kernel.
	ErrUnsupportedOp = errors.New("interp: unsupported op")
)

// Name identifies this runner in logs and metrics.
const Name = "interp"

// Interpreter executes graphs with Go kernels. It is safe for concurrent use;
// every Execute call owns its own state.
type Interpreter struct {
	workers int
	kernels registry
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithWorkers sets the size of the worker pool. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(in *Interpreter) {
		if n < 1 {
			n = 1
		}
		in.workers = n
	}
}

// New creates an interpreter with one worker per CPU.
func New(opts ...Option) *Interpreter {
	in := &Interpreter{workers: runtime.GOMAXPROCS(0), kernels: defaultRegistry()}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Name returns the runner name.
func (in *Interpreter) Name() string { return Name }

// Execute runs g once. Inputs are read but never modified; the returned map
// holds one freshly allocated tensor per declared graph output.
func (in *Interpreter) Execute(ctx context.Context, g *opgraph.Graph, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	logger := ctxlog.FromContext(ctx)
	p := precisionFor(g.DType())

	values := &valueStore{}
	if err := loadInputs(g, inputs, p, values); err != nil {
		return nil, err
	}
	for _, init := range g.Initializers() {
		t, err := tensor.New(init.Shape, roundAll(init.Data, p))
		if err != nil {
			return nil, fmt.Errorf("interp: initializer %q: %w", init.Name, err)
		}
		values.put(init.Name, t)
	}

	r := newRun(g, in.kernels, values, p, min(in.workers, g.NumNodes()))
	if err := r.execute(ctx); err != nil {
		return nil, err
	}

	outputs := make(map[string]*tensor.Tensor, len(g.Outputs()))
	for _, out := range g.Outputs() {
		t, ok := values.get(out.Name)
		if !ok {
			return nil, fmt.Errorf("interp: output %q was not produced", out.Name)
		}
		outputs[out.Name] = t
	}
	logger.Debug("Graph executed.", "graph", g.Name(), "nodes", g.NumNodes(), "workers", r.workers)
	return outputs, nil
}

// loadInputs checks every supplied tensor against its declaration. Symbolic
// dimensions must take the same size everywhere they appear.
func loadInputs(g *opgraph.Graph, inputs map[string]*tensor.Tensor, p precision, values *valueStore) error {
	declared := g.Inputs()
	known := make(map[string]bool, len(declared))
	for _, d := range declared {
		known[d.Name] = true
	}
	for name := range inputs {
		if !known[name] {
			return fmt.Errorf("%w: %q", ErrUnknownInput, name)
		}
	}

	bound := make(map[string]int)
	for _, d := range declared {
		t, ok := inputs[d.Name]
		if !ok || t == nil {
			return fmt.Errorf("%w: %q", ErrMissingInput, d.Name)
		}
		want, _ := g.ValueShape(d.Name)
		got := t.Shape()
		if len(got) != len(want) {
			return fmt.Errorf("%w: input %q has rank %d, graph expects %d", ErrShape, d.Name, len(got), len(want))
		}
		for k, dim := range want {
			if !dim.IsSymbolic() {
				if got[k] != dim.Value {
					return fmt.Errorf("%w: input %q dimension %d is %d, graph expects %d", ErrShape, d.Name, k, got[k], dim.Value)
				}
				continue
			}
			if v, seen := bound[dim.Param]; seen && v != got[k] {
				return fmt.Errorf("%w: input %q binds %s=%d, already bound to %d", ErrShape, d.Name, dim.Param, got[k], v)
			}
			bound[dim.Param] = got[k]
		}
		if g.DType() == opgraph.Float32 {
			t, _ = tensor.New(got, roundAll(t.Data(), p))
		}
		values.put(d.Name, t)
	}
	return nil
}

func roundAll(data []float64, p precision) []float64 {
	out := make([]float64, len(data))
	for k, v := range data {
		out[k] = p(v)
	}
	return out
}
