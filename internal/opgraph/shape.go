package opgraph

import (
	"slices"
	"strings"
)

// shapeEnv binds symbolic dimensions to sizes discovered during inference.
type shapeEnv struct {
	bound map[string]int
}

func (e *shapeEnv) resolve(d Dim) Dim {
	if d.IsSymbolic() {
		if v, ok := e.bound[d.Param]; ok {
			return Fixed(v)
		}
	}
	return d
}

// unify returns the common dimension of a and b, binding a symbol when the
// other side is fixed.
func (e *shapeEnv) unify(a, b Dim) (Dim, bool) {
	a, b = e.resolve(a), e.resolve(b)
	switch {
	case !a.IsSymbolic() && !b.IsSymbolic():
		return a, a.Value == b.Value
	case a.IsSymbolic() && b.IsSymbolic():
		return a, a.Param == b.Param
	case a.IsSymbolic():
		e.bound[a.Param] = b.Value
		return b, true
	default:
		e.bound[b.Param] = a.Value
		return a, true
	}
}

func (e *shapeEnv) resolveShape(s []Dim) []Dim {
	out := make([]Dim, len(s))
	for i, d := range s {
		out[i] = e.resolve(d)
	}
	return out
}

func formatShape(s []Dim) string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = d.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (g *Graph) inferShapes(kinds map[string]valueKind) error {
	env := &shapeEnv{bound: make(map[string]int)}
	shapes := make(map[string][]Dim, len(kinds))
	for _, in := range g.spec.Inputs {
		shapes[in.Name] = slices.Clone(in.Shape)
	}
	for _, init := range g.spec.Initializers {
		dims := make([]Dim, len(init.Shape))
		for i, d := range init.Shape {
			dims[i] = Fixed(d)
		}
		shapes[init.Name] = dims
	}

	for _, i := range g.TopoOrder() {
		n := g.spec.Nodes[i]
		var (
			out []Dim
			err error
		)
		switch n.Op {
		case OpConstant:
			out = []Dim{}
		case OpConv:
			if kinds[n.Inputs[1]] != kindInitializer {
				return invalid("conv %q kernel %q must be an initializer", n.Name, n.Inputs[1])
			}
			out, err = env.conv(n, shapes[n.Inputs[0]], shapes[n.Inputs[1]])
		default:
			out, err = env.broadcast(n, shapes[n.Inputs[0]], shapes[n.Inputs[1]])
		}
		if err != nil {
			return err
		}
		shapes[n.Output] = out
	}

	for _, decl := range g.spec.Outputs {
		got := shapes[decl.Name]
		if len(got) != len(decl.Shape) {
			return invalid("output %q declared %s, inferred %s", decl.Name, formatShape(decl.Shape), formatShape(env.resolveShape(got)))
		}
		for k := range got {
			if _, ok := env.unify(got[k], decl.Shape[k]); !ok {
				return invalid("output %q declared %s, inferred %s", decl.Name, formatShape(env.resolveShape(decl.Shape)), formatShape(env.resolveShape(got)))
			}
		}
	}

	g.shapes = make(map[string][]Dim, len(shapes))
	for name, s := range shapes {
		g.shapes[name] = env.resolveShape(s)
	}
	return nil
}

// conv infers a stride-1 NCHW convolution. Symbolic spatial dimensions are
// only accepted with size-preserving padding.
func (e *shapeEnv) conv(n Node, x, w []Dim) ([]Dim, error) {
	if len(x) != 4 {
		return nil, invalid("conv %q input must be rank 4, got %s", n.Name, formatShape(x))
	}
	if len(w) != 4 {
		return nil, invalid("conv %q kernel must be rank 4, got %s", n.Name, formatShape(w))
	}
	if _, ok := e.unify(x[1], w[1]); !ok {
		return nil, invalid("conv %q channel mismatch: input %s, kernel %s", n.Name, formatShape(x), formatShape(w))
	}
	h, err := e.spatial(n, x[2], w[2].Value, n.Pads[0], n.Pads[2])
	if err != nil {
		return nil, err
	}
	wd, err := e.spatial(n, x[3], w[3].Value, n.Pads[1], n.Pads[3])
	if err != nil {
		return nil, err
	}
	return []Dim{x[0], w[0], h, wd}, nil
}

func (e *shapeEnv) spatial(n Node, d Dim, k, begin, end int) (Dim, error) {
	d = e.resolve(d)
	if d.IsSymbolic() {
		if begin+end != k-1 {
			return Dim{}, invalid("conv %q pads %v do not preserve symbolic dimension %s for kernel size %d", n.Name, n.Pads, d, k)
		}
		return d, nil
	}
	size := d.Value + begin + end - k + 1
	if size < 1 {
		return Dim{}, invalid("conv %q kernel size %d exceeds padded input %d", n.Name, k, d.Value+begin+end)
	}
	return Fixed(size), nil
}

// broadcast infers an elementwise op. A rank-0 operand broadcasts against
// anything; otherwise ranks must match and dimensions must unify.
func (e *shapeEnv) broadcast(n Node, a, b []Dim) ([]Dim, error) {
	if len(a) == 0 {
		return slices.Clone(b), nil
	}
	if len(b) == 0 {
		return slices.Clone(a), nil
	}
	if len(a) != len(b) {
		return nil, invalid("%s %q rank mismatch: %s vs %s", n.Op, n.Name, formatShape(a), formatShape(b))
	}
	out := make([]Dim, len(a))
	for k := range a {
		d, ok := e.unify(a[k], b[k])
		if !ok {
			return nil, invalid("%s %q shape mismatch: %s vs %s", n.Op, n.Name, formatShape(e.resolveShape(a)), formatShape(e.resolveShape(b)))
		}
		out[k] = d
	}
	return out, nil
}
