package opgraph

import (
	"slices"
)

type valueKind int

const (
	kindInput valueKind = iota + 1
	kindInitializer
	kindNode
)

// check runs the self-check and fills the derived topology tables.
func (g *Graph) check() error {
	s := &g.spec
	if s.Name == "" {
		return invalid("graph has no name")
	}
	if !s.DType.Valid() {
		return invalid("unsupported dtype %q", s.DType)
	}
	if len(s.Nodes) == 0 {
		return invalid("graph has no nodes")
	}
	if len(s.Outputs) == 0 {
		return invalid("graph declares no outputs")
	}

	kinds := make(map[string]valueKind)
	define := func(name string, kind valueKind) error {
		if name == "" {
			return invalid("empty value name")
		}
		if _, dup := kinds[name]; dup {
			return invalid("value %q is defined more than once", name)
		}
		kinds[name] = kind
		return nil
	}

	for _, in := range s.Inputs {
		if err := define(in.Name, kindInput); err != nil {
			return err
		}
		for _, d := range in.Shape {
			if !d.IsSymbolic() && d.Value < 1 {
				return invalid("input %q has non-positive dimension %d", in.Name, d.Value)
			}
		}
	}
	for _, init := range s.Initializers {
		if err := define(init.Name, kindInitializer); err != nil {
			return err
		}
		size := 1
		for _, d := range init.Shape {
			if d < 1 {
				return invalid("initializer %q has non-positive dimension %d", init.Name, d)
			}
			size *= d
		}
		if len(init.Data) != size {
			return invalid("initializer %q has %d values for shape %v", init.Name, len(init.Data), init.Shape)
		}
	}

	g.producer = make(map[string]int, len(s.Nodes))
	names := make(map[string]bool, len(s.Nodes))
	for i, n := range s.Nodes {
		if n.Name == "" {
			return invalid("node %d has no name", i)
		}
		if names[n.Name] {
			return invalid("node name %q is used more than once", n.Name)
		}
		names[n.Name] = true
		if err := checkNode(n); err != nil {
			return err
		}
		if err := define(n.Output, kindNode); err != nil {
			return err
		}
		g.producer[n.Output] = i
	}

	used := make(map[string]bool)
	g.deps = make([][]int, len(s.Nodes))
	g.dependents = make([][]int, len(s.Nodes))
	for i, n := range s.Nodes {
		for _, in := range n.Inputs {
			if _, ok := kinds[in]; !ok {
				return invalid("node %q reads undefined value %q", n.Name, in)
			}
			used[in] = true
			p, ok := g.producer[in]
			if !ok || slices.Contains(g.deps[i], p) {
				continue
			}
			g.deps[i] = append(g.deps[i], p)
			g.dependents[p] = append(g.dependents[p], i)
		}
	}
	for _, in := range s.Inputs {
		if !used[in.Name] {
			return invalid("input %q is dangling: no node consumes it", in.Name)
		}
	}
	for _, init := range s.Initializers {
		if !used[init.Name] {
			return invalid("initializer %q is dangling: no node consumes it", init.Name)
		}
	}
	for _, out := range s.Outputs {
		if _, ok := g.producer[out.Name]; !ok {
			return invalid("output %q is not produced by any node", out.Name)
		}
	}

	if err := g.detectCycles(); err != nil {
		return err
	}
	return g.inferShapes(kinds)
}

func checkNode(n Node) error {
	arity := n.Op.Arity()
	if arity < 0 {
		return invalid("node %q has unsupported op %q", n.Name, n.Op)
	}
	if len(n.Inputs) != arity {
		return invalid("node %q (%s) takes %d inputs, got %d", n.Name, n.Op, arity, len(n.Inputs))
	}
	switch n.Op {
	case OpConstant:
		if n.Value == nil {
			return invalid("constant %q has no value", n.Name)
		}
	case OpConv:
		if len(n.Pads) != 4 {
			return invalid("conv %q needs 4 pads, got %d", n.Name, len(n.Pads))
		}
		for _, p := range n.Pads {
			if p < 0 {
				return invalid("conv %q has negative pad %d", n.Name, p)
			}
		}
	}
	if n.Op != OpConv && len(n.Pads) != 0 {
		return invalid("node %q (%s) does not take pads", n.Name, n.Op)
	}
	if n.Op != OpConstant && n.Value != nil {
		return invalid("node %q (%s) does not take a value", n.Name, n.Op)
	}
	return nil
}

// detectCycles is a depth-first search over node dependents. Nodes on the
// current path are temporary; fully explored nodes are permanent.
func (g *Graph) detectCycles() error {
	permanent := make([]bool, len(g.spec.Nodes))
	temporary := make([]bool, len(g.spec.Nodes))

	var visit func(i int) error
	visit = func(i int) error {
		if permanent[i] {
			return nil
		}
		if temporary[i] {
			return invalid("cycle detected involving node %q", g.spec.Nodes[i].Name)
		}
		temporary[i] = true
		for _, d := range g.dependents[i] {
			if err := visit(d); err != nil {
				return err
			}
		}
		temporary[i] = false
		permanent[i] = true
		return nil
	}

	for i := range g.spec.Nodes {
		if err := visit(i); err != nil {
			return err
		}
	}
	return nil
}

// TopoOrder returns node indices such that every node follows its
// dependencies. Ties keep declaration order.
func (g *Graph) TopoOrder() []int {
	pending := make([]int, len(g.deps))
	for i, d := range g.deps {
		pending[i] = len(d)
	}
	order := make([]int, 0, len(g.deps))
	done := make([]bool, len(g.deps))
	for len(order) < len(g.deps) {
		for i := range g.deps {
			if done[i] || pending[i] > 0 {
				continue
			}
			done[i] = true
			order = append(order, i)
			for _, d := range g.dependents[i] {
				pending[d]--
			}
			break
		}
	}
	return order
}
