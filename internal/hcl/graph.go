package hcl

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/specialistvlad/wcctgo/internal/opgraph"
)

// GraphExt is the file extension of persisted graphs.
const GraphExt = ".graph.hcl"

type graphFile struct {
	Graph graphBlock `hcl:"graph,block"`
}

type graphBlock struct {
	Name         string             `hcl:"name,label"`
	DType        string             `hcl:"dtype,optional"`
	Opset        int                `hcl:"opset,optional"`
	Inputs       []valueInfoBlock   `hcl:"input,block"`
	Outputs      []valueInfoBlock   `hcl:"output,block"`
	Initializers []initializerBlock `hcl:"initializer,block"`
	Nodes        []nodeBlock        `hcl:"node,block"`
}

type valueInfoBlock struct {
	Name  string    `hcl:"name,label"`
	Shape cty.Value `hcl:"shape"`
}

type initializerBlock struct {
	Name  string    `hcl:"name,label"`
	Shape []int     `hcl:"shape"`
	Data  []float64 `hcl:"data"`
}

type nodeBlock struct {
	Name   string         `hcl:"name,label"`
	Op     string         `hcl:"op"`
	Inputs hcl.Expression `hcl:"inputs,optional"`
	Output string         `hcl:"output"`
	Pads   []int          `hcl:"pads,optional"`
	Value  *float64       `hcl:"value,optional"`
}

// EncodeGraph renders g as HCL text.
func EncodeGraph(g *opgraph.Graph) []byte {
	spec := g.Spec()
	f := hclwrite.NewEmptyFile()
	body := f.Body().AppendNewBlock("graph", []string{spec.Name}).Body()
	body.SetAttributeValue("dtype", cty.StringVal(string(spec.DType)))
	body.SetAttributeValue("opset", cty.NumberIntVal(int64(spec.Opset)))

	body.AppendNewline()
	for _, in := range spec.Inputs {
		body.AppendNewBlock("input", []string{in.Name}).Body().SetAttributeValue("shape", dimsValue(in.Shape))
	}
	for _, out := range spec.Outputs {
		body.AppendNewBlock("output", []string{out.Name}).Body().SetAttributeValue("shape", dimsValue(out.Shape))
	}
	for _, init := range spec.Initializers {
		b := body.AppendNewBlock("initializer", []string{init.Name}).Body()
		b.SetAttributeValue("shape", intsValue(init.Shape))
		data := make([]cty.Value, len(init.Data))
		for i, v := range init.Data {
			data[i] = cty.NumberFloatVal(v)
		}
		b.SetAttributeValue("data", listOrEmpty(data))
	}

	body.AppendNewline()
	for _, n := range spec.Nodes {
		b := body.AppendNewBlock("node", []string{n.Name}).Body()
		b.SetAttributeValue("op", cty.StringVal(string(n.Op)))
		if len(n.Inputs) > 0 {
			refs := make([]hclwrite.Tokens, len(n.Inputs))
			for i, name := range n.Inputs {
				refs[i] = hclwrite.TokensForTraversal(hcl.Traversal{hcl.TraverseRoot{Name: name}})
			}
			b.SetAttributeRaw("inputs", hclwrite.TokensForTuple(refs))
		}
		b.SetAttributeValue("output", cty.StringVal(n.Output))
		if len(n.Pads) > 0 {
			b.SetAttributeValue("pads", intsValue(n.Pads))
		}
		if n.Value != nil {
			b.SetAttributeValue("value", cty.NumberFloatVal(*n.Value))
		}
	}
	return f.Bytes()
}

// DecodeGraph parses HCL text produced by EncodeGraph and validates the
// result. filename is only used in diagnostics.
func DecodeGraph(src []byte, filename string) (*opgraph.Graph, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse graph %s: %w", filename, diags)
	}
	var root graphFile
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode graph %s: %w", filename, diags)
	}

	gb := root.Graph
	spec := opgraph.Spec{Name: gb.Name, DType: opgraph.DType(gb.DType), Opset: gb.Opset}
	for _, in := range gb.Inputs {
		shape, err := dimsFromValue(in.Shape)
		if err != nil {
			return nil, fmt.Errorf("graph %s: input %q: %w", filename, in.Name, err)
		}
		spec.Inputs = append(spec.Inputs, opgraph.ValueInfo{Name: in.Name, Shape: shape})
	}
	for _, out := range gb.Outputs {
		shape, err := dimsFromValue(out.Shape)
		if err != nil {
			return nil, fmt.Errorf("graph %s: output %q: %w", filename, out.Name, err)
		}
		spec.Outputs = append(spec.Outputs, opgraph.ValueInfo{Name: out.Name, Shape: shape})
	}
	for _, init := range gb.Initializers {
		spec.Initializers = append(spec.Initializers, opgraph.Initializer{Name: init.Name, Shape: init.Shape, Data: init.Data})
	}
	for _, nb := range gb.Nodes {
		inputs, err := references(nb.Inputs)
		if err != nil {
			return nil, fmt.Errorf("graph %s: node %q: %w", filename, nb.Name, err)
		}
		spec.Nodes = append(spec.Nodes, opgraph.Node{
			Name:   nb.Name,
			Op:     opgraph.Op(nb.Op),
			Inputs: inputs,
			Output: nb.Output,
			Pads:   nb.Pads,
			Value:  nb.Value,
		})
	}
	return opgraph.New(spec)
}

// references turns an expression like [U, W] into value names.
func references(expr hcl.Expression) ([]string, error) {
	if expr == nil || expr.Range().Empty() {
		return nil, nil
	}
	if v, diags := expr.Value(nil); !diags.HasErrors() && v.IsNull() {
		return nil, nil
	}
	items, diags := hcl.ExprList(expr)
	if diags.HasErrors() {
		return nil, diags
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		trav, diags := hcl.AbsTraversalForExpr(item)
		if diags.HasErrors() {
			return nil, diags
		}
		if len(trav) != 1 {
			return nil, fmt.Errorf("input reference %s must be a bare value name", hclwrite.TokensForTraversal(trav).Bytes())
		}
		names = append(names, trav.RootName())
	}
	return names, nil
}

func dimsValue(dims []opgraph.Dim) cty.Value {
	vals := make([]cty.Value, len(dims))
	for i, d := range dims {
		if d.IsSymbolic() {
			vals[i] = cty.StringVal(d.Param)
		} else {
			vals[i] = cty.NumberIntVal(int64(d.Value))
		}
	}
	return cty.TupleVal(vals)
}

func dimsFromValue(v cty.Value) ([]opgraph.Dim, error) {
	if v.IsNull() || !v.IsKnown() || !v.CanIterateElements() {
		return nil, fmt.Errorf("shape must be a list of names and sizes")
	}
	var dims []opgraph.Dim
	for it := v.ElementIterator(); it.Next(); {
		_, el := it.Element()
		switch el.Type() {
		case cty.String:
			dims = append(dims, opgraph.Sym(el.AsString()))
		case cty.Number:
			var n int
			if err := gocty.FromCtyValue(el, &n); err != nil {
				return nil, fmt.Errorf("shape dimension: %w", err)
			}
			dims = append(dims, opgraph.Fixed(n))
		default:
			return nil, fmt.Errorf("shape dimension of type %s", el.Type().FriendlyName())
		}
	}
	return dims, nil
}

func intsValue(v []int) cty.Value {
	vals := make([]cty.Value, len(v))
	for i, x := range v {
		vals[i] = cty.NumberIntVal(int64(x))
	}
	return listOrEmpty(vals)
}

func listOrEmpty(vals []cty.Value) cty.Value {
	if len(vals) == 0 {
		return cty.ListValEmpty(cty.Number)
	}
	return cty.ListVal(vals)
}
