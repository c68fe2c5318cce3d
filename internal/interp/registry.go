package interp

import (
	"fmt"

	"github.com/specialistvlad/wcctgo/internal/opgraph"
	"github.com/specialistvlad/wcctgo/internal/tensor"
)

// Kernel evaluates one node given its resolved input tensors.
type Kernel func(n opgraph.Node, args []*tensor.Tensor, p precision) (*tensor.Tensor, error)

// registry maps op types to kernels.
type registry map[opgraph.Op]Kernel

func (r registry) register(op opgraph.Op, k Kernel) {
	if _, exists := r[op]; exists {
		panic(fmt.Sprintf("interp: duplicate kernel for op %q", op))
	}
	r[op] = k
}

func defaultRegistry() registry {
	r := registry{}
	r.register(opgraph.OpConstant, constantKernel)
	r.register(opgraph.OpConv, convKernel)
	r.register(opgraph.OpSub, elementwise(func(a, b float64) float64 { return a - b }))
	r.register(opgraph.OpMul, elementwise(func(a, b float64) float64 { return a * b }))
	r.register(opgraph.OpAdd, elementwise(func(a, b float64) float64 { return a + b }))
	return r
}
