package interp

import (
	"fmt"

	"github.com/specialistvlad/wcctgo/internal/opgraph"
	"github.com/specialistvlad/wcctgo/internal/tensor"
)

// precision rounds intermediate results to the graph's element type.
type precision func(float64) float64

func float64Precision(v float64) float64 { return v }

func float32Precision(v float64) float64 { return float64(float32(v)) }

func precisionFor(d opgraph.DType) precision {
	if d == opgraph.Float32 {
		return float32Precision
	}
	return float64Precision
}

func constantKernel(n opgraph.Node, _ []*tensor.Tensor, p precision) (*tensor.Tensor, error) {
	return tensor.Scalar(p(*n.Value)), nil
}

// convKernel is a stride-1 NCHW convolution with zero padding. X is
// [N,C,H,W], K is [M,C,KH,KW]. Products are accumulated from zero in kernel
// order (channel, row, column).
func convKernel(n opgraph.Node, args []*tensor.Tensor, p precision) (*tensor.Tensor, error) {
	x, k := args[0], args[1]
	xs, ks := x.Shape(), k.Shape()
	if len(xs) != 4 || len(ks) != 4 {
		return nil, fmt.Errorf("%w: conv %q needs rank-4 operands, got %v and %v", ErrShape, n.Name, xs, ks)
	}
	if xs[1] != ks[1] {
		return nil, fmt.Errorf("%w: conv %q input has %d channels, kernel expects %d", ErrShape, n.Name, xs[1], ks[1])
	}
	top, left, bottom, right := n.Pads[0], n.Pads[1], n.Pads[2], n.Pads[3]
	batch, channels, h, w := xs[0], xs[1], xs[2], xs[3]
	filters, kh, kw := ks[0], ks[2], ks[3]
	oh, ow := h+top+bottom-kh+1, w+left+right-kw+1
	if oh < 1 || ow < 1 {
		return nil, fmt.Errorf("%w: conv %q kernel %dx%d exceeds padded input %dx%d", ErrShape, n.Name, kh, kw, h+top+bottom, w+left+right)
	}

	out, err := tensor.New([]int{batch, filters, oh, ow}, nil)
	if err != nil {
		return nil, err
	}
	xd, kd, od := x.Data(), k.Data(), out.Data()
	for b := 0; b < batch; b++ {
		for m := 0; m < filters; m++ {
			for i := 0; i < oh; i++ {
				for j := 0; j < ow; j++ {
					acc := 0.0
					for c := 0; c < channels; c++ {
						for di := 0; di < kh; di++ {
							si := i + di - top
							if si < 0 || si >= h {
								continue
							}
							for dj := 0; dj < kw; dj++ {
								sj := j + dj - left
								if sj < 0 || sj >= w {
									continue
								}
								wv := kd[((m*channels+c)*kh+di)*kw+dj]
								xv := xd[((b*channels+c)*h+si)*w+sj]
								acc = p(acc + p(wv*xv))
							}
						}
					}
					od[((b*filters+m)*oh+i)*ow+j] = acc
				}
			}
		}
	}
	return out, nil
}

// elementwise lifts a binary function over tensors of equal shape. A rank-0
// operand broadcasts against the other side.
func elementwise(fn func(a, b float64) float64) Kernel {
	return func(n opgraph.Node, args []*tensor.Tensor, p precision) (*tensor.Tensor, error) {
		a, b := args[0], args[1]
		var shape []int
		switch {
		case a.Rank() == 0:
			shape = b.Shape()
		case b.Rank() == 0:
			shape = a.Shape()
		default:
			if !sameShape(a.Shape(), b.Shape()) {
				return nil, fmt.Errorf("%w: %s %q operands %v and %v", ErrShape, n.Op, n.Name, a.Shape(), b.Shape())
			}
			shape = a.Shape()
		}
		out, err := tensor.New(shape, nil)
		if err != nil {
			return nil, err
		}
		ad, bd, od := a.Data(), b.Data(), out.Data()
		for k := range od {
			av, bv := ad[0], bd[0]
			if a.Rank() != 0 {
				av = ad[k]
			}
			if b.Rank() != 0 {
				bv = bd[k]
			}
			od[k] = p(fn(av, bv))
		}
		return out, nil
	}
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
