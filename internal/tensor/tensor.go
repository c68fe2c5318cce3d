// Package tensor holds the dense NCHW float64 value exchanged with graph
// runners. Grids enter the graph world as [1,1,N,N] tensors.
package tensor

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/specialistvlad/wcctgo/internal/grid"
)

// ErrShape is returned for malformed shapes or data of the wrong length.
var ErrShape = errors.New("tensor: invalid shape")

// Tensor is a dense row-major tensor.
type Tensor struct {
	shape []int
	data  []float64
}

// New creates a tensor of the given shape, copying data. A nil data slice
// allocates zeros.
func New(shape []int, data []float64) (*Tensor, error) {
	size, err := numel(shape)
	if err != nil {
		return nil, err
	}
	buf := make([]float64, size)
	if data != nil {
		if len(data) != size {
			return nil, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(data), shape)
		}
		copy(buf, data)
	}
	return &Tensor{shape: slices.Clone(shape), data: buf}, nil
}

// Scalar returns a rank-0 tensor.
func Scalar(v float64) *Tensor {
	return &Tensor{shape: []int{}, data: []float64{v}}
}

// FromGrid copies g into a [1,1,N,N] tensor.
func FromGrid(g *grid.Grid) *Tensor {
	return &Tensor{shape: []int{1, 1, g.N, g.N}, data: slices.Clone(g.Data)}
}

// ToGrid copies a [1,1,N,N] tensor back into a grid.
func (t *Tensor) ToGrid() (*grid.Grid, error) {
	if len(t.shape) != 4 || t.shape[0] != 1 || t.shape[1] != 1 || t.shape[2] != t.shape[3] {
		return nil, fmt.Errorf("%w: expected [1 1 N N], got %v", ErrShape, t.shape)
	}
	return grid.FromData(t.shape[2], slices.Clone(t.data))
}

// Shape returns a copy of the dimensions.
func (t *Tensor) Shape() []int { return slices.Clone(t.shape) }

// Rank is the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// Len is the number of elements.
func (t *Tensor) Len() int { return len(t.data) }

// Data exposes the backing slice. Callers that do not own the tensor must
// treat it as read-only.
func (t *Tensor) Data() []float64 { return t.data }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{shape: slices.Clone(t.shape), data: slices.Clone(t.data)}
}

// Equal reports identical shapes and bit-identical elements.
func (t *Tensor) Equal(o *Tensor) bool {
	if o == nil || !slices.Equal(t.shape, o.shape) {
		return false
	}
	for k := range t.data {
		if math.Float64bits(t.data[k]) != math.Float64bits(o.data[k]) {
			return false
		}
	}
	return true
}

func numel(shape []int) (int, error) {
	size := 1
	for _, d := range shape {
		if d < 1 {
			return 0, fmt.Errorf("%w: non-positive dimension in %v", ErrShape, shape)
		}
		size *= d
	}
	return size, nil
}
