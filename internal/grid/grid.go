// Package grid builds the structured test problem for the red-black solver:
// square row-major grids, the analytic reference solution, its discrete source
// term and the checkerboard partition masks.
//
// Boundary cells (first/last row and column) are never updated by any solver;
// every interior cell belongs to exactly one colour.
package grid

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidSize is returned when a grid side length is not positive.
	ErrInvalidSize = errors.New("grid: side length must be positive")

	// ErrGridTooSmall is returned by callers that require interior cells (N >= 3).
	ErrGridTooSmall = errors.New("grid: side length must be at least 3")

	// ErrSizeMismatch is returned when two grids that must share a shape do not.
	ErrSizeMismatch = errors.New("grid: size mismatch")
)

// MinInteriorSize is the smallest side length with at least one interior cell.
const MinInteriorSize = 3

// Grid is a square N×N array of float64 stored row-major.
type Grid struct {
	N    int
	Data []float64
}

// New allocates a zero-filled N×N grid.
func New(n int) (*Grid, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, n)
	}
	return &Grid{N: n, Data: make([]float64, n*n)}, nil
}

// FromData wraps an existing row-major slice. The slice is not copied.
func FromData(n int, data []float64) (*Grid, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, n)
	}
	if len(data) != n*n {
		return nil, fmt.Errorf("%w: %d values for a %dx%d grid", ErrSizeMismatch, len(data), n, n)
	}
	return &Grid{N: n, Data: data}, nil
}

// Index returns the flat offset of cell (i, j).
func (g *Grid) Index(i, j int) int { return i*g.N + j }

// At returns the value of cell (i, j).
func (g *Grid) At(i, j int) float64 { return g.Data[i*g.N+j] }

// Set stores v into cell (i, j).
func (g *Grid) Set(i, j int, v float64) { g.Data[i*g.N+j] = v }

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	data := make([]float64, len(g.Data))
	copy(data, g.Data)
	return &Grid{N: g.N, Data: data}
}

// SameShape reports whether g and other have the same side length.
func (g *Grid) SameShape(other *Grid) bool {
	return other != nil && g.N == other.N && len(g.Data) == len(other.Data)
}

// Equal reports bit-for-bit equality. NaN cells compare by bit pattern so two
// identical diverged runs are still equal.
func (g *Grid) Equal(other *Grid) bool {
	if !g.SameShape(other) {
		return false
	}
	for k, v := range g.Data {
		if math.Float64bits(v) != math.Float64bits(other.Data[k]) {
			return false
		}
	}
	return true
}

// HasInterior reports whether the grid has at least one interior cell.
func (g *Grid) HasInterior() bool { return g.N >= MinInteriorSize }

// IsInterior reports whether (i, j) is an interior cell.
func (g *Grid) IsInterior(i, j int) bool {
	return i >= 1 && j >= 1 && i <= g.N-2 && j <= g.N-2
}

// NeighborSum writes the sum of the four axis-aligned neighbours of src into
// dst for every interior cell and zero on the boundary. Neighbours are summed
// in 3×3 kernel order (up, left, right, down).
func NeighborSum(dst, src *Grid) error {
	if !dst.SameShape(src) {
		return fmt.Errorf("%w: dst %d, src %d", ErrSizeMismatch, dst.N, src.N)
	}
	NeighborSumRows(dst, src, 0, src.N)
	return nil
}

// NeighborSumRows is NeighborSum restricted to rows [lo, hi). Shapes are not
// checked; it exists so callers can split the work into independent row bands.
func NeighborSumRows(dst, src *Grid, lo, hi int) {
	n := src.N
	for i := lo; i < hi; i++ {
		row := i * n
		for j := 0; j < n; j++ {
			if i == 0 || j == 0 || i == n-1 || j == n-1 {
				dst.Data[row+j] = 0
				continue
			}
			k := row + j
			dst.Data[k] = src.Data[k-n] + src.Data[k-1] + src.Data[k+1] + src.Data[k+n]
		}
	}
}
