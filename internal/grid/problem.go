package grid

import "math"

// Problem is the structured Poisson test case on the unit square: the
// analytic solution, its discrete source term, the red/black masks and the
// initial estimate. Only U0 is ever handed out for mutation, and solvers copy
// it before sweeping.
type Problem struct {
	N     int
	Truth *Grid
	F     *Grid
	R     *Grid
	B     *Grid
	U0    *Grid
}

// NewProblem builds the test problem for side length n. Sizes 1 and 2 are
// accepted and yield a problem without interior cells (all masks zero), on
// which every solver is a no-op.
func NewProblem(n int) (*Problem, error) {
	truth, err := New(n)
	if err != nil {
		return nil, err
	}

	// Sample points t_k = k/(N-1); a single-point grid samples t=0.
	t := make([]float64, n)
	if n > 1 {
		for k := range t {
			t[k] = float64(k) / float64(n-1)
		}
	}
	for i := 0; i < n; i++ {
		si := math.Sin(math.Pi * t[i])
		for j := 0; j < n; j++ {
			truth.Set(i, j, si*math.Sin(math.Pi*t[j]))
		}
	}

	f := &Grid{N: n, Data: make([]float64, n*n)}
	if err := NeighborSum(f, truth); err != nil {
		return nil, err
	}
	for i := 1; i < n-1; i++ {
		for j := 1; j < n-1; j++ {
			k := truth.Index(i, j)
			f.Data[k] -= 4.0 * truth.Data[k]
		}
	}

	r, b := Checkerboard(n)
	return &Problem{
		N:     n,
		Truth: truth,
		F:     f,
		R:     r,
		B:     b,
		U0:    &Grid{N: n, Data: make([]float64, n*n)},
	}, nil
}

// Checkerboard returns the red and black indicator masks for side length n.
// Interior cells with even (i+j) are red, odd are black; boundary cells are
// zero in both.
func Checkerboard(n int) (red, black *Grid) {
	red = &Grid{N: n, Data: make([]float64, n*n)}
	black = &Grid{N: n, Data: make([]float64, n*n)}
	for i := 1; i < n-1; i++ {
		for j := 1; j < n-1; j++ {
			if (i+j)%2 == 0 {
				red.Set(i, j, 1)
			} else {
				black.Set(i, j, 1)
			}
		}
	}
	return red, black
}
