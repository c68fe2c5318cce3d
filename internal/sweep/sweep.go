// Package sweep defines the contract shared by every implementation of the
// red-black over-relaxation sweep. The array-based reference solver and the
// computation-graph path both satisfy Evaluator and are compared only through
// it; neither implementation calls into the other.
package sweep

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/wcctgo/internal/grid"
)

var (
	// ErrMissingInput is returned when one of U, F, R, B is nil.
	ErrMissingInput = errors.New("sweep: missing input grid")

	// ErrNegativeSteps is returned when a negative sweep count is requested.
	ErrNegativeSteps = errors.New("sweep: steps must not be negative")
)

// Inputs holds the four grids a sweep consumes. Evaluators never mutate them;
// U is copied before the first sweep.
type Inputs struct {
	U *grid.Grid
	F *grid.Grid
	R *grid.Grid
	B *grid.Grid
}

// Validate checks that all grids are present and share one side length.
func (in Inputs) Validate() error {
	named := []struct {
		name string
		g    *grid.Grid
	}{{"U", in.U}, {"F", in.F}, {"R", in.R}, {"B", in.B}}
	for _, x := range named {
		if x.g == nil {
			return fmt.Errorf("%w: %s", ErrMissingInput, x.name)
		}
	}
	for _, x := range named[1:] {
		if !in.U.SameShape(x.g) {
			return fmt.Errorf("%w: U is %dx%d, %s is %dx%d", grid.ErrSizeMismatch, in.U.N, in.U.N, x.name, x.g.N, x.g.N)
		}
	}
	return nil
}

// FromProblem returns the inputs of a test problem, starting from its U0.
func FromProblem(p *grid.Problem) Inputs {
	return Inputs{U: p.U0, F: p.F, R: p.R, B: p.B}
}

// Evaluator performs a number of complete red-black sweeps starting from
// in.U and returns the resulting estimate as a new grid.
type Evaluator interface {
	// Name identifies the implementation in logs and metrics.
	Name() string
	// Evaluate runs exactly steps sweeps. steps == 0 returns a copy of in.U.
	Evaluate(ctx context.Context, in Inputs, steps int) (*grid.Grid, error)
}
