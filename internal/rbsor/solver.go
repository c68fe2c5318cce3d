// Package rbsor is the array-based reference implementation of the red-black
// successive over-relaxation sweep for the discrete Poisson equation.
//
// Each sweep is two half-steps. The red half-step computes
// J = 0.25*(neighbor_sum(U) - F) from the current estimate and moves only the
// red cells, U <- U + ((J-U)*omega)*R. The black half-step then recomputes J
// from the freshly updated U and moves the black cells. Within one half-step
// no cell reads another cell of its own colour, so the cells can be updated in
// any order; WithWorkers splits each half-step into row bands that run
// concurrently and produce bit-identical results.
package rbsor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/wcctgo/internal/ctxlog"
	"github.com/specialistvlad/wcctgo/internal/grid"
	"github.com/specialistvlad/wcctgo/internal/sweep"
)

// Name identifies this evaluator in logs and metrics.
const Name = "rbsor"

// Observer is called after every completed sweep with the 1-based step index
// and the current estimate. The grid must not be retained or modified.
type Observer func(step int, u *grid.Grid)

// Solver performs red-black over-relaxation sweeps directly over grids.
type Solver struct {
	omega   float64
	workers int
}

// Option configures a Solver.
type Option func(*Solver)

// WithWorkers sets how many row bands each half-step is split into. Values
// below 2 keep the sweep sequential.
func WithWorkers(n int) Option {
	return func(s *Solver) {
		if n < 1 {
			n = 1
		}
		s.workers = n
	}
}

// New creates a solver for relaxation factor omega. Omega is not range
// checked: values outside (0, 2) are allowed and may diverge.
func New(omega float64, opts ...Option) *Solver {
	s := &Solver{omega: omega, workers: 1}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Omega returns the relaxation factor.
func (s *Solver) Omega() float64 { return s.omega }

// Name implements sweep.Evaluator.
func (s *Solver) Name() string { return Name }

// Evaluate implements sweep.Evaluator. It sweeps a copy of in.U.
func (s *Solver) Evaluate(ctx context.Context, in sweep.Inputs, steps int) (*grid.Grid, error) {
	return s.EvaluateObserved(ctx, in, steps, nil)
}

// EvaluateObserved is Evaluate with a per-sweep callback.
func (s *Solver) EvaluateObserved(ctx context.Context, in sweep.Inputs, steps int, observe Observer) (*grid.Grid, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if steps < 0 {
		return nil, fmt.Errorf("%w: got %d", sweep.ErrNegativeSteps, steps)
	}
	logger := ctxlog.FromContext(ctx)

	u := in.U.Clone()
	if !u.HasInterior() {
		logger.Debug("Grid has no interior cells, sweeps are a no-op.", "n", u.N, "steps", steps)
		if observe != nil {
			for step := 1; step <= steps; step++ {
				observe(step, u)
			}
		}
		return u, nil
	}

	scratch := &grid.Grid{N: u.N, Data: make([]float64, len(u.Data))}
	for step := 1; step <= steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("rbsor: canceled after %d of %d sweeps: %w", step-1, steps, err)
		}
		if err := s.sweep(ctx, u, in.F, in.R, in.B, scratch); err != nil {
			return nil, err
		}
		if observe != nil {
			observe(step, u)
		}
	}
	logger.Debug("Reference sweeps finished.", "n", u.N, "steps", steps, "omega", s.omega, "workers", s.workers)
	return u, nil
}

// Sweep performs one full red-black sweep on u in place.
func (s *Solver) Sweep(u, f, r, b *grid.Grid) error {
	if err := (sweep.Inputs{U: u, F: f, R: r, B: b}).Validate(); err != nil {
		return err
	}
	if !u.HasInterior() {
		return nil
	}
	scratch := &grid.Grid{N: u.N, Data: make([]float64, len(u.Data))}
	return s.sweep(context.Background(), u, f, r, b, scratch)
}

func (s *Solver) sweep(ctx context.Context, u, f, r, b, j *grid.Grid) error {
	if err := s.halfStep(ctx, u, f, r, j); err != nil {
		return err
	}
	return s.halfStep(ctx, u, f, b, j)
}

// halfStep computes J for every cell from the current u and then applies the
// masked relaxation. J is fully materialised before any cell moves, which is
// what makes the update independent of traversal order.
func (s *Solver) halfStep(ctx context.Context, u, f, mask, j *grid.Grid) error {
	if err := s.forBands(ctx, u.N, func(lo, hi int) {
		jacobiRows(j, u, f, lo, hi)
	}); err != nil {
		return err
	}
	return s.forBands(ctx, u.N, func(lo, hi int) {
		relaxRows(u, j, mask, s.omega, lo, hi)
	})
}

func (s *Solver) forBands(ctx context.Context, n int, fn func(lo, hi int)) error {
	if s.workers < 2 || n < 2*s.workers {
		fn(0, n)
		return nil
	}
	g, _ := errgroup.WithContext(ctx)
	band := (n + s.workers - 1) / s.workers
	for lo := 0; lo < n; lo += band {
		lo, hi := lo, min(lo+band, n)
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	return g.Wait()
}

// jacobiRows writes J = (neighbor_sum(u) - f) * 0.25 for rows [lo, hi).
func jacobiRows(j, u, f *grid.Grid, lo, hi int) {
	grid.NeighborSumRows(j, u, lo, hi)
	n := u.N
	for k := lo * n; k < hi*n; k++ {
		j.Data[k] = (j.Data[k] - f.Data[k]) * 0.25
	}
}

// relaxRows applies u <- u + ((j-u)*omega)*mask for rows [lo, hi).
func relaxRows(u, j, mask *grid.Grid, omega float64, lo, hi int) {
	n := u.N
	for k := lo * n; k < hi*n; k++ {
		u.Data[k] = u.Data[k] + ((j.Data[k]-u.Data[k])*omega)*mask.Data[k]
	}
}

var _ sweep.Evaluator = (*Solver)(nil)
