// Package field evolves a scalar field on a periodic square lattice under a
// discretized phi^4 Langevin-type update and tracks the phase-coherence
// order parameter xi after every step.
//
// The initial field is drawn once from a seeded normal distribution; the
// evolution itself is deterministic, so equal parameters always yield a
// bit-identical xi series.
package field

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"

	"github.com/specialistvlad/wcctgo/internal/ctxlog"
)

const (
	// DefaultPhaseOffset is added to phi before taking its phase, so that an
	// exact zero never has an undefined angle.
	DefaultPhaseOffset = 1e-9

	// InitialScale multiplies the standard normal draws of the initial field.
	InitialScale = 0.05
)

// ErrInvalidParams is returned for parameters no run can be built from.
var ErrInvalidParams = errors.New("field: invalid parameters")

// Params selects one simulation.
type Params struct {
	N      int
	Steps  int
	Lambda float64
	M2     float64
	Dt     float64
	Seed   uint64
}

// Validate reports the first unusable parameter.
func (p Params) Validate() error {
	switch {
	case p.N < 1:
		return fmt.Errorf("%w: N must be positive, got %d", ErrInvalidParams, p.N)
	case p.Steps < 1:
		return fmt.Errorf("%w: steps must be positive, got %d", ErrInvalidParams, p.Steps)
	case !finite(p.Lambda):
		return fmt.Errorf("%w: lambda is %v", ErrInvalidParams, p.Lambda)
	case !finite(p.M2):
		return fmt.Errorf("%w: m2 is %v", ErrInvalidParams, p.M2)
	case !finite(p.Dt):
		return fmt.Errorf("%w: dt is %v", ErrInvalidParams, p.Dt)
	}
	return nil
}

// Result is the output of one run.
type Result struct {
	// Xi holds one value per step, in step order.
	Xi    []float64
	Final float64
	Mean  float64
	Steps int
}

// Observer receives xi after every step; t starts at 1.
type Observer func(t int, xi float64)

// Option configures a run.
type Option func(*runOptions)

type runOptions struct {
	delta    float64
	observer Observer
}

// WithPhaseOffset replaces DefaultPhaseOffset.
func WithPhaseOffset(delta float64) Option {
	return func(o *runOptions) { o.delta = delta }
}

// WithObserver streams xi values as they are computed.
func WithObserver(fn Observer) Option {
	return func(o *runOptions) { o.observer = fn }
}

// Run simulates p.Steps steps and returns the xi series. Cancellation is
// checked between steps.
func Run(ctx context.Context, p Params, opts ...Option) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	o := runOptions{delta: DefaultPhaseOffset}
	for _, opt := range opts {
		opt(&o)
	}
	logger := ctxlog.FromContext(ctx)

	phi := Initial(p.N, p.Seed)
	next := make([]float64, len(phi))
	xi := make([]float64, 0, p.Steps)
	for t := 1; t <= p.Steps; t++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("field: canceled after %d of %d steps: %w", t-1, p.Steps, err)
		}
		Step(next, phi, p.N, p.Dt, p.M2, p.Lambda)
		phi, next = next, phi

		x := Coherence(phi, o.delta)
		xi = append(xi, x)
		if o.observer != nil {
			o.observer(t, x)
		}
	}

	res := &Result{Xi: xi, Final: xi[len(xi)-1], Mean: stat.Mean(xi, nil), Steps: p.Steps}
	logger.Debug("Field run finished.", "n", p.N, "steps", p.Steps, "seed", p.Seed, "xi_final", res.Final, "xi_mean", res.Mean)
	return res, nil
}

// Initial draws the N*N starting field, row-major, from a PCG source seeded
// with seed.
func Initial(n int, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed))
	phi := make([]float64, n*n)
	for k := range phi {
		phi[k] = rng.NormFloat64() * InitialScale
	}
	return phi
}

// Step writes one update of phi into dst:
// dst = phi + dt*(lap(phi) - m2*phi - lambda*phi^3), with a periodic
// four-neighbour Laplacian.
func Step(dst, phi []float64, n int, dt, m2, lambda float64) {
	for i := 0; i < n; i++ {
		up := ((i - 1 + n) % n) * n
		down := ((i + 1) % n) * n
		row := i * n
		for j := 0; j < n; j++ {
			left := (j - 1 + n) % n
			right := (j + 1) % n
			v := phi[row+j]
			lap := phi[up+j] + phi[down+j] + phi[row+left] + phi[row+right] - 4*v
			dst[row+j] = v + dt*(lap-m2*v-lambda*v*v*v)
		}
	}
}

// Coherence returns |mean(exp(i*angle(phi+delta)))|. For a real field the
// phase is 0 or pi, so this is the imbalance between the signs of phi.
func Coherence(phi []float64, delta float64) float64 {
	var sum complex128
	for _, v := range phi {
		sum += cmplx.Exp(complex(0, cmplx.Phase(complex(v+delta, 0))))
	}
	xi := cmplx.Abs(sum / complex(float64(len(phi)), 0))
	// Rounding can push a fully coherent field a hair above 1.
	return math.Min(xi, 1)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
