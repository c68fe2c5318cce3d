// Package parity runs the array-based reference solver and the graph-based
// evaluator over identical inputs and measures how far apart they are, and
// how far the reference is from the analytic solution.
package parity

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/specialistvlad/wcctgo/internal/ctxlog"
	"github.com/specialistvlad/wcctgo/internal/grid"
	"github.com/specialistvlad/wcctgo/internal/sweep"
)

// DefaultEpsilon guards the relative-error denominators.
const DefaultEpsilon = 1e-12

// ErrInvalidSteps is returned for negative sweep counts.
var ErrInvalidSteps = errors.New("parity: steps must not be negative")

// Metrics is the outcome of one comparison.
type Metrics struct {
	// Parity is ||Uref-Ugraph|| / (||Uref||+eps).
	Parity float64
	// TruthError is ||Uref-Truth|| / (||Truth||+eps).
	TruthError float64
	Mean       float64
	Std        float64
	Iterations int
	// GraphPath is where the graph was persisted, empty when it was not.
	GraphPath string
	// History holds the truth error after each reference sweep, when requested.
	History []float64
}

// RelativeError returns ||a-b||_2 / (||b||_2 + eps), b being the baseline. NaN or Inf in either
// input surfaces in the result.
func RelativeError(a, b []float64, eps float64) float64 {
	diff := make([]float64, len(a))
	floats.SubTo(diff, a, b)
	return floats.Norm(diff, 2) / (floats.Norm(b, 2) + eps)
}

// Compare runs ref and cand for steps sweeps over the problem's inputs and
// computes the metrics. The candidate's errors are returned unchanged.
func Compare(ctx context.Context, p *grid.Problem, ref, cand sweep.Evaluator, steps int, eps float64) (*Metrics, error) {
	if steps < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSteps, steps)
	}
	logger := ctxlog.FromContext(ctx)
	in := sweep.FromProblem(p)

	uRef, err := ref.Evaluate(ctx, in, steps)
	if err != nil {
		return nil, fmt.Errorf("parity: %s: %w", ref.Name(), err)
	}
	uCand, err := cand.Evaluate(ctx, in, steps)
	if err != nil {
		return nil, fmt.Errorf("parity: %s: %w", cand.Name(), err)
	}
	if !uRef.SameShape(uCand) {
		return nil, fmt.Errorf("parity: %s returned %dx%d, %s returned %dx%d: %w",
			ref.Name(), uRef.N, uRef.N, cand.Name(), uCand.N, uCand.N, grid.ErrSizeMismatch)
	}

	mean, std := stat.PopMeanStdDev(uRef.Data, nil)
	m := &Metrics{
		Parity:     RelativeError(uCand.Data, uRef.Data, eps),
		TruthError: RelativeError(uRef.Data, p.Truth.Data, eps),
		Mean:       mean,
		Std:        std,
		Iterations: steps,
	}
	if math.IsNaN(m.Parity) || math.IsInf(m.Parity, 0) {
		logger.Warn("Parity is not finite, the iteration probably diverged.", "n", p.N, "steps", steps)
	}
	logger.Debug("Comparison finished.", "reference", ref.Name(), "candidate", cand.Name(), "parity", m.Parity, "truth_error", m.TruthError)
	return m, nil
}
