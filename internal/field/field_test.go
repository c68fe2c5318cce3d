package field

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioB() Params {
	return Params{N: 96, Steps: 150, Lambda: 0.2, M2: 0, Dt: 0.1, Seed: 42}
}

func TestRun_ScenarioB(t *testing.T) {
	res, err := Run(context.Background(), scenarioB())
	require.NoError(t, err)

	assert.Equal(t, 150, res.Steps)
	require.Len(t, res.Xi, 150)
	assert.GreaterOrEqual(t, res.Final, 0.0)
	assert.Less(t, res.Final, 0.5)
	assert.GreaterOrEqual(t, res.Mean, 0.0)
	assert.Less(t, res.Mean, 0.5)
	assert.Equal(t, res.Xi[149], res.Final)
}

func TestRun_Deterministic(t *testing.T) {
	p := Params{N: 32, Steps: 40, Lambda: 0.2, M2: 0.1, Dt: 0.1, Seed: 7}
	a, err := Run(context.Background(), p)
	require.NoError(t, err)
	b, err := Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, a.Xi, b.Xi)

	p.Seed = 8
	c, err := Run(context.Background(), p)
	require.NoError(t, err)
	assert.NotEqual(t, a.Xi, c.Xi)
}

func TestRun_XiIsBounded(t *testing.T) {
	for _, p := range []Params{
		scenarioB(),
		{N: 1, Steps: 5, Lambda: 0.2, Dt: 0.1, Seed: 1},
		{N: 8, Steps: 60, Lambda: 1, M2: -0.5, Dt: 0.05, Seed: 3},
	} {
		res, err := Run(context.Background(), p)
		require.NoError(t, err)
		for step, xi := range res.Xi {
			assert.GreaterOrEqual(t, xi, 0.0, "step %d", step)
			assert.LessOrEqual(t, xi, 1.0, "step %d", step)
		}
	}
}

func TestRun_SingleSiteIsFullyCoherent(t *testing.T) {
	res, err := Run(context.Background(), Params{N: 1, Steps: 3, Lambda: 0.2, Dt: 0.1, Seed: 42})
	require.NoError(t, err)
	for _, xi := range res.Xi {
		assert.InDelta(t, 1.0, xi, 1e-15)
	}
}

func TestRun_Observer(t *testing.T) {
	var steps []int
	var seen []float64
	res, err := Run(context.Background(), Params{N: 16, Steps: 12, Lambda: 0.2, Dt: 0.1, Seed: 5},
		WithObserver(func(step int, xi float64) {
			steps = append(steps, step)
			seen = append(seen, xi)
		}))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, steps)
	assert.Equal(t, res.Xi, seen)
}

func TestRun_InvalidParams(t *testing.T) {
	valid := Params{N: 4, Steps: 2, Lambda: 0.2, Dt: 0.1}
	testCases := []struct {
		name   string
		mutate func(p *Params)
	}{
		{"zero N", func(p *Params) { p.N = 0 }},
		{"zero steps", func(p *Params) { p.Steps = 0 }},
		{"NaN dt", func(p *Params) { p.Dt = math.NaN() }},
		{"Inf lambda", func(p *Params) { p.Lambda = math.Inf(1) }},
		{"NaN m2", func(p *Params) { p.M2 = math.NaN() }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			tc.mutate(&p)
			_, err := Run(context.Background(), p)
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, scenarioB())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStep_PeriodicLaplacian(t *testing.T) {
	phi := []float64{
		1, 0, 0,
		0, 0, 0,
		0, 0, 0,
	}
	dst := make([]float64, 9)
	Step(dst, phi, 3, 1, 0, 0)

	// The spike spreads to its four wrapped neighbours.
	assert.Equal(t, []float64{
		-3, 1, 1,
		1, 0, 0,
		1, 0, 0,
	}, dst)

	Step(dst, []float64{2}, 1, 0.5, 1, 1)
	assert.Equal(t, 2+0.5*(0-2-8), dst[0])
}

func TestCoherence(t *testing.T) {
	assert.InDelta(t, 1.0, Coherence([]float64{1, 2, 3}, DefaultPhaseOffset), 1e-15)
	assert.InDelta(t, 1.0, Coherence([]float64{-1, -2}, DefaultPhaseOffset), 1e-15)
	assert.InDelta(t, 0.0, Coherence([]float64{1, -1}, DefaultPhaseOffset), 1e-15)
	assert.InDelta(t, 0.5, Coherence([]float64{1, 1, 1, -1}, DefaultPhaseOffset), 1e-15)
	// Zero takes the sign of the offset.
	assert.InDelta(t, 1.0, Coherence([]float64{0, 0}, DefaultPhaseOffset), 1e-15)
	assert.InDelta(t, 1.0, Coherence([]float64{0, 0}, -DefaultPhaseOffset), 1e-15)
	assert.InDelta(t, 0.0, Coherence([]float64{0, 1}, -DefaultPhaseOffset), 1e-15)
}

func TestInitial(t *testing.T) {
	a := Initial(10, 42)
	b := Initial(10, 42)
	assert.Equal(t, a, b)
	require.Len(t, a, 100)
	var sq float64
	for _, v := range a {
		sq += v * v
	}
	rms := math.Sqrt(sq / 100)
	assert.InDelta(t, InitialScale, rms, 0.02)
}
