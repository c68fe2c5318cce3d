package stream

import (
	"context"
	"encoding/json"
	"math"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/wcctgo/internal/field"
)

type recordingHooks struct {
	mu        sync.Mutex
	connected int
	runs      []error
	finals    []float64
}

func (h *recordingHooks) StreamConnected(delta int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected += delta
}

func (h *recordingHooks) ObserveXi(_ string, final float64, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, err)
	h.finals = append(h.finals, final)
}

func testDefaults() Params {
	return Params{N: 12, Steps: 15, Lambda: 0.2, M2: 0, Dt: 0.1, Seed: 42, PhaseOffset: field.DefaultPhaseOffset}
}

func startServer(t *testing.T, hooks Hooks) string {
	t.Helper()
	srv := NewServer(context.Background(), testDefaults(), WithHooks(hooks))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return ts.URL + "/socket.io/"
}

func TestDecode_KeepsMissingFields(t *testing.T) {
	p := testDefaults()
	require.NoError(t, decode([]any{map[string]any{"steps": 3.0, "seed": 7.0}}, &p))
	assert.Equal(t, 3, p.Steps)
	assert.Equal(t, uint64(7), p.Seed)
	assert.Equal(t, 12, p.N)
	assert.Equal(t, 0.1, p.Dt)

	untouched := testDefaults()
	require.NoError(t, decode(nil, &untouched))
	assert.Equal(t, testDefaults(), untouched)

	assert.Error(t, decode([]any{map[string]any{"steps": "many"}}, &p))
}

func TestParams_FieldRoundTrip(t *testing.T) {
	fp := field.Params{N: 5, Steps: 9, Lambda: 0.3, M2: -0.1, Dt: 0.05, Seed: 11}
	p := ParamsFrom(fp, 1e-6)
	assert.Equal(t, fp, p.Field())
	assert.Equal(t, 1e-6, p.PhaseOffset)
}

func TestWatch_StreamsWholeSeries(t *testing.T) {
	hooks := &recordingHooks{}
	url := startServer(t, hooks)
	ctx := context.Background()

	p := testDefaults()
	want, err := field.Run(ctx, p.Field(), field.WithPhaseOffset(p.PhaseOffset))
	require.NoError(t, err)

	var steps []Step
	done, err := Watch(ctx, WatchOptions{URL: url, Timeout: 20 * time.Second}, p, func(s Step) {
		steps = append(steps, s)
	})
	require.NoError(t, err)
	require.NotNil(t, done)

	assert.Equal(t, p.Steps, done.Steps)
	assert.Equal(t, want.Final, done.XiFinal)
	assert.InDelta(t, want.Mean, done.XiMean, 1e-15)
	assert.NotEmpty(t, done.RunID)

	require.Len(t, steps, p.Steps)
	for i, s := range steps {
		assert.Equal(t, i+1, s.T)
		assert.Equal(t, want.Xi[i], s.Xi, "t=%d", s.T)
		assert.Equal(t, done.RunID, s.RunID)
	}

	assert.Eventually(t, func() bool {
		hooks.mu.Lock()
		defer hooks.mu.Unlock()
		return len(hooks.runs) == 1 && hooks.runs[0] == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatch_ServerRejectsParams(t *testing.T) {
	url := startServer(t, nil)

	p := testDefaults()
	p.Steps = 0
	_, err := Watch(context.Background(), WatchOptions{URL: url, Timeout: 20 * time.Second}, p, nil)
	require.ErrorIs(t, err, ErrRunFailed)
	assert.ErrorContains(t, err, "steps must be positive")
}

func TestWatch_BadURL(t *testing.T) {
	_, err := Watch(context.Background(), WatchOptions{URL: "not a url"}, testDefaults(), nil)
	assert.ErrorContains(t, err, "failed to parse URL")
}

func TestWatch_NoServer(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL + "/socket.io/"
	ts.Close()

	_, err := Watch(context.Background(), WatchOptions{URL: url, Timeout: 2 * time.Second}, testDefaults(), nil)
	assert.Error(t, err)
}

func TestSequencer_SummaryBeforeSteps(t *testing.T) {
	var got []int
	seq := newSequencer(func(s Step) { got = append(got, s.T) })

	assert.False(t, seq.done(Done{RunID: "r1", Steps: 4}))
	assert.False(t, seq.step(Step{RunID: "r1", T: 2}))
	assert.False(t, seq.step(Step{RunID: "other", T: 1}))
	assert.False(t, seq.step(Step{RunID: "r1", T: 1}))
	assert.False(t, seq.step(Step{RunID: "r1", T: 4}))
	assert.False(t, seq.step(Step{RunID: "r1", T: 2}), "duplicates are dropped")
	assert.True(t, seq.step(Step{RunID: "r1", T: 3}))

	assert.Equal(t, []int{1, 2, 3, 4}, got)
	assert.Equal(t, "r1", seq.summary.RunID)
}

func TestSequencer_StepsBeforeSummary(t *testing.T) {
	var got []int
	seq := newSequencer(func(s Step) { got = append(got, s.T) })

	for _, tt := range []int{1, 2, 3} {
		assert.False(t, seq.step(Step{RunID: "r1", T: tt}))
	}
	assert.False(t, seq.done(Done{RunID: "other", Steps: 3}))
	assert.True(t, seq.done(Done{RunID: "r1", Steps: 3}))
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestEvents_NonFiniteTravelAsNull(t *testing.T) {
	raw, err := json.Marshal(Step{RunID: "r", T: 3, Xi: math.NaN()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"run_id":"r","t":3,"xi":null}`, string(raw))

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	var st Step
	require.NoError(t, decode([]any{generic}, &st))
	assert.Equal(t, 3, st.T)
	assert.True(t, math.IsNaN(st.Xi))

	raw, err = json.Marshal(Done{RunID: "r", XiFinal: math.Inf(1), XiMean: 0.25, Steps: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"run_id":"r","xi_final":null,"xi_mean":0.25,"steps":3}`, string(raw))

	var d Done
	require.NoError(t, json.Unmarshal(raw, &d))
	assert.True(t, math.IsNaN(d.XiFinal))
	assert.Equal(t, 0.25, d.XiMean)
}

func TestServer_NoRunsAfterClose(t *testing.T) {
	srv := NewServer(context.Background(), testDefaults())
	require.True(t, srv.begin())
	srv.wg.Done()

	srv.Close()
	assert.False(t, srv.begin())
}
