// Package telemetry owns the Prometheus collectors exposed by the API. Every
// Metrics value has its own registry, so servers and tests never share state.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wcct"

// Metrics groups the service collectors.
type Metrics struct {
	registry *prometheus.Registry

	// requestsTotal counts HTTP requests by route, method and status code
	requestsTotal *prometheus.CounterVec
	// requestDuration tracks HTTP latency per route
	requestDuration *prometheus.HistogramVec

	solvesTotal  *prometheus.CounterVec
	solveSeconds *prometheus.HistogramVec
	parity       *prometheus.GaugeVec
	truthError   prometheus.Gauge

	xiRuns       *prometheus.CounterVec
	xiLast       prometheus.Gauge
	streamActive prometheus.Gauge
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"route"}),
		solvesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solves_total",
			Help:      "Parity solves by runner and outcome",
		}, []string{"runner", "outcome"}),
		solveSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_duration_seconds",
			Help:      "Parity solve duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"runner"}),
		parity: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "parity_relative_error",
			Help:      "Relative error between graph and reference of the last solve",
		}, []string{"runner"}),
		truthError: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "truth_relative_error",
			Help:      "Relative error between reference and analytic truth of the last solve",
		}),
		xiRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xi_runs_total",
			Help:      "Field simulations by mode and outcome",
		}, []string{"mode", "outcome"}),
		xiLast: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "xi_final",
			Help:      "Final coherence of the last field simulation",
		}),
		streamActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected streaming clients",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveSolve records a parity solve. Non-finite metrics are still
// exported; Prometheus represents them as NaN or +Inf.
func (m *Metrics) ObserveSolve(runner string, elapsed time.Duration, parity, truthError float64, err error) {
	m.solveSeconds.WithLabelValues(runner).Observe(elapsed.Seconds())
	if err != nil {
		m.solvesTotal.WithLabelValues(runner, "error").Inc()
		return
	}
	m.solvesTotal.WithLabelValues(runner, "ok").Inc()
	m.parity.WithLabelValues(runner).Set(parity)
	m.truthError.Set(truthError)
}

// ObserveXi records a field simulation run.
func (m *Metrics) ObserveXi(mode string, final float64, err error) {
	if err != nil {
		m.xiRuns.WithLabelValues(mode, "error").Inc()
		return
	}
	m.xiRuns.WithLabelValues(mode, "ok").Inc()
	m.xiLast.Set(final)
}

// StreamConnected adjusts the connected-clients gauge by delta.
func (m *Metrics) StreamConnected(delta int) {
	m.streamActive.Add(float64(delta))
}
