// Package server exposes the solver and the field simulator over HTTP.
//
// Routes:
//
//	GET  /healthz        - liveness
//	POST /solve          - parity solve: reference sweeps against the graph runner
//	POST /v1/xi/step     - field simulation summary
//	POST /v1/xi/series   - field simulation summary plus the whole xi series
//	POST /v1/xi/plot     - PNG chart of the xi series
//	GET  /v1/graph       - the relaxation graph as HCL text
//	GET  /metrics        - Prometheus metrics
//	ANY  /socket.io/*any - xi streaming, when a stream handler is configured
//
// Request fields omitted from a JSON body take the configured defaults.
// Non-finite metrics, which a diverging omega produces, are encoded as null.
package server
