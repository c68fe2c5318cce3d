package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/specialistvlad/wcctgo/internal/config"
	"github.com/specialistvlad/wcctgo/internal/ctxlog"
	"github.com/specialistvlad/wcctgo/internal/parity"
	"github.com/specialistvlad/wcctgo/internal/telemetry"
)

// Solver runs parity solves; *parity.Evaluator implements it.
type Solver interface {
	Solve(ctx context.Context, req parity.Request) (*parity.Metrics, error)
}

// Options wires a Server.
type Options struct {
	Solver     Solver
	RunnerName string
	// Defaults fill request fields that a body leaves out.
	Defaults config.Model
	// Metrics is created when nil.
	Metrics *telemetry.Metrics
	// Stream, when set, is mounted under /socket.io/.
	Stream http.Handler
}

// Server is the HTTP API.
type Server struct {
	engine   *gin.Engine
	solver   Solver
	runner   string
	defaults config.Model
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// New builds the router. The logger is taken from ctx.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Solver == nil {
		return nil, errors.New("server: a solver is required")
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.New()
	}
	if opts.RunnerName == "" {
		opts.RunnerName = "graph"
	}
	s := &Server{
		engine:   gin.New(),
		solver:   opts.Solver,
		runner:   opts.RunnerName,
		defaults: opts.Defaults,
		metrics:  opts.Metrics,
		logger:   ctxlog.FromContext(ctx),
	}

	s.engine.Use(gin.Recovery(), s.requestContext(), s.observe())
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.POST("/solve", s.handleSolve)
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := s.engine.Group("/v1")
	v1.POST("/xi/step", s.handleXi(false))
	v1.POST("/xi/series", s.handleXi(true))
	v1.POST("/xi/plot", s.handleXiPlot)
	v1.GET("/graph", s.handleGraph)

	if opts.Stream != nil {
		s.engine.Any("/socket.io/*any", gin.WrapH(opts.Stream))
	}
	s.logger.Debug("HTTP routes registered.", "routes", len(s.engine.Routes()), "streaming", opts.Stream != nil)
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.engine }

// Metrics returns the collectors the server records into.
func (s *Server) Metrics() *telemetry.Metrics { return s.metrics }

// ListenAndServe listens on addr and serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully, waiting at most shutdownTimeout for in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctxlog.WithLogger(context.Background(), s.logger) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🌐 API server starting.", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("🌐 Shutting down API server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("API server shutdown failed.", "error", err)
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.logger.Debug("API server shut down gracefully.")
	return <-errCh
}
