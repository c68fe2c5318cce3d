package stream

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/zishang520/socket.io/v2/socket"

	"github.com/specialistvlad/wcctgo/internal/ctxlog"
	"github.com/specialistvlad/wcctgo/internal/field"
)

// Hooks receives connection and run events, typically for metrics.
type Hooks interface {
	StreamConnected(delta int)
	ObserveXi(mode string, final float64, err error)
}

type noHooks struct{}

func (noHooks) StreamConnected(int) {}
func (noHooks) ObserveXi(string, float64, error) {}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithHooks installs run and connection hooks.
func WithHooks(h Hooks) ServerOption {
	return func(s *Server) {
		if h != nil {
			s.hooks = h
		}
	}
}

// Server is a socket.io endpoint that runs field simulations on request.
type Server struct {
	io       *socket.Server
	handler  http.Handler
	defaults Params
	hooks    Hooks
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewServer creates a streaming server. Runs inherit ctx, including its
// logger, and stop when ctx is canceled or Close is called.
func NewServer(ctx context.Context, defaults Params, opts ...ServerOption) *Server {
	runCtx, cancel := context.WithCancel(ctx)
	s := &Server{
		defaults: defaults,
		hooks:    noHooks{},
		logger:   ctxlog.FromContext(ctx).With("component", "stream"),
		ctx:      runCtx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	c := socket.DefaultServerOptions()
	c.SetServeClient(false)
	s.io = socket.NewServer(nil, nil)
	s.io.On("connection", func(clients ...any) {
		if len(clients) == 0 {
			return
		}
		client, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		s.connect(client)
	})
	s.handler = s.io.ServeHandler(c)
	return s
}

// Handler serves the socket.io protocol; mount it under /socket.io/.
func (s *Server) Handler() http.Handler { return s.handler }

// Close cancels running simulations, disconnects every client and waits for
// the simulation goroutines to return.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.io.Close(nil)
	s.wg.Wait()
	s.logger.Debug("Streaming server closed.")
}

func (s *Server) connect(client *socket.Socket) {
	logger := s.logger.With("sid", client.Id())
	connCtx, cancel := context.WithCancel(s.ctx)
	connCtx = ctxlog.WithLogger(connCtx, logger)
	s.hooks.StreamConnected(1)
	logger.Debug("Client connected.")

	client.On(EventRun, func(data ...any) {
		s.start(connCtx, client, data)
	})
	client.On("disconnect", func(reason ...any) {
		cancel()
		s.hooks.StreamConnected(-1)
		logger.Debug("Client disconnected.", "reason", reason)
	})
}

func (s *Server) start(ctx context.Context, client *socket.Socket, data []any) {
	logger := ctxlog.FromContext(ctx)
	p := s.defaults
	if err := decode(data, &p); err != nil {
		logger.Warn("Rejected malformed run request.", "error", err)
		s.emit(logger, client, EventError, Failure{Error: err.Error()})
		return
	}
	if err := p.Field().Validate(); err != nil {
		logger.Warn("Rejected run request.", "error", err)
		s.hooks.ObserveXi("stream", 0, err)
		s.emit(logger, client, EventError, Failure{Error: err.Error()})
		return
	}

	if !s.begin() {
		logger.Warn("Rejected run request, server is closing.")
		s.emit(logger, client, EventError, Failure{Error: "server is closing"})
		return
	}
	runID := uuid.NewString()
	go func() {
		defer s.wg.Done()
		logger := logger.With("run_id", runID)
		logger.Info("Streaming field run started.", "n", p.N, "steps", p.Steps, "seed", p.Seed)

		res, err := field.Run(ctxlog.WithLogger(ctx, logger), p.Field(),
			field.WithPhaseOffset(p.PhaseOffset),
			field.WithObserver(func(t int, xi float64) {
				s.emit(logger, client, EventStep, Step{RunID: runID, T: t, Xi: xi})
			}),
		)
		if err != nil {
			s.hooks.ObserveXi("stream", 0, err)
			logger.Warn("Streaming field run failed.", "error", err)
			s.emit(logger, client, EventError, Failure{RunID: runID, Error: err.Error()})
			return
		}
		s.hooks.ObserveXi("stream", res.Final, nil)
		s.emit(logger, client, EventDone, Done{RunID: runID, XiFinal: res.Final, XiMean: res.Mean, Steps: res.Steps})
		logger.Info("Streaming field run finished.", "xi_final", res.Final)
	}()
}

// begin registers a simulation goroutine unless the server is closing.
func (s *Server) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) emit(logger *slog.Logger, client *socket.Socket, event string, payload any) {
	if err := client.Emit(event, payload); err != nil {
		logger.Warn("Failed to emit event.", "event", event, "error", err)
	}
}
