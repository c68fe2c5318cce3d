package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/specialistvlad/wcctgo/internal/server"
	"github.com/specialistvlad/wcctgo/internal/stream"
	"github.com/specialistvlad/wcctgo/internal/telemetry"
)

// Serve runs the HTTP API, and the streaming endpoint when enabled, until
// ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	ctx = a.Context(ctx)
	a.logger.Debug("App.Serve method started.")

	ev, runner, err := a.Evaluator()
	if err != nil {
		return err
	}
	metrics := telemetry.New()
	if a.model.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	var streamHandler http.Handler
	if a.model.Server.Streaming {
		streamSrv := stream.NewServer(ctx, stream.ParamsFrom(a.FieldParams(), a.model.Field.PhaseOffset), stream.WithHooks(metrics))
		defer streamSrv.Close()
		streamHandler = streamSrv.Handler()
	} else {
		a.logger.Warn("Streaming disabled, socket.io endpoint not mounted.")
	}

	srv, err := server.New(ctx, server.Options{
		Solver:     ev,
		RunnerName: runner,
		Defaults:   a.model,
		Metrics:    metrics,
		Stream:     streamHandler,
	})
	if err != nil {
		return err
	}

	if err := srv.ListenAndServe(ctx, a.model.Server.Addr, a.model.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("serve failed: %w", err)
	}
	a.logger.Debug("App.Serve method finished.")
	return nil
}
