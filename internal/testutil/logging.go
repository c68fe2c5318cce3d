package testutil

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/specialistvlad/wcctgo/internal/ctxlog"
)

// LogsEnv makes helpers print the captured log output of every test.
const LogsEnv = "WCCT_TEST_LOGS"

// LogContext returns a context carrying a debug-level text logger that writes
// into the returned buffer. The output is printed when the test fails or when
// LogsEnv is "true".
func LogContext(t *testing.T) (context.Context, *SafeBuffer) {
	t.Helper()
	buf := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	t.Cleanup(func() {
		if t.Failed() || os.Getenv(LogsEnv) == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), buf.String())
		}
	})
	return ctxlog.WithLogger(context.Background(), logger), buf
}
