package testutil

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/wcctgo/internal/ctxlog"
)

func TestSafeBuffer_ConcurrentWrites(t *testing.T) {
	var buf SafeBuffer
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = buf.Write([]byte("x"))
		}()
	}
	wg.Wait()
	assert.Equal(t, "xxxxxxxx", buf.String())
	assert.True(t, buf.Contains("xx"))
}

func TestLogContext_CapturesDebug(t *testing.T) {
	ctx, buf := LogContext(t)
	ctxlog.FromContext(ctx).Debug("Probe.", "k", 1)
	assert.True(t, buf.Contains("msg=Probe."))
	assert.True(t, buf.Contains("k=1"))
}

func TestWriteTree(t *testing.T) {
	root := WriteTree(t, map[string]string{
		"a.hcl":     "x = 1",
		"sub/b.hcl":   "y = 2",
	})
	got, err := os.ReadFile(filepath.Join(root, "sub", "b.hcl"))
	require.NoError(t, err)
	assert.Equal(t, "y = 2", string(got))
}
