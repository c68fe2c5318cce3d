package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/wcctgo/internal/config"
	"github.com/specialistvlad/wcctgo/internal/testutil"
)

type result struct {
	stdout string
	stderr string
	err    error
}

func execute(t *testing.T, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := Execute(context.Background(), args, &stdout, &stderr)
	if err != nil {
		t.Logf("stderr:\n%s", stderr.String())
	}
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	return exitErr.Code
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &out), "stdout: %s", s)
	return out
}

func TestExecute_Help(t *testing.T) {
	r := execute(t, "--help")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "Usage:")
	for _, name := range []string{"serve", "solve", "xi", "graph", "watch"} {
		assert.Contains(t, r.stdout, name)
	}
}

func TestExecute_UsageErrors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"solve", "--no-such-flag"}},
		{"bad flag value", []string{"solve", "--n", "many"}},
		{"unknown command", []string{"bogus"}},
		{"missing argument", []string{"graph", "replay"}},
		{"extra argument", []string{"xi", "extra"}},
		{"invalid runner", []string{"solve", "--runner", "onnx"}},
		{"invalid log level", []string{"xi", "--log-level", "loud"}},
		{"grid too small", []string{"solve", "--n", "2"}},
		{"negative field steps", []string{"xi", "--steps=-1"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := execute(t, tc.args...)
			require.Error(t, r.err)
			assert.Equal(t, ExitUsage, exitCode(t, r.err))
		})
	}
}

func TestExecute_RuntimeFailures(t *testing.T) {
	dir := t.TempDir()

	r := execute(t, "graph", "replay", filepath.Join(dir, "missing.hcl"))
	require.Error(t, r.err)
	assert.Equal(t, ExitFailure, exitCode(t, r.err))
	assert.ErrorIs(t, r.err, os.ErrNotExist)
}

func TestExecute_BadConfigFile(t *testing.T) {
	dir := testutil.WriteTree(t, map[string]string{"broken.hcl": "solver {\n  n = \n"})

	r := execute(t, "--config", dir, "xi", "--n", "4", "--steps", "2")
	require.Error(t, r.err)
	assert.Equal(t, ExitFailure, exitCode(t, r.err))
	assert.Contains(t, r.err.Error(), "failed to parse HCL file")
}

func TestSolve_PrintsMetrics(t *testing.T) {
	dir := t.TempDir()
	plotPath := filepath.Join(dir, "conv.png")

	r := execute(t, "solve", "--n", "16", "--steps", "30", "--history", "--artifacts", dir, "--plot", plotPath)
	require.NoError(t, r.err)

	out := decode(t, r.stdout)
	assert.Equal(t, 0.0, out["onnx_parity"])
	assert.Equal(t, 30.0, out["iters"])
	assert.Equal(t, "interp", out["runner"])
	assert.Len(t, out["hist"], 30)
	require.NotEmpty(t, out["model_path"])
	assert.FileExists(t, out["model_path"].(string))
	assert.FileExists(t, plotPath)
	assert.Contains(t, r.stderr, "Starting parity solve.")
}

func TestSolve_PlotWithoutHistoryFlag(t *testing.T) {
	dir := t.TempDir()
	plotPath := filepath.Join(dir, "conv.png")

	r := execute(t, "solve", "--n", "8", "--steps", "5", "--artifacts", dir, "--plot", plotPath)
	require.NoError(t, r.err)
	assert.NotContains(t, decode(t, r.stdout), "hist")
	assert.FileExists(t, plotPath)
}

func TestSolve_ConfigFileAndFlagsLayer(t *testing.T) {
	dir := t.TempDir()
	cfg := testutil.WriteTree(t, map[string]string{
		"solver.hcl": "solver {\n  n     = 12\n  steps = 7\n}\n",
	})

	r := execute(t, "--config", cfg, "solve", "--steps", "3", "--artifacts", dir)
	require.NoError(t, r.err)
	assert.Equal(t, 3.0, decode(t, r.stdout)["iters"])
	assert.Contains(t, r.stderr, "n=12")
}

func TestXi_PrintsSeries(t *testing.T) {
	r := execute(t, "xi", "--n", "8", "-T", "5", "--seed", "3", "--series")
	require.NoError(t, r.err)

	out := decode(t, r.stdout)
	assert.Equal(t, 5.0, out["steps"])
	xis, ok := out["xis"].([]any)
	require.True(t, ok)
	require.Len(t, xis, 5)
	assert.Equal(t, xis[4], out["xi_final"])

	r = execute(t, "xi", "--n", "8", "-T", "5", "--seed", "3")
	require.NoError(t, r.err)
	assert.NotContains(t, decode(t, r.stdout), "xis")
}

func TestGraph_ExportThenReplay(t *testing.T) {
	dir := t.TempDir()

	r := execute(t, "graph", "export", "--omega", "1.7", "--artifacts", dir)
	require.NoError(t, r.err)
	path := filepath.Clean(string(bytes.TrimSpace([]byte(r.stdout))))
	require.FileExists(t, path)
	assert.Equal(t, dir, filepath.Dir(path))

	r = execute(t, "graph", "replay", path, "--n", "12", "--steps", "10", "--artifacts", dir)
	require.NoError(t, r.err)
	out := decode(t, r.stdout)
	assert.Equal(t, 0.0, out["onnx_parity"])
	assert.Equal(t, path, out["model_path"])
}

func TestSolverFlags_OnlyChangedOverride(t *testing.T) {
	var sf solverFlags
	cmd := &cobra.Command{Use: "solve"}
	sf.register(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--omega", "1.5"}))

	m := config.Default()
	m.Solver.N = 99
	sf.apply(cmd, &m)
	assert.Equal(t, 1.5, m.Solver.Omega)
	assert.Equal(t, 99, m.Solver.N)
}
