package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptyst/adaptyst/internal/process"
)

func TestMain(m *testing.M) {
	process.Init()
	os.Exit(m.Run())
}

func TestWorkflowArgs(t *testing.T) {
	argv, err := workflowArgs(true, []string{"perf stat", "-e cycles"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"perf", "stat", "-e", "cycles"}, argv)

	argv, err = workflowArgs(true, []string{"ls", "my dir"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"ls", "my dir"}, argv)

	argv, err = workflowArgs(true, []string{`sh -c 'echo "hi there"'`, `a\ b`}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"sh", "-c", `echo "hi there"`, "a b"}, argv)

	_, err = workflowArgs(true, []string{"   "}, false)
	assert.ErrorIs(t, err, errInvalidCommand)
	_, err = workflowArgs(true, []string{`echo "open`}, false)
	assert.ErrorIs(t, err, errInvalidCommand)

	dir := t.TempDir()
	src := filepath.Join(dir, "flow.yml")
	require.NoError(t, os.WriteFile(src, []byte("steps: []\n"), 0o644))

	want, err := filepath.EvalSymlinks(src)
	require.NoError(t, err)
	argv, err = workflowArgs(false, []string{src}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{want}, argv)

	_, err = workflowArgs(false, []string{src, src}, false)
	assert.ErrorIs(t, err, errSinglePath)
	_, err = workflowArgs(false, []string{dir}, false)
	assert.Error(t, err)
	_, err = workflowArgs(false, []string{filepath.Join(dir, "missing")}, false)
	assert.Error(t, err)
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "999 ms", formatElapsed(999*time.Millisecond))
	assert.Equal(t, "1.005 s", formatElapsed(1005*time.Millisecond))
	assert.Equal(t, "12.340 s", formatElapsed(12340*time.Millisecond))
}

func TestExecuteUsageErrors(t *testing.T) {
	assert.Equal(t, 1, execute(context.Background(), []string{"ls"}))
	assert.Equal(t, 1, execute(context.Background(), []string{"-s", "system.yml"}))
	assert.Equal(t, 0, execute(context.Background(), []string{"--version"}))
}

func TestRunCommandSession(t *testing.T) {
	dir := t.TempDir()
	def := filepath.Join(dir, "system.yml")
	require.NoError(t, os.WriteFile(def, []byte(`entities:
  local:
    options:
      access_mode: in_place
    nodes:
      n1:
        backend: regions
`), 0o644))

	t.Setenv("ADAPTYST_TMP_DIR", dir)
	t.Setenv("ADAPTYST_CONFIG", filepath.Join(dir, "none.conf"))
	t.Setenv("ADAPTYST_LOCAL_CONFIG", filepath.Join(dir, "none-local.conf"))
	t.Setenv("ADAPTYST_MODULE_DIR", filepath.Join(dir, "modules"))

	out := filepath.Join(dir, "results")
	code := execute(context.Background(), []string{
		"-s", def, "-o", out, "-l", "smoke", "--batch", "--no-format", "-d", "true",
	})
	require.Equal(t, 0, code)

	assert.FileExists(t, filepath.Join(out, "system", "system.yml"))
	assert.DirExists(t, filepath.Join(out, "system", "local", "n1", "regions"))
	assert.FileExists(t, filepath.Join(out, "log", "adaptyst.log"))
	assert.NoDirExists(t, filepath.Join(dir, "adaptyst.pid."+strconv.Itoa(os.Getpid())))
}
