package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "/opt/adaptyst/modules", cfg.Paths.ModuleDir)
	assert.Equal(t, 1024, cfg.Runtime.BufSize)
	assert.Equal(t, time.Second, cfg.Runtime.ListenTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Status.Address)
	assert.Equal(t, 50, cfg.Status.RPS)
	assert.NotEmpty(t, cfg.Paths.TmpRoot)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	t.Setenv("ADAPTYST_MODULE_DIR", "/tmp/modules")
	t.Setenv("ADAPTYST_LOCAL_CONFIG", "/tmp/local/adaptyst.conf")
	t.Setenv("ADAPTYST_BUF_SIZE", "4096")
	t.Setenv("ADAPTYST_LISTEN_TIMEOUT", "250ms")
	t.Setenv("ADAPTYST_STATUS_ADDR", "127.0.0.1:9100")
	t.Setenv("ADAPTYST_LOG_DEV", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/modules", cfg.Paths.ModuleDir)
	assert.Equal(t, "/tmp/local", cfg.LocalConfigDir())
	assert.Equal(t, 4096, cfg.Runtime.BufSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Runtime.ListenTimeout)
	assert.Equal(t, "127.0.0.1:9100", cfg.Status.Address)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadInvalidValue(t *testing.T) {
	t.Setenv("ADAPTYST_BUF_SIZE", "lots")

	_, err := Load()
	assert.Error(t, err)
	assert.NotNil(t, LoadOrDefault())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "adaptyst.conf")
	content := "perf_path = \"/usr/bin/perf\"\nbuffer = 512\n\n[roofline]\nenabled = true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	values, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/perf", values["perf_path"])
	assert.Equal(t, "512", values["buffer"])
	assert.Equal(t, "true", values["roofline.enabled"])
	assert.Equal(t, []string{"buffer", "perf_path", "roofline.enabled"}, values.Keys())
}

func TestLoadFileMissingIsEmpty(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "nope.conf"))
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.conf")
	require.NoError(t, os.WriteFile(path, []byte("= broken"), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFilesLocalWins(t *testing.T) {
	dir := t.TempDir()
	system := filepath.Join(dir, "system.conf")
	local := filepath.Join(dir, "local.conf")
	require.NoError(t, os.WriteFile(system, []byte("a = \"sys\"\nb = \"sys\"\n"), 0o644))
	require.NoError(t, os.WriteFile(local, []byte("b = \"local\"\n"), 0o644))

	cfg := Default()
	cfg.Paths.SystemFile = system
	cfg.Paths.LocalFile = local

	values, err := cfg.LoadFiles()
	require.NoError(t, err)
	assert.Equal(t, Values{"a": "sys", "b": "local"}, values)
}
