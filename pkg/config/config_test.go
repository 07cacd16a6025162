package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	require.Equal(t, 15*time.Second, cfg.RPC.Timeout)
	require.Equal(t, 5, cfg.RPC.MaxAttempts)
	require.Equal(t, uint64(3), cfg.RPC.LagTolerance)
	require.Equal(t, 8, cfg.RPC.Workers)
	require.Equal(t, 1700, cfg.RPC.NodeFrom)
	require.Equal(t, 1995, cfg.RPC.NodeTo)
	require.Equal(t, "pool", cfg.Storage.Driver)
	require.Equal(t, "dev", cfg.Storage.Env)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("RPC_LAG_TOLERANCE=5\nSTORAGE_DRIVER=conn\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Cleanup(func() {
		_ = os.Unsetenv("RPC_LAG_TOLERANCE")
		_ = os.Unsetenv("STORAGE_DRIVER")
	})

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, uint64(5), cfg.RPC.LagTolerance)
	require.Equal(t, "conn", cfg.Storage.Driver)
}

func TestLoadWithoutDotEnv(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	_, err := Load()
	require.NoError(t, err)
}
