package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/redlite/redlite/internal/storage"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]string{"--db", filepath.Join(t.TempDir(), "redlite.db")})
	require.NoError(t, err)
	require.Equal(t, storage.BackendFile, cfg.Backend)
	require.Equal(t, "127.0.0.1:6379", cfg.Addr)
	require.Equal(t, 200, cfg.ReapBatchSize)
	require.Equal(t, 100*time.Millisecond, cfg.ReapInterval)
}

func TestLoadRejectsBadAddr(t *testing.T) {
	_, err := Load([]string{"--addr", "127.0.0.1:not-a-port"})
	require.Error(t, err)
}

func TestLoadRejectsBadBackend(t *testing.T) {
	_, err := Load([]string{"--storage", "postgres"})
	require.Error(t, err)
}

func TestPasswordFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(path, []byte("hunter2\n"), 0o600))

	cfg, err := Load([]string{"--password-file", path})
	require.NoError(t, err)
	require.Equal(t, "hunter2", cfg.Password)
}

func TestConfigFileFillsUnsetFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redlite.json")
	body, err := json.Marshal(map[string]any{
		"addr":     "0.0.0.0:7000",
		"cache_mb": 64,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:7000", cfg.Addr)
	require.Equal(t, 64, cfg.CacheMB)
}

func TestExplicitFlagBeatsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redlite.json")
	body, err := json.Marshal(map[string]any{"addr": "0.0.0.0:7000"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := Load([]string{"--addr", "127.0.0.1:9999", "--config", path})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", cfg.Addr)
}
