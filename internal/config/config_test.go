package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "dexflow.db", cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.Engine.MonitorInterval)
	assert.Equal(t, 2*time.Minute, cfg.Engine.ClaimTTL)
	assert.Equal(t, 30*time.Second, cfg.Engine.ConfirmTimeout)
	assert.Equal(t, 3, cfg.Engine.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.BackoffBase)
	assert.Equal(t, 24*time.Hour, cfg.Engine.OrderTTL)
	assert.Equal(t, 10, cfg.Security.CreateOrder.Requests)
	assert.Equal(t, time.Minute, cfg.Security.CreateOrder.Window)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("DEXFLOW_SERVER_PORT", "9191")
	t.Setenv("DEXFLOW_ENGINE_MAX_ATTEMPTS", "5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9191", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Engine.MaxAttempts)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  port: "9000"
engine:
  monitor_interval: 1s
  max_attempts: 4
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Engine.MonitorInterval)
	assert.Equal(t, 4, cfg.Engine.MaxAttempts)
	// Untouched keys keep their defaults.
	assert.Equal(t, 2*time.Minute, cfg.Engine.ClaimTTL)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Engine.MaxAttempts = 0
	assert.Error(t, cfg.validate())

	cfg = Default()
	cfg.Engine.MonitorInterval = 0
	assert.Error(t, cfg.validate())

	cfg = Default()
	cfg.Engine.ClaimTTL = -time.Second
	assert.Error(t, cfg.validate())
}
