package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 200, cfg.Session.ChatCapacity)
	assert.Equal(t, []string{"*"}, cfg.allowedOrigins())
}

func TestLoadConfigFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
  client_origin: "http://a.test, http://b.test"
store:
  driver: memory
  readiness_interval: 2s
session:
  command_timeout: 3s
log:
  level: debug
`), 0o600))

	t.Setenv("PORT", "9100")
	t.Setenv("NATS_URL", "nats://bus:4222")

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 2*time.Second, cfg.Store.ReadinessInterval)
	assert.Equal(t, 3*time.Second, cfg.Session.CommandTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "nats://bus:4222", cfg.Events.NATSURL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.allowedOrigins())
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadConfigRejectsZeroReadinessInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  readiness_interval: 0s\n"), 0o600))
	_, err := loadConfig(path)
	require.Error(t, err)
}
