package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("GATEWAY_APP_NAME", "gatewayd")
	t.Setenv("GATEWAY_APP_ENV", "development")
	t.Setenv("GATEWAY_LOG_LEVEL", "debug")
	t.Setenv("GATEWAY_LOG_FORMAT", "json")
	t.Setenv("GATEWAY_STORAGE_PATH", "/var/lib/gatewayd")
	t.Setenv("GATEWAY_PROXY_CONNECT_TIMEOUT", "5s")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "gatewayd", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/var/lib/gatewayd", cfg.Storage.Path)
	assert.Equal(t, 5*time.Second, cfg.Proxy.ConnectTimeout)
}

func TestLoad_PartialEnvVars(t *testing.T) {
	t.Setenv("GATEWAY_STORAGE_PATH", "/data/gatewayd")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "/data/gatewayd", cfg.Storage.Path)
	assert.Equal(t, "", cfg.App.Name)
}

func TestLoad_MissingStoragePathFailsValidation(t *testing.T) {
	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.path is required")
}
