package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "influence_gen", cfg.Namespace)
	assert.Equal(t, "N8N", cfg.System)
	assert.Equal(t, 3, cfg.Webhook.MaxAttempts)
	assert.Equal(t, 5, cfg.Callback.DiagnosticPrefix)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
namespace: acme
system: Flow
paramsCacheTtl: 5s
callback:
  rateRps: 3
  rateBurst: 6
webhook:
  maxAttempts: 7
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	t.Setenv("PORT", "9999")
	t.Setenv("WEBHOOK_MAX_ATTEMPTS", "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.Namespace)
	assert.Equal(t, "Flow", cfg.System)
	assert.Equal(t, 5*time.Second, cfg.ParamsTTL)
	assert.Equal(t, 3.0, cfg.Callback.RateRPS)
	assert.Equal(t, 6, cfg.Callback.RateBurst)
	assert.Equal(t, 4, cfg.Webhook.MaxAttempts, "env overrides file")
	assert.Equal(t, ":9999", cfg.Addr)
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nope: 1\n"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Namespace = " "
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Auth.Mode = "basic"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Webhook.MaxAttempts = 0
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Default().Validate())
}

func TestLoad_BadEnvNumber(t *testing.T) {
	t.Setenv("RATE_BURST", "many")
	_, err := Load("")
	require.Error(t, err)
}
