package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8790, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, 3, cfg.Executor.MaxAttempts)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
gateway:
  port: 9100
  webhookSecret: shhh
executor:
  maxAttempts: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Gateway.Port)
	assert.Equal(t, "shhh", cfg.Gateway.WebhookSecret)
	assert.Equal(t, 5, cfg.Executor.MaxAttempts)
	// Untouched sections keep defaults.
	assert.Equal(t, 500, cfg.Executor.RetryBaseMs)
	assert.Equal(t, 30, cfg.Storage.RetentionDays)
	assert.Equal(t, 12, cfg.Panel.TokenTTLHours)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "gateway: [not a map")
	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_WEBHOOK_SECRET", "from-env")
	path := writeConfig(t, `
gateway:
  webhookSecret: ${TEST_WEBHOOK_SECRET}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Gateway.WebhookSecret)
}

func TestLoad_UnsetEnvVarLeftVerbatim(t *testing.T) {
	path := writeConfig(t, `
gateway:
  webhookSecret: ${THIS_VAR_DOES_NOT_EXIST_42}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "${THIS_VAR_DOES_NOT_EXIST_42}", cfg.Gateway.WebhookSecret)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VOICEBRIDGE_GATEWAY_PORT", "9999")
	t.Setenv("VOICEBRIDGE_WEBHOOK_SECRET", "env-secret")
	t.Setenv("VOICEBRIDGE_LOG_LEVEL", "DEBUG")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, "env-secret", cfg.Gateway.WebhookSecret)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestConfigPathHelpers(t *testing.T) {
	raw := map[string]any{}

	path, err := ParseConfigPath("gateway.port")
	require.NoError(t, err)
	SetValueAtPath(raw, path, 9100)

	val, ok := GetValueAtPath(raw, path)
	require.True(t, ok)
	assert.Equal(t, 9100, val)

	assert.True(t, UnsetValueAtPath(raw, path))
	_, ok = GetValueAtPath(raw, path)
	assert.False(t, ok)

	_, err = ParseConfigPath("gateway..port")
	assert.Error(t, err)
	_, err = ParseConfigPath("")
	assert.Error(t, err)
}

func TestResolvePaths_HomeOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VOICEBRIDGE_HOME", dir)

	paths, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, dir, paths.Base)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), paths.Config)
	assert.Equal(t, filepath.Join(dir, "agents"), paths.Agents)
	assert.Equal(t, filepath.Join(dir, "matrix.json"), paths.Matrix)

	require.NoError(t, paths.EnsureDirs())
	info, err := os.Stat(paths.Agents)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
