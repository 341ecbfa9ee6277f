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
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.HTTPPort)
	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.Equal(t, "persist", cfg.PartialPolicy)
	assert.Equal(t, 60*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", cfg.ChatModel)
	assert.Equal(t, 1000, cfg.MaxTokens)
	assert.InDelta(t, 0.7, cfg.Temperature, 1e-9)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HISTORY_LIMIT", "5")
	t.Setenv("PROVIDER_TIMEOUT_MS", "1500")
	t.Setenv("PARTIAL_POLICY", "DROP")
	t.Setenv("LLM_PROVIDER", "mock")
	t.Setenv("HTTP_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.HistoryLimit)
	assert.Equal(t, 1500*time.Millisecond, cfg.ProviderTimeout)
	assert.Equal(t, "drop", cfg.PartialPolicy)
	assert.Equal(t, "mock", cfg.LLMProvider)
	assert.Equal(t, 3000, cfg.HTTPPort)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tutor.yaml")
	content := []byte("history_limit: 8\nllm_provider: mock\nprovider_timeout_ms: 2000\nlog_level: debug\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.HistoryLimit)
	assert.Equal(t, "mock", cfg.LLMProvider)
	assert.Equal(t, 2*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"history limit", func(c *Config) { c.HistoryLimit = 0 }},
		{"partial policy", func(c *Config) { c.PartialPolicy = "keep" }},
		{"provider", func(c *Config) { c.LLMProvider = "claude" }},
		{"negative provider timeout", func(c *Config) { c.ProviderTimeout = -time.Second }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
		{"zero ping interval", func(c *Config) { c.WSPingInterval = 0 }},
		{"zero read timeout", func(c *Config) { c.WSReadTimeout = 0 }},
		{"zero write timeout", func(c *Config) { c.WSWriteTimeout = 0 }},
		{"ping not before read deadline", func(c *Config) { c.WSPingInterval = c.WSReadTimeout }},
		{"empty secret", func(c *Config) { c.JWTSecret = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsZeroWebSocketTimings(t *testing.T) {
	t.Setenv("WS_PING_INTERVAL_MS", "0")
	t.Setenv("WS_READ_TIMEOUT_MS", "0")

	_, err := Load()
	assert.Error(t, err)
}
