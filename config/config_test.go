package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sooomo/tally/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tallyd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Redis.TTL)
	assert.False(t, cfg.CacheEnabled())
	assert.False(t, cfg.SignEnabled())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
addr: ":9090"
log_level: debug
rate_limit: 5
redis:
  addr: 127.0.0.1:6379
  ttl: 30s
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5.0, cfg.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.Redis.TTL)
	assert.Equal(t, "tally:", cfg.Redis.Prefix)
	assert.True(t, cfg.CacheEnabled())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("TALLYD_ADDR", ":7070")
	t.Setenv("TALLYD_RATE_LIMIT", "2.5")
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, 2.5, cfg.RateLimit)

	t.Setenv("TALLYD_RATE_LIMIT", "fast")
	_, err = config.Load("")
	assert.True(t, errors.Is(err, config.ErrInvalidConfig))
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "negative_body", body: "max_body_bytes: -1"},
		{name: "half_sign", body: "sign:\n  remote_public_key: abc"},
		{name: "rate_without_burst", body: "rate_limit: 1\nrate_burst: 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}

	_, err := config.Load(writeConfig(t, "addr: [1"))
	assert.Error(t, err)
	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
