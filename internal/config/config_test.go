// ABOUTME: Tests for configuration loading, environment overrides, and validation
// ABOUTME: Uses temp files for YAML and a fake lookup for environment variables

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.GetBackend())
	assert.Equal(t, DefaultSchedulerInterval, cfg.Scheduler.Interval)
	assert.Equal(t, DefaultMaxItems, cfg.Fetch.MaxItems)
	assert.True(t, cfg.Scheduler.Enabled)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: sqlite
  data_dir: /tmp/nexifeed-test
http:
  addr: ":9999"
scheduler:
  interval: 5m
  feed_timeout: 30s
auth:
  tokens:
    secret-token: user-1
nats:
  url: nats://localhost:4222
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.FeedTimeout)
	assert.Equal(t, "user-1", cfg.Auth.Tokens["secret-token"])
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, DefaultNATSSubject, cfg.NATS.Subject, "unset keys keep defaults")
	assert.Equal(t, "/tmp/nexifeed-test", cfg.GetDataDir())
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "storage: [unterminated")
	_, err := Load(path)
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"NEXIFEED_STORAGE_BACKEND":    "postgres",
		"NEXIFEED_POSTGRES_DSN":       "postgres://localhost/nexifeed",
		"NEXIFEED_SCHEDULER_INTERVAL": "90s",
		"NEXIFEED_SCHEDULER_ENABLED":  "false",
		"NEXIFEED_AUTH_TOKENS":        "a:alice, b:bob",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "postgres", cfg.GetBackend())
	assert.Equal(t, 90*time.Second, cfg.Scheduler.Interval)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "alice", cfg.Auth.Tokens["a"])
	assert.Equal(t, "bob", cfg.Auth.Tokens["b"])
}

func TestApplyEnv_BadValues(t *testing.T) {
	tests := map[string]string{
		"NEXIFEED_FETCH_TIMEOUT":     "soon",
		"NEXIFEED_SCHEDULER_ENABLED": "maybe",
		"NEXIFEED_AUTH_TOKENS":       "no-separator",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			lookup := func(k string) (string, bool) {
				if k == key {
					return value, true
				}
				return "", false
			}
			require.Error(t, Default().applyEnv(lookup))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = "postgres" }},
		{"mongo without uri", func(c *Config) { c.Storage.Backend = "mongo" }},
		{"zero interval", func(c *Config) { c.Scheduler.Interval = 0 }},
		{"zero fetch timeout", func(c *Config) { c.Fetch.Timeout = 0 }},
		{"zero concurrency", func(c *Config) { c.Ingest.Concurrency = 0 }},
		{"empty token user", func(c *Config) { c.Auth.Tokens["t"] = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, "data"), ExpandPath("~/data"))
	assert.Equal(t, "/abs/path", ExpandPath("/abs/path"))
}

func TestOpenStorage_SQLite(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = t.TempDir()

	store, err := cfg.OpenStorage(context.Background())
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(filepath.Join(cfg.Storage.DataDir, DefaultDBFilename))
	assert.NoError(t, err)
}
