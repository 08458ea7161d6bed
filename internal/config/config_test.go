package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "DATABASE_URL", "SQLITE_PATH", "REDIS_URL", "GAMMA_API_URL",
	"CLOB_API_URL", "LOG_LEVEL", "LOG_FORMAT", "SCHEDULER_ENABLED",
}

// clearEnv empties the override variables for the test. t.Setenv restores
// the originals afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("", noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.PriceInterval())
	assert.Equal(t, 30*time.Second, cfg.Redis.TTL())
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", `
server:
  port: "9090"
storage:
  driver: sqlite
  dsn: league.db
scheduler:
  enabled: true
  price_interval_seconds: 60
log:
  level: debug
  format: text
`)

	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "league.db", cfg.Storage.DSN)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Minute, cfg.Scheduler.PriceInterval())
	// untouched keys keep their defaults
	assert.Equal(t, 3600, cfg.Scheduler.SettleIntervalSeconds)
	assert.Equal(t, "https://gamma-api.polymarket.com", cfg.Gamma.GammaBase)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", "server:\n  port: \"9090\"\n")
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_URL", "postgres://localhost/league")
	t.Setenv("SCHEDULER_ENABLED", "true")

	cfg, err := Load(path, noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://localhost/league", cfg.Storage.DSN)
	assert.True(t, cfg.Scheduler.Enabled)
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	envFile := writeFile(t, ".env", "REDIS_URL=redis://cache:6379/0\nLOG_LEVEL=warn\n")

	cfg, err := Load("", envFile)
	require.NoError(t, err)

	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), noEnvFile(t))
	assert.Error(t, err)

	bad := writeFile(t, "bad.yaml", "server: [unterminated")
	_, err = Load(bad, noEnvFile(t))
	assert.ErrorContains(t, err, "parse YAML")

	t.Setenv("SCHEDULER_ENABLED", "sometimes")
	_, err = Load("", noEnvFile(t))
	assert.ErrorContains(t, err, "SCHEDULER_ENABLED")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }, false},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, false},
		{"redis without ttl", func(c *Config) { c.Redis.URL = "redis://x"; c.Redis.TTLSeconds = 0 }, false},
		{"scheduler zero interval", func(c *Config) {
			c.Scheduler.Enabled = true
			c.Scheduler.RankingIntervalSeconds = 0
		}, false},
		{"disabled scheduler ignores intervals", func(c *Config) { c.Scheduler.SettleIntervalSeconds = 0 }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)

	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}
