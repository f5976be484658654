package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// GIVEN: No config file and no ASSETS_* variables
	// WHEN: Configuration is loaded
	// THEN: Every section carries its default

	cfg, err := fromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "asset-engine", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "assets.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Hour, cfg.Scheduler.CheckInterval)
	assert.Equal(t, 4, cfg.Scheduler.MaxConcurrency)
	assert.False(t, cfg.Depreciation.AutomaticPostingEnabled)
	assert.Equal(t, int32(2), cfg.Depreciation.CurrencyPrecision)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
	assert.Equal(t, []string{"*"}, cfg.HTTP.CORSAllowOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Environment(t *testing.T) {
	// GIVEN: ASSETS_* variables for several sections
	// WHEN: Configuration is loaded
	// THEN: The environment wins over defaults

	t.Setenv("ASSETS_SCHEDULER_ENABLED", "true")
	t.Setenv("ASSETS_SCHEDULER_CHECK_INTERVAL", "5m")
	t.Setenv("ASSETS_DEPRECIATION_AUTOMATIC_POSTING_ENABLED", "true")
	t.Setenv("ASSETS_DEPRECIATION_CURRENCY_PRECISION", "3")
	t.Setenv("ASSETS_CACHE_DRIVER", "redis")
	t.Setenv("ASSETS_REDIS_HOST", "cache.internal")
	t.Setenv("ASSETS_REDIS_PORT", "6380")

	cfg, err := fromViper(viper.New())
	require.NoError(t, err)

	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.CheckInterval)
	assert.True(t, cfg.Depreciation.AutomaticPostingEnabled)
	assert.Equal(t, int32(3), cfg.Depreciation.CurrencyPrecision)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "cache.internal:6380", cfg.RedisAddr())
}

func TestLoad_ConfigFile(t *testing.T) {
	// GIVEN: A config.toml in the working directory
	// WHEN: Load runs
	// THEN: File values are used

	dir := t.TempDir()
	toml := `
[app]
env = "staging"
port = "9090"

[database]
path = "/var/lib/assets.db"

[depreciation]
posting_roles = ["Accounts Manager", "Accounts User"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o600))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.App.Env)
	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, "/var/lib/assets.db", cfg.Database.Path)
	assert.Equal(t, []string{"Accounts Manager", "Accounts User"}, cfg.Depreciation.PostingRoles)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown cache driver", func(c *Config) { c.Cache.Driver = "memcached" }},
		{"scheduler interval too short", func(c *Config) {
			c.Scheduler.Enabled = true
			c.Scheduler.CheckInterval = 10 * time.Millisecond
		}},
		{"precision out of range", func(c *Config) { c.Depreciation.CurrencyPrecision = 12 }},
		{"negative concurrency", func(c *Config) { c.Scheduler.MaxConcurrency = -1 }},
		{"in-memory database in production", func(c *Config) {
			c.App.Env = "production"
			c.Database.Path = ":memory:"
			c.Depreciation.PostingRoles = []string{"Accounts Manager"}
		}},
		{"production without posting roles", func(c *Config) { c.App.Env = "production" }},
	}

	require.NoError(t, valid().validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestLogConfig_Logging(t *testing.T) {
	lc := LogConfig{Level: "debug", Format: "json", Output: "stderr"}.Logging()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "json", lc.Format)
	assert.Equal(t, "stderr", lc.Output)
}
