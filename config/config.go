/*
Package config loads the server configuration.

PURPOSE:
  Reads config.toml (optional) and ASSETS_* environment variables into a
  Config, fills defaults and rejects combinations the server cannot run
  with.

LOOKUP ORDER:
  1. environment (ASSETS_SCHEDULER_ENABLED overrides scheduler.enabled)
  2. config.toml in ".", "./config" or "/etc/asset-engine"
  3. defaults from applyDefaults

SEE ALSO:
  - cmd/server/main.go: loads .env first, then calls Load
  - logging/logging.go: consumes LogConfig
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/warp/asset-engine/logging"
)

const envPrefix = "ASSETS"

type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Log          LogConfig
	Scheduler    SchedulerConfig
	Depreciation DepreciationConfig
	Cache        CacheConfig
	Redis        RedisConfig
	HTTP         HTTPConfig
}

type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig points at the SQLite file. ":memory:" keeps everything in
// process.
type DatabaseConfig struct {
	Path string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// Logging converts the section into the logger package's config.
func (c LogConfig) Logging() logging.Config {
	return logging.Config{Level: c.Level, Format: c.Format, Output: c.Output}
}

type SchedulerConfig struct {
	Enabled        bool
	CheckInterval  time.Duration
	MaxConcurrency int
}

type DepreciationConfig struct {
	AutomaticPostingEnabled bool
	CurrencyPrecision       int32
	// PostingRoles may create and cancel postings. Empty allows everyone.
	PostingRoles []string
}

type CacheConfig struct {
	Driver string // memory, redis
	TTL    time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
	CORSAllowOrigins []string
}

// Load reads configuration from config.toml and the environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/asset-engine")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Scheduler: SchedulerConfig{
			Enabled:        v.GetBool("scheduler.enabled"),
			CheckInterval:  v.GetDuration("scheduler.check_interval"),
			MaxConcurrency: v.GetInt("scheduler.max_concurrency"),
		},
		Depreciation: DepreciationConfig{
			AutomaticPostingEnabled: v.GetBool("depreciation.automatic_posting_enabled"),
			CurrencyPrecision:       v.GetInt32("depreciation.currency_precision"),
			PostingRoles:            v.GetStringSlice("depreciation.posting_roles"),
		},
		Cache: CacheConfig{
			Driver: v.GetString("cache.driver"),
			TTL:    v.GetDuration("cache.ttl"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:  v.GetDuration("http.shutdown_timeout"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "asset-engine"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "assets.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Scheduler.CheckInterval == 0 {
		cfg.Scheduler.CheckInterval = time.Hour
	}
	if cfg.Scheduler.MaxConcurrency == 0 {
		cfg.Scheduler.MaxConcurrency = 4
	}
	if cfg.Depreciation.CurrencyPrecision == 0 {
		cfg.Depreciation.CurrencyPrecision = 2
	}
	if cfg.Cache.Driver == "" {
		cfg.Cache.Driver = "memory"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 10 * time.Minute
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if len(cfg.HTTP.CORSAllowOrigins) == 0 {
		cfg.HTTP.CORSAllowOrigins = []string{"*"}
	}
}

func (c *Config) validate() error {
	if c.Scheduler.Enabled && c.Scheduler.CheckInterval < time.Second {
		return fmt.Errorf("scheduler.check_interval must be at least 1s, got %s", c.Scheduler.CheckInterval)
	}
	if c.Scheduler.MaxConcurrency < 0 {
		return fmt.Errorf("scheduler.max_concurrency cannot be negative")
	}
	if c.Depreciation.CurrencyPrecision < 0 || c.Depreciation.CurrencyPrecision > 9 {
		return fmt.Errorf("depreciation.currency_precision must be between 0 and 9, got %d", c.Depreciation.CurrencyPrecision)
	}
	switch c.Cache.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.driver must be memory or redis, got %q", c.Cache.Driver)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl cannot be negative")
	}

	if c.App.Env == "production" {
		if c.Database.Path == ":memory:" {
			return fmt.Errorf("database.path cannot be :memory: in production")
		}
		if len(c.Depreciation.PostingRoles) == 0 {
			return fmt.Errorf("depreciation.posting_roles is required in production")
		}
	}
	return nil
}

// IsProduction reports whether the server runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// RedisAddr returns host:port for the redis client.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
