// Package config loads server settings from an optional YAML file, .env
// files and environment variables, in that order of precedence (lowest
// first).
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Gamma     GammaConfig     `yaml:"gamma"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port                   string `yaml:"port"`
	RequestTimeoutSeconds  int    `yaml:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// StorageConfig selects the source of truth. DSN is a PostgreSQL URL for
// the postgres driver and a file path (or ":memory:") for sqlite.
type StorageConfig struct {
	Driver string `yaml:"driver"` // memory | postgres | sqlite
	DSN    string `yaml:"dsn"`
}

// RedisConfig enables the read-through cache when URL is set.
type RedisConfig struct {
	URL        string `yaml:"url"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

type GammaConfig struct {
	GammaBase      string  `yaml:"gamma_base"`
	CLOBBase       string  `yaml:"clob_base"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
	Burst          int     `yaml:"burst"`
}

// SchedulerConfig drives the built-in interval scheduler. Disabled by
// default; an external cron can call the batch endpoints instead.
type SchedulerConfig struct {
	Enabled                bool `yaml:"enabled"`
	PriceIntervalSeconds   int  `yaml:"price_interval_seconds"`
	RankingIntervalSeconds int  `yaml:"ranking_interval_seconds"`
	SettleIntervalSeconds  int  `yaml:"settle_interval_seconds"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                   "8080",
			RequestTimeoutSeconds:  30,
			ShutdownTimeoutSeconds: 10,
		},
		Storage: StorageConfig{Driver: DriverMemory},
		Redis:   RedisConfig{TTLSeconds: 30},
		Gamma: GammaConfig{
			GammaBase:      "https://gamma-api.polymarket.com",
			CLOBBase:       "https://clob.polymarket.com",
			TimeoutSeconds: 30,
			RatePerSecond:  10,
			Burst:          5,
		},
		Scheduler: SchedulerConfig{
			PriceIntervalSeconds:   300,
			RankingIntervalSeconds: 900,
			SettleIntervalSeconds:  3600,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply. Missing .env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env.local", ".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables that are already set, so the
		// first file wins.
		_ = godotenv.Load(f)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.Driver = DriverPostgres
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.Driver = DriverSQLite
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("GAMMA_API_URL"); v != "" {
		cfg.Gamma.GammaBase = v
	}
	if v := os.Getenv("CLOB_API_URL"); v != "" {
		cfg.Gamma.CLOBBase = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: SCHEDULER_ENABLED: %w", err)
		}
		cfg.Scheduler.Enabled = b
	}
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for driver %s", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	if c.Redis.URL != "" && c.Redis.TTLSeconds <= 0 {
		errs = append(errs, errors.New("redis.ttl_seconds must be positive"))
	}
	if c.Gamma.GammaBase == "" || c.Gamma.CLOBBase == "" {
		errs = append(errs, errors.New("gamma.gamma_base and gamma.clob_base are required"))
	}
	if c.Scheduler.Enabled {
		if c.Scheduler.PriceIntervalSeconds <= 0 || c.Scheduler.RankingIntervalSeconds <= 0 || c.Scheduler.SettleIntervalSeconds <= 0 {
			errs = append(errs, errors.New("scheduler intervals must be positive when the scheduler is enabled"))
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (s ServerConfig) RequestTimeout() time.Duration  { return seconds(s.RequestTimeoutSeconds) }
func (s ServerConfig) ShutdownTimeout() time.Duration { return seconds(s.ShutdownTimeoutSeconds) }
func (r RedisConfig) TTL() time.Duration              { return seconds(r.TTLSeconds) }
func (g GammaConfig) Timeout() time.Duration          { return seconds(g.TimeoutSeconds) }

func (s SchedulerConfig) PriceInterval() time.Duration   { return seconds(s.PriceIntervalSeconds) }
func (s SchedulerConfig) RankingInterval() time.Duration { return seconds(s.RankingIntervalSeconds) }
func (s SchedulerConfig) SettleInterval() time.Duration  { return seconds(s.SettleIntervalSeconds) }

// NewLogger builds a slog logger writing to w.
func NewLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}
