// Package config loads workgrid settings from WORKGRID_* environment
// variables. Command-line flags override individual fields afterwards.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alexanderramin/workgrid/internal/db"
	"github.com/caarlos0/env/v11"
)

const envPrefix = "WORKGRID_"

// Log formats.
const (
	LogAuto = "auto"
	LogText = "text"
	LogJSON = "json"
)

type Config struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	DatabaseURL     string        `env:"DATABASE_URL" envDefault:"workgrid.db"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// RedisURL enables the staleness cache when set.
	RedisURL     string        `env:"REDIS_URL"`
	StalenessTTL time.Duration `env:"STALENESS_TTL" envDefault:"30s"`

	// OTelEndpoint enables tracing when set, unless OTelEnabled is false.
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`

	LogFormat string     `env:"LOG_FORMAT" envDefault:"auto"`
	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"info"`

	// Client side: probe and watch.
	ServerURL    string        `env:"SERVER_URL" envDefault:"http://localhost:8080"`
	PersonID     string        `env:"PERSON"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
}

// ParseEnv loads target from prefixed environment variables.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads and validates the configuration.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.LogFormat {
	case LogAuto, LogText, LogJSON:
	default:
		return fmt.Errorf("invalid log format %q (want auto, text or json)", c.LogFormat)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database url is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return fmt.Errorf("connection pool sizes must not be negative")
	}
	return nil
}

// Pool returns the database pool settings.
func (c Config) Pool() db.PoolOptions {
	return db.PoolOptions{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}
