// Package config loads service configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full service configuration.
type Config struct {
	Port        string        `env:"PORT" envDefault:"8080"`
	Store       string        `env:"STORE" envDefault:"memory"`
	LockBackend string        `env:"LOCK_BACKEND" envDefault:"local"`
	LockTTL     time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	RedisURL    string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string        `env:"LOG_FORMAT" envDefault:"text"`

	DB         Database
	Notify     Notify
	Settlement Settlement
}

// Database holds PostgreSQL connection settings.
type Database struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"eventadmission"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"20"`
}

// DSN builds a libpq-compatible connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// Notify configures organizer notification dispatch.
type Notify struct {
	Backend string        `env:"NOTIFY_BACKEND" envDefault:"log"`
	Channel string        `env:"NOTIFY_CHANNEL" envDefault:"event-notifications"`
	Brokers []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic   string        `env:"KAFKA_TOPIC" envDefault:"event-notifications"`
	Timeout time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`
}

// Settlement configures the simulated payment processor.
type Settlement struct {
	SuccessRate   float64       `env:"SETTLEMENT_SUCCESS_RATE" envDefault:"0.95"`
	DelayInstant  time.Duration `env:"SETTLEMENT_DELAY_INSTANT" envDefault:"1s"`
	DelayBankSlip time.Duration `env:"SETTLEMENT_DELAY_BANK_SLIP" envDefault:"2s"`
	DelayCard     time.Duration `env:"SETTLEMENT_DELAY_CARD" envDefault:"3s"`
	Timeout       time.Duration `env:"SETTLEMENT_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("STORE must be memory or postgres, got %q", c.Store))
	}
	switch c.LockBackend {
	case "local", "redis":
	default:
		errs = append(errs, fmt.Errorf("LOCK_BACKEND must be local or redis, got %q", c.LockBackend))
	}
	switch c.Notify.Backend {
	case "log", "redis", "kafka":
	default:
		errs = append(errs, fmt.Errorf("NOTIFY_BACKEND must be log, redis or kafka, got %q", c.Notify.Backend))
	}
	if c.Settlement.SuccessRate < 0 || c.Settlement.SuccessRate > 1 {
		errs = append(errs, fmt.Errorf("SETTLEMENT_SUCCESS_RATE must be within [0,1], got %v", c.Settlement.SuccessRate))
	}
	if c.Settlement.Timeout <= 0 {
		errs = append(errs, errors.New("SETTLEMENT_TIMEOUT must be positive"))
	}
	if c.Notify.Timeout <= 0 {
		errs = append(errs, errors.New("NOTIFY_TIMEOUT must be positive"))
	}
	if c.LockTTL <= c.Settlement.Timeout {
		errs = append(errs, errors.New("LOCK_TTL must exceed SETTLEMENT_TIMEOUT"))
	}
	return errors.Join(errs...)
}
