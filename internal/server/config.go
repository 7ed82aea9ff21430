// Package server provides configuration loading that defines runtime
// defaults, sanitization, and rate-limiting parameters for the relay.
package server

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the relay's runtime settings, populated from the environment.
type Config struct {
	Env            string        `envconfig:"APP_ENV" default:"dev"`
	Port           string        `envconfig:"SERVER_PORT" default:":8080"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	MaxMessageSize int64         `envconfig:"MAX_MESSAGE_SIZE" default:"4096"`
	SendTimeout    time.Duration `envconfig:"SEND_TIMEOUT" default:"5s"`

	RateLimitBurst          int           `envconfig:"RATE_LIMIT_BURST" default:"20"`
	RateLimitRefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1s"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LoadConfig reads the configuration from environment variables, falling back
// to defaults for anything unset, and sanitizes the result.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return sanitizeConfig(cfg), nil
}

// DefaultConfig returns the sanitized defaults without touching the
// environment. Tests use it as a baseline.
func DefaultConfig() Config {
	return sanitizeConfig(Config{
		Env:                     "dev",
		Port:                    ":8080",
		AllowedOrigins:          []string{"http://localhost:8080"},
		MaxMessageSize:          4096,
		SendTimeout:             5 * time.Second,
		RateLimitBurst:          20,
		RateLimitRefillInterval: time.Second,
		ShutdownTimeout:         10 * time.Second,
	})
}

// sanitizeConfig clamps nonsensical values back to safe defaults rather than
// failing startup over a typo.
func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	if cfg.RateLimitRefillInterval <= 0 {
		cfg.RateLimitRefillInterval = time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return cfg
}
