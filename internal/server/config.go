// Package server provides the environment-driven configuration for the
// relay, with sanitized defaults and startup validation.
package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// RateLimitConfig defines the fixed-window parameters applied to every
// connection.
type RateLimitConfig struct {
	Window   time.Duration `env:"RELAY_RATE_WINDOW" validate:"gte=100ms"`
	Capacity int           `env:"RELAY_RATE_CAPACITY" validate:"gte=1"`
}

// Config holds the relay's process configuration. The signing secret has no
// default: the process must not start without it.
type Config struct {
	Port            string        `env:"RELAY_PORT" validate:"required"`
	JWTSecret       string        `env:"RELAY_JWT_SECRET,required=true" validate:"required"`
	AllowedOrigins  string        `env:"RELAY_ALLOWED_ORIGINS"`
	RateLimit       RateLimitConfig
	ShutdownTimeout time.Duration `env:"RELAY_SHUTDOWN_TIMEOUT" validate:"gte=1s"`
	LogLevel        string        `env:"RELAY_LOG_LEVEL"`
}

// LoadConfig reads the configuration from the environment, fills in defaults
// for everything optional, and validates the result.
func LoadConfig() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	sanitizeConfig(&cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func sanitizeConfig(cfg *Config) {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}
	if !strings.HasPrefix(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = time.Second
	}
	if cfg.RateLimit.Capacity <= 0 {
		cfg.RateLimit.Capacity = 30
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
}

// Origins returns the configured cross-origin allow-list. An empty result
// means the relay is permissive about origins.
func (c *Config) Origins() []string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// Level parses the configured log level, defaulting to Info.
func (c *Config) Level() slog.Level {
	switch strings.ToUpper(strings.TrimSpace(c.LogLevel)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
