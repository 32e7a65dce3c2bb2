// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the forum gateway.
package server

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Tyrowin/forumchat/internal/bus"
)

const (
	defaultPort           = "8080"
	defaultMaxMessageSize = 4096
	minBusCapacity        = 16
	maxBusCapacity        = 4096
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL"`
}

// Config holds the gateway configuration settings including security controls.
type Config struct {
	Host            string        `env:"API_HOST"`
	Port            string        `env:"API_PORT"`
	DatabasePath    string        `env:"DATABASE_URL"`
	JWTSecret       string        `env:"JWT_SECRET"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE"`
	BusCapacity     int           `env:"BUS_CAPACITY"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
	LogLevel        string        `env:"LOG_LEVEL"`
	RateLimit       RateLimitConfig
}

func defaultConfig() Config {
	return Config{
		Port:         defaultPort,
		DatabasePath: "forumchat.db",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize:  defaultMaxMessageSize,
		BusCapacity:     bus.DefaultCapacity,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig creates a Config from environment variables. Unset variables
// keep their defaults; the result is sanitized.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	sanitized := Sanitize(cfg)
	return &sanitized, nil
}

// Sanitize replaces out-of-range values with defaults and normalizes the
// copies the origin allow-list. It does not modify cfg.
func Sanitize(cfg Config) Config {
	defaults := defaultConfig()

	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.Port = strings.TrimPrefix(strings.TrimSpace(cfg.Port), ":")
	if cfg.Port == "" {
		cfg.Port = defaults.Port
	}

	if strings.TrimSpace(cfg.DatabasePath) == "" {
		cfg.DatabasePath = defaults.DatabasePath
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}

	switch {
	case cfg.BusCapacity <= 0:
		cfg.BusCapacity = defaults.BusCapacity
	case cfg.BusCapacity < minBusCapacity:
		cfg.BusCapacity = minBusCapacity
	case cfg.BusCapacity > maxBusCapacity:
		cfg.BusCapacity = maxBusCapacity
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}

	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		cfg.LogLevel = defaults.LogLevel
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// Addr is the listen address built from Host and Port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// SlogLevel returns the configured log level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	level, err := parseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// SetAddr splits a host:port (or bare :port) override into Host and Port.
func (c *Config) SetAddr(addr string) error {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	c.Host = host
	c.Port = port
	return nil
}

// ParseOrigins splits a comma separated origin list.
func ParseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseLogLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}
