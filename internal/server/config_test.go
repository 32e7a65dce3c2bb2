package server

import (
	"log/slog"
	"reflect"
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if got := cfg.Addr(); got != ":8080" {
		t.Errorf("Addr got %q want %q", got, ":8080")
	}
	if cfg.MaxMessageSize != 4096 {
		t.Errorf("MaxMessageSize got %d", cfg.MaxMessageSize)
	}
	if cfg.BusCapacity != 100 {
		t.Errorf("BusCapacity got %d", cfg.BusCapacity)
	}
	if cfg.RateLimit.Burst != 5 || cfg.RateLimit.RefillInterval != time.Second {
		t.Errorf("RateLimit got %+v", cfg.RateLimit)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"http://localhost:8080"}) {
		t.Errorf("AllowedOrigins got %v", cfg.AllowedOrigins)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("SlogLevel got %v", cfg.SlogLevel())
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("API_HOST", "127.0.0.1")
	t.Setenv("API_PORT", "9090")
	t.Setenv("DATABASE_URL", "/tmp/forum.db")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ALLOWED_ORIGINS", "https://forum.example,http://localhost:3000")
	t.Setenv("MAX_MESSAGE_SIZE", "8192")
	t.Setenv("BUS_CAPACITY", "256")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if got := cfg.Addr(); got != "127.0.0.1:9090" {
		t.Errorf("Addr got %q", got)
	}
	if cfg.DatabasePath != "/tmp/forum.db" || cfg.JWTSecret != "s3cret" {
		t.Errorf("unexpected database/secret %q %q", cfg.DatabasePath, cfg.JWTSecret)
	}
	wantOrigins := []string{"https://forum.example", "http://localhost:3000"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, wantOrigins) {
		t.Errorf("AllowedOrigins got %v want %v", cfg.AllowedOrigins, wantOrigins)
	}
	if cfg.MaxMessageSize != 8192 || cfg.BusCapacity != 256 {
		t.Errorf("sizes got %d %d", cfg.MaxMessageSize, cfg.BusCapacity)
	}
	if cfg.RateLimit.Burst != 10 || cfg.RateLimit.RefillInterval != 2*time.Second {
		t.Errorf("RateLimit got %+v", cfg.RateLimit)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Errorf("ShutdownTimeout got %v", cfg.ShutdownTimeout)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel got %v", cfg.SlogLevel())
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "soon")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		apply func(*Config)
		check func(*testing.T, Config)
	}{
		{
			name:  "bus capacity below minimum is raised",
			apply: func(c *Config) { c.BusCapacity = 1 },
			check: func(t *testing.T, c Config) {
				if c.BusCapacity != minBusCapacity {
					t.Errorf("got %d", c.BusCapacity)
				}
			},
		},
		{
			name:  "bus capacity above maximum is lowered",
			apply: func(c *Config) { c.BusCapacity = 1 << 20 },
			check: func(t *testing.T, c Config) {
				if c.BusCapacity != maxBusCapacity {
					t.Errorf("got %d", c.BusCapacity)
				}
			},
		},
		{
			name:  "non-positive values fall back to defaults",
			apply: func(c *Config) { c.MaxMessageSize = 0; c.RateLimit = RateLimitConfig{}; c.ShutdownTimeout = -1; c.BusCapacity = 0 },
			check: func(t *testing.T, c Config) {
				d := defaultConfig()
				if c.MaxMessageSize != d.MaxMessageSize || c.RateLimit != d.RateLimit ||
					c.ShutdownTimeout != d.ShutdownTimeout || c.BusCapacity != d.BusCapacity {
					t.Errorf("got %+v", c)
				}
			},
		},
		{
			name:  "unknown log level falls back to info",
			apply: func(c *Config) { c.LogLevel = "loud" },
			check: func(t *testing.T, c Config) {
				if c.LogLevel != "info" {
					t.Errorf("got %q", c.LogLevel)
				}
			},
		},
		{
			name:  "port prefix and blanks",
			apply: func(c *Config) { c.Port = " :9000 "; c.DatabasePath = "  " },
			check: func(t *testing.T, c Config) {
				if c.Port != "9000" || c.DatabasePath != "forumchat.db" {
					t.Errorf("got port %q db %q", c.Port, c.DatabasePath)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *NewConfig()
			tt.apply(&cfg)
			tt.check(t, Sanitize(cfg))
		})
	}
}

func TestSanitizeDoesNotAliasOrigins(t *testing.T) {
	cfg := *NewConfig()
	sanitized := Sanitize(cfg)
	sanitized.AllowedOrigins[0] = "http://changed.example"
	if cfg.AllowedOrigins[0] != "http://localhost:8080" {
		t.Fatalf("Sanitize shares the origin slice with its input")
	}
}

func TestSetAddr(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.SetAddr("0.0.0.0:9001"); err != nil {
		t.Fatalf("SetAddr: %v", err)
	}
	if cfg.Host != "0.0.0.0" || cfg.Port != "9001" {
		t.Errorf("got host %q port %q", cfg.Host, cfg.Port)
	}
	if err := cfg.SetAddr("no-port"); err == nil {
		t.Error("expected error for address without port")
	}
}

func TestParseOrigins(t *testing.T) {
	got := ParseOrigins(" http://a.example , https://b.example")
	want := []string{"http://a.example", "https://b.example"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v want %v", got, want)
	}
}
