package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Sandbox   SandboxConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// SandboxConfig holds evaluation engine configuration.
type SandboxConfig struct {
	Backend          string        `envconfig:"SANDBOX_BACKEND" default:"native"`
	MemoryLimitMB    int64         `envconfig:"SANDBOX_MEMORY_MB" default:"128"`
	TimeoutMS        int           `envconfig:"SANDBOX_TIMEOUT_MS" default:"1000"`
	PoolSize         int           `envconfig:"SANDBOX_POOL_SIZE" default:"4"`
	MaxEngines       int           `envconfig:"SANDBOX_MAX_ENGINES" default:"16"`
	BundleDir        string        `envconfig:"SANDBOX_BUNDLE_DIR"`
	BreakerThreshold uint32        `envconfig:"SANDBOX_BREAKER_THRESHOLD" default:"5"`
	BreakerCooldown  time.Duration `envconfig:"SANDBOX_BREAKER_COOLDOWN" default:"30s"`
}

// Timeout returns the default evaluation deadline.
func (s SandboxConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects settings the sandbox would refuse at construction.
func (c *Config) Validate() error {
	switch c.Sandbox.Backend {
	case "native", "interpreted":
	default:
		return fmt.Errorf("invalid SANDBOX_BACKEND %q: want native or interpreted", c.Sandbox.Backend)
	}
	if c.Sandbox.MemoryLimitMB <= 0 {
		return fmt.Errorf("invalid SANDBOX_MEMORY_MB %d: must be positive", c.Sandbox.MemoryLimitMB)
	}
	if c.Sandbox.TimeoutMS <= 0 {
		return fmt.Errorf("invalid SANDBOX_TIMEOUT_MS %d: must be positive", c.Sandbox.TimeoutMS)
	}
	if c.Sandbox.PoolSize <= 0 || c.Sandbox.MaxEngines <= 0 {
		return fmt.Errorf("SANDBOX_POOL_SIZE and SANDBOX_MAX_ENGINES must be positive")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Sandbox: SandboxConfig{
			Backend:          "native",
			MemoryLimitMB:    128,
			TimeoutMS:        1000,
			PoolSize:         4,
			MaxEngines:       16,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
	}
}
