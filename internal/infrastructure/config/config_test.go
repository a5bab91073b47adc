package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	// Sandbox config
	assert.Equal(t, "native", cfg.Sandbox.Backend)
	assert.Equal(t, int64(128), cfg.Sandbox.MemoryLimitMB)
	assert.Equal(t, time.Second, cfg.Sandbox.Timeout())
	assert.NoError(t, cfg.Validate())
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                      "9000",
		"HOST":                      "127.0.0.1",
		"LOG_LEVEL":                 "debug",
		"LOG_DEV":                   "true",
		"RATE_LIMIT_RPS":            "500",
		"RATE_LIMIT_BURST":          "1000",
		"RATE_LIMIT_ENABLED":        "false",
		"SANDBOX_BACKEND":           "interpreted",
		"SANDBOX_MEMORY_MB":         "64",
		"SANDBOX_TIMEOUT_MS":        "250",
		"SANDBOX_POOL_SIZE":         "2",
		"SANDBOX_MAX_ENGINES":       "3",
		"SANDBOX_BUNDLE_DIR":        "/srv/bundles",
		"SANDBOX_BREAKER_THRESHOLD": "7",
		"SANDBOX_BREAKER_COOLDOWN":  "1m",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "interpreted", cfg.Sandbox.Backend)
	assert.Equal(t, int64(64), cfg.Sandbox.MemoryLimitMB)
	assert.Equal(t, 250*time.Millisecond, cfg.Sandbox.Timeout())
	assert.Equal(t, 2, cfg.Sandbox.PoolSize)
	assert.Equal(t, 3, cfg.Sandbox.MaxEngines)
	assert.Equal(t, "/srv/bundles", cfg.Sandbox.BundleDir)
	assert.Equal(t, uint32(7), cfg.Sandbox.BreakerThreshold)
	assert.Equal(t, time.Minute, cfg.Sandbox.BreakerCooldown)
}

func TestLoadRejectsInvalidSandbox(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown backend", "SANDBOX_BACKEND", "quickjs"},
		{"zero memory", "SANDBOX_MEMORY_MB", "0"},
		{"negative timeout", "SANDBOX_TIMEOUT_MS", "-5"},
		{"zero pool", "SANDBOX_POOL_SIZE", "0"},
		{"not a number", "SANDBOX_MAX_ENGINES", "many"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)

			assert.Equal(t, Default(), LoadOrDefault())
		})
	}
}
