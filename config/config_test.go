package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server:  ServerConfig{Transport: "stdio", HTTPPort: 8080},
		Logging: LoggingConfig{Mode: "production", Level: "info"},
		Pool: PoolConfig{
			IdleTimeoutSec:          500,
			MaxSandboxAgeSec:        900,
			MaxPerUser:              2,
			MaxTotal:                100,
			RecentActivityWindowSec: 30,
			CleanupIntervalSec:      30,
			MaxIDLength:             64,
		},
		Provider: ProviderConfig{
			BaseURL:           "https://api.e2b.dev",
			Template:          "base",
			ConnectTimeoutSec: 5,
			HealthTimeoutSec:  3,
			RequestTimeoutSec: 30,
			MaxRetries:        2,
			RetryDelaySec:     1.0,
		},
		Redis: RedisConfig{Enabled: true, URL: "redis://localhost:6379", OpTimeoutSec: 5, RetryDelayMs: 100},
	}
}

func TestValidate(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("InvalidTransport", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Transport = "grpc"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.transport")
	})

	t.Run("InvalidLoggingMode", func(t *testing.T) {
		cfg := validConfig()
		cfg.Logging.Mode = "verbose"
		assert.Error(t, cfg.Validate())
	})

	t.Run("ZeroIdleTimeout", func(t *testing.T) {
		cfg := validConfig()
		cfg.Pool.IdleTimeoutSec = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("MaxTotalBelowPerUser", func(t *testing.T) {
		cfg := validConfig()
		cfg.Pool.MaxTotal = 1
		cfg.Pool.MaxPerUser = 2
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pool.max_total")
	})

	t.Run("ZeroRetries", func(t *testing.T) {
		cfg := validConfig()
		cfg.Provider.MaxRetries = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("RedisEnabledWithoutURL", func(t *testing.T) {
		cfg := validConfig()
		cfg.Redis.URL = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis.url")
	})

	t.Run("RedisDisabledWithoutURL", func(t *testing.T) {
		cfg := validConfig()
		cfg.Redis.Enabled = false
		cfg.Redis.URL = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestDurations(t *testing.T) {
	cfg := validConfig()

	assert.Equal(t, 500*time.Second, cfg.IdleTimeout())
	assert.Equal(t, 900*time.Second, cfg.MaxSandboxAge())
	assert.Equal(t, 30*time.Second, cfg.RecentActivityWindow())
	assert.Equal(t, 30*time.Second, cfg.CleanupInterval())
	assert.Equal(t, time.Second, cfg.RetryDelay())
}

func TestCacheTTL(t *testing.T) {
	t.Run("MaxAgeDominates", func(t *testing.T) {
		cfg := validConfig()
		assert.Equal(t, 900*time.Second, cfg.CacheTTL())
	})

	t.Run("IdleTimeoutDominates", func(t *testing.T) {
		cfg := validConfig()
		cfg.Pool.IdleTimeoutSec = 1200
		assert.Equal(t, 1200*time.Second, cfg.CacheTTL())
	})

	// The TTL must never be shorter than the longest possible in-memory
	// record lifetime.
	t.Run("NeverBelowEitherBound", func(t *testing.T) {
		cfg := validConfig()
		assert.GreaterOrEqual(t, cfg.CacheTTL(), cfg.IdleTimeout())
		assert.GreaterOrEqual(t, cfg.CacheTTL(), cfg.MaxSandboxAge())
	})
}
