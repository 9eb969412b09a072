package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Provider ProviderConfig `mapstructure:"provider"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// PoolConfig holds sandbox pool configuration
type PoolConfig struct {
	IdleTimeoutSec          int `mapstructure:"idle_timeout_sec"`
	MaxSandboxAgeSec        int `mapstructure:"max_sandbox_age_sec"`
	MaxPerUser              int `mapstructure:"max_per_user"`
	MaxTotal                int `mapstructure:"max_total"`
	RecentActivityWindowSec int `mapstructure:"recent_activity_window_sec"`
	CleanupIntervalSec      int `mapstructure:"cleanup_interval_sec"`
	MaxIDLength             int `mapstructure:"max_id_length"`
}

// ProviderConfig holds sandbox provider client configuration
type ProviderConfig struct {
	BaseURL             string  `mapstructure:"base_url"`
	APIKey              string  `mapstructure:"api_key"`
	Template            string  `mapstructure:"template"`
	TemplatesFile       string  `mapstructure:"templates_file"`
	ConnectTimeoutSec   int     `mapstructure:"connect_timeout_sec"`
	HealthTimeoutSec    int     `mapstructure:"health_timeout_sec"`
	RequestTimeoutSec   int     `mapstructure:"request_timeout_sec"`
	MaxRetries          int     `mapstructure:"max_retries"`
	RetryDelaySec       float64 `mapstructure:"retry_delay_sec"`
	AllowInternetAccess bool    `mapstructure:"allow_internet_access"`
	// InsecureSkipVerify disables TLS certificate verification for the
	// provider endpoint. Never enabled implicitly; operators must opt in.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// RedisConfig holds distributed cache configuration
type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	URL          string `mapstructure:"url"`
	OpTimeoutSec int    `mapstructure:"op_timeout_sec"`
	RetryDelayMs int    `mapstructure:"retry_delay_ms"`
	MaxConns     int    `mapstructure:"max_conns"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	viper.SetDefault("server.transport", "stdio")
	viper.SetDefault("server.http_port", 8080)

	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")

	viper.SetDefault("pool.idle_timeout_sec", 500)
	viper.SetDefault("pool.max_sandbox_age_sec", 900)
	viper.SetDefault("pool.max_per_user", 2)
	viper.SetDefault("pool.max_total", 100)
	viper.SetDefault("pool.recent_activity_window_sec", 30)
	viper.SetDefault("pool.cleanup_interval_sec", 30)
	viper.SetDefault("pool.max_id_length", 64)

	viper.SetDefault("provider.base_url", "https://api.e2b.dev")
	viper.SetDefault("provider.template", "base")
	viper.SetDefault("provider.connect_timeout_sec", 5)
	viper.SetDefault("provider.health_timeout_sec", 3)
	viper.SetDefault("provider.request_timeout_sec", 30)
	viper.SetDefault("provider.max_retries", 2)
	viper.SetDefault("provider.retry_delay_sec", 1.0)
	viper.SetDefault("provider.allow_internet_access", true)
	viper.SetDefault("provider.insecure_skip_verify", false)

	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.url", "redis://localhost:6379")
	viper.SetDefault("redis.op_timeout_sec", 5)
	viper.SetDefault("redis.retry_delay_ms", 100)
	viper.SetDefault("redis.max_conns", 10)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Environment fallbacks for credentials and cache endpoint
	if config.Provider.APIKey == "" {
		config.Provider.APIKey = os.Getenv("SANDBOX_API_KEY")
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		config.Redis.URL = url
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Logging.Mode != "development" && c.Logging.Mode != "production" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'development' or 'production'", c.Logging.Mode)
	}

	if c.Pool.IdleTimeoutSec <= 0 {
		return fmt.Errorf("pool.idle_timeout_sec must be positive, got: %d", c.Pool.IdleTimeoutSec)
	}

	if c.Pool.MaxSandboxAgeSec <= 0 {
		return fmt.Errorf("pool.max_sandbox_age_sec must be positive, got: %d", c.Pool.MaxSandboxAgeSec)
	}

	if c.Pool.MaxPerUser <= 0 {
		return fmt.Errorf("pool.max_per_user must be positive, got: %d", c.Pool.MaxPerUser)
	}

	if c.Pool.MaxTotal < c.Pool.MaxPerUser {
		return fmt.Errorf("pool.max_total (%d) must be at least pool.max_per_user (%d)",
			c.Pool.MaxTotal, c.Pool.MaxPerUser)
	}

	if c.Pool.RecentActivityWindowSec < 0 {
		return fmt.Errorf("pool.recent_activity_window_sec must not be negative, got: %d", c.Pool.RecentActivityWindowSec)
	}

	if c.Pool.CleanupIntervalSec <= 0 {
		return fmt.Errorf("pool.cleanup_interval_sec must be positive, got: %d", c.Pool.CleanupIntervalSec)
	}

	if c.Pool.MaxIDLength <= 0 {
		return fmt.Errorf("pool.max_id_length must be positive, got: %d", c.Pool.MaxIDLength)
	}

	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url must not be empty")
	}

	if c.Provider.MaxRetries < 1 {
		return fmt.Errorf("provider.max_retries must be at least 1, got: %d", c.Provider.MaxRetries)
	}

	if c.Provider.ConnectTimeoutSec <= 0 {
		return fmt.Errorf("provider.connect_timeout_sec must be positive, got: %d", c.Provider.ConnectTimeoutSec)
	}

	if c.Provider.HealthTimeoutSec <= 0 {
		return fmt.Errorf("provider.health_timeout_sec must be positive, got: %d", c.Provider.HealthTimeoutSec)
	}

	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis.url must not be empty when redis.enabled is true")
	}

	return nil
}

// IdleTimeout returns the pool idle timeout as a duration
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Pool.IdleTimeoutSec) * time.Second
}

// MaxSandboxAge returns the maximum sandbox age as a duration
func (c *Config) MaxSandboxAge() time.Duration {
	return time.Duration(c.Pool.MaxSandboxAgeSec) * time.Second
}

// RecentActivityWindow returns the health-check skip window as a duration
func (c *Config) RecentActivityWindow() time.Duration {
	return time.Duration(c.Pool.RecentActivityWindowSec) * time.Second
}

// CleanupInterval returns the cleanup scheduler interval as a duration
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Pool.CleanupIntervalSec) * time.Second
}

// RetryDelay returns the provider retry base delay as a duration
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Provider.RetryDelaySec * float64(time.Second))
}

// CacheTTL returns the distributed cache entry TTL. The TTL is the larger of
// the idle timeout and the max sandbox age so a cache entry can never expire
// while its in-memory record is still considered valid.
func (c *Config) CacheTTL() time.Duration {
	if c.Pool.IdleTimeoutSec > c.Pool.MaxSandboxAgeSec {
		return c.IdleTimeout()
	}
	return c.MaxSandboxAge()
}
