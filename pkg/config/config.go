package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/paperstack/paperstack/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (permission event relay)
	Redis RedisConfig

	// Cache configuration
	Cache CacheConfig

	// APIKeys configuration
	APIKeys APIKeyConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// MaxBodyBytes caps request body size
	MaxBodyBytes int64

	// CORSOrigins lists origins allowed to call the API from a browser.
	// Empty disables CORS handling entirely.
	CORSOrigins []string

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds redis connection settings for the event relay. An empty
// URL disables the relay; caches then rely on TTL expiry for cross-instance
// coherence.
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	Channel    string
}

// CacheConfig sizes the permission caches
type CacheConfig struct {
	MaxEntries int
	TTL        time.Duration
}

// APIKeyConfig controls background key maintenance
type APIKeyConfig struct {
	// SweepSchedule is a cron expression for disabling expired keys
	SweepSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Cache:         loadCacheConfig(),
		APIKeys:       loadAPIKeyConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("PAPERSTACK_HOST", "0.0.0.0"),
		Port:            getEnv("PAPERSTACK_PORT", "8080"),
		ReadTimeout:     getEnvDuration("PAPERSTACK_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("PAPERSTACK_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("PAPERSTACK_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("PAPERSTACK_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    int64(getEnvInt("PAPERSTACK_MAX_BODY_BYTES", 1<<20)),
		CORSOrigins:     getEnvList("PAPERSTACK_CORS_ORIGINS"),
		HealthPort:      getEnv("PAPERSTACK_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:          getEnv("PAPERSTACK_POSTGRES_URL", ""),
		MaxOpenConns: getEnvInt("PAPERSTACK_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns: getEnvInt("PAPERSTACK_POSTGRES_IDLE_CONNS", 5),
		ConnLifetime: getEnvDuration("PAPERSTACK_POSTGRES_CONN_LIFETIME", 30*time.Minute),
	}
}

// loadRedisConfig loads redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("PAPERSTACK_REDIS_URL", ""),
		Password:   getEnv("PAPERSTACK_REDIS_PASSWORD", ""),
		DB:         getEnvInt("PAPERSTACK_REDIS_DB", 0),
		MaxRetries: getEnvInt("PAPERSTACK_REDIS_MAX_RETRIES", 3),
		Channel:    getEnv("PAPERSTACK_REDIS_CHANNEL", ""),
	}
}

// loadCacheConfig loads permission cache sizing from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries: getEnvInt("PAPERSTACK_CACHE_MAX_ENTRIES", 10000),
		TTL:        getEnvDuration("PAPERSTACK_CACHE_TTL", 10*time.Minute),
	}
}

// loadAPIKeyConfig loads api key maintenance settings from environment
func loadAPIKeyConfig() APIKeyConfig {
	return APIKeyConfig{
		SweepSchedule: getEnv("PAPERSTACK_APIKEY_SWEEP_SCHEDULE", "@every 10m"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("PAPERSTACK_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("PAPERSTACK_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	if c.APIKeys.SweepSchedule == "" {
		return fmt.Errorf("api key sweep schedule is required")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated environment variable into its
// non-empty, trimmed entries
func getEnvList(key string) []string {
	var list []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
