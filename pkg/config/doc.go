// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	PAPERSTACK_HOST="0.0.0.0"
//	PAPERSTACK_PORT="8080"
//	PAPERSTACK_HEALTH_PORT="9090"
//	PAPERSTACK_READ_TIMEOUT="30s"
//	PAPERSTACK_WRITE_TIMEOUT="30s"
//
// Database settings:
//
//	PAPERSTACK_POSTGRES_URL="postgres://localhost/paperstack"
//	PAPERSTACK_POSTGRES_MAX_CONNS="25"
//	PAPERSTACK_POSTGRES_CONN_LIFETIME="30m"
//
// Event relay settings (empty URL disables the relay):
//
//	PAPERSTACK_REDIS_URL="redis://localhost:6379"
//	PAPERSTACK_REDIS_CHANNEL="paperstack:permission-events"
//
// Permission cache settings:
//
//	PAPERSTACK_CACHE_MAX_ENTRIES="10000"
//	PAPERSTACK_CACHE_TTL="10m"
//
// API key maintenance:
//
//	PAPERSTACK_APIKEY_SWEEP_SCHEDULE="@every 10m"
//
// Observability settings:
//
//	PAPERSTACK_LOG_LEVEL="info"  # debug, info, warn, error
//	PAPERSTACK_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/store: Uses database configuration
//   - pkg/observability: Uses observability configuration
package config
