// Package config provides application configuration management.
//
// # Overview
//
// Server configuration is loaded from environment variables with sensible
// defaults for all settings. Migration runs can additionally be configured
// from a YAML file for unattended use.
//
// # Server Configuration
//
// Server settings:
//
//	CHRONICLE_HOST="0.0.0.0"
//	CHRONICLE_PORT="8080"
//	CHRONICLE_HEALTH_PORT="9090"
//	CHRONICLE_READ_TIMEOUT="15s"
//	CHRONICLE_WRITE_TIMEOUT="15s"
//	CHRONICLE_SHUTDOWN_TIMEOUT="30s"
//
// Audit log settings:
//
//	CHRONICLE_AUDIT_LOG="audit.log"
//	CHRONICLE_AUDIT_CONSOLE="false"
//
// Archive and cache settings:
//
//	CHRONICLE_ARCHIVE_POSTGRES_URL="postgres://localhost/chronicle"
//	CHRONICLE_REDIS_URL="localhost:6379"
//
// Observability settings:
//
//	CHRONICLE_LOG_LEVEL="info"  # debug, info, warn, error
//	CHRONICLE_METRICS_ENABLED="true"
//	CHRONICLE_OTEL_ENABLED="false"
//	CHRONICLE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load server configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Audit log: %s\n", cfg.Audit.LogPath)
//
// # Migration Configuration
//
// A migration config file supplies the same settings the chronicle-migrate
// flags do; explicit flags win:
//
//	uri: sqlite:///data/prices.db
//	library: prices
//	user: system_migration
//	audit_log: /var/log/chronicle/audit.log
//	workers: 4
//	schedule: "0 2 * * *"
package config
