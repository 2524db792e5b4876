package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quartzdata/chronicle/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Audit log configuration
	Audit AuditConfig

	// Archive and cache configuration
	Archive ArchiveConfig

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

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AuditConfig holds audit log settings
type AuditConfig struct {
	// LogPath is the JSONL audit log location.
	LogPath string
	// Console mirrors every appended record to stdout.
	Console bool
}

// ArchiveConfig holds the optional Postgres archive and Redis connection used
// by the query API and readiness probes. Both are optional; the JSONL file
// remains the system of record either way.
type ArchiveConfig struct {
	PostgresURL   string
	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Audit:         loadAuditConfig(),
		Archive:       loadArchiveConfig(),
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
		Host:            getEnv("CHRONICLE_HOST", "0.0.0.0"),
		Port:            getEnv("CHRONICLE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CHRONICLE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CHRONICLE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("CHRONICLE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CHRONICLE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("CHRONICLE_HEALTH_PORT", "9090"),
	}
}

// loadAuditConfig loads audit log configuration from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		LogPath: getEnv("CHRONICLE_AUDIT_LOG", "audit.log"),
		Console: getEnvBool("CHRONICLE_AUDIT_CONSOLE", false),
	}
}

// loadArchiveConfig loads archive and cache configuration from environment
func loadArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		PostgresURL:   getEnv("CHRONICLE_ARCHIVE_POSTGRES_URL", ""),
		RedisURL:      getEnv("CHRONICLE_REDIS_URL", ""),
		RedisPassword: getEnv("CHRONICLE_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("CHRONICLE_REDIS_DB", 0),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("CHRONICLE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("CHRONICLE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("CHRONICLE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("CHRONICLE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("CHRONICLE_OTEL_SERVICE_NAME", "chronicle"),
		OTelServiceVersion: getEnv("CHRONICLE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("CHRONICLE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate audit config
	if c.Audit.LogPath == "" {
		return fmt.Errorf("audit log path is required")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
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
