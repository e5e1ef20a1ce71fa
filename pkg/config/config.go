package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/casetrail/casetrail/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Database configuration
	Database DatabaseConfig `yaml:"database"`

	// Permission cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Evidence payload storage configuration
	Evidence EvidenceConfig `yaml:"evidence"`

	// Audit trail configuration
	Audit AuditConfig `yaml:"audit"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds permission cache settings
type CacheConfig struct {
	// Backend is "memory" or "redis"
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`

	// In-process backend
	MemorySize int `yaml:"memory_size"`

	// Redis backend
	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPoolSize int    `yaml:"redis_pool_size"`
}

// EvidenceConfig holds evidence payload storage settings
type EvidenceConfig struct {
	// Backend is "filesystem" or "s3"
	Backend        string `yaml:"backend"`
	FilesystemRoot string `yaml:"filesystem_root"`

	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`

	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	// FilePath enables the file logger when non-empty
	FilePath string `yaml:"file_path"`

	// RetentionDays bounds the SQL audit trail; 0 disables purging
	RetentionDays int `yaml:"retention_days"`

	// Cron spec for the retention purge and grant integrity sweep
	MaintenanceSchedule string `yaml:"maintenance_schedule"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"` // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables, applying an
// optional YAML overlay named by CASETRAIL_CONFIG_FILE first. Environment
// variables win over the file.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CASETRAIL_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Cache: CacheConfig{
			Backend:       "memory",
			TTL:           5 * time.Minute,
			MemorySize:    10000,
			RedisPoolSize: 10,
		},
		Evidence: EvidenceConfig{
			Backend:        "filesystem",
			FilesystemRoot: "/var/lib/casetrail/evidence",
			S3Region:       "us-east-1",
			MaxUploadBytes: 512 << 20,
		},
		Audit: AuditConfig{
			RetentionDays:       365,
			MaintenanceSchedule: "0 3 * * *",
		},
		Observability: ObservabilityConfig{
			LogLevel:           observability.InfoLevel,
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "casetrail",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	// Server
	c.Server.Host = getEnv("CASETRAIL_HOST", c.Server.Host)
	c.Server.Port = getEnv("CASETRAIL_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("CASETRAIL_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("CASETRAIL_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("CASETRAIL_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("CASETRAIL_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.HealthPort = getEnv("CASETRAIL_HEALTH_PORT", c.Server.HealthPort)

	// Database
	c.Database.URL = getEnv("CASETRAIL_POSTGRES_URL", c.Database.URL)
	c.Database.MaxOpenConns = getEnvInt("CASETRAIL_POSTGRES_MAX_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("CASETRAIL_POSTGRES_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = getEnvDuration("CASETRAIL_POSTGRES_CONN_LIFETIME", c.Database.ConnMaxLifetime)

	// Cache
	c.Cache.Backend = getEnv("CASETRAIL_CACHE_BACKEND", c.Cache.Backend)
	c.Cache.TTL = getEnvDuration("CASETRAIL_CACHE_TTL", c.Cache.TTL)
	c.Cache.MemorySize = getEnvInt("CASETRAIL_CACHE_MEMORY_SIZE", c.Cache.MemorySize)
	c.Cache.RedisURL = getEnv("CASETRAIL_REDIS_URL", c.Cache.RedisURL)
	c.Cache.RedisPassword = getEnv("CASETRAIL_REDIS_PASSWORD", c.Cache.RedisPassword)
	c.Cache.RedisDB = getEnvInt("CASETRAIL_REDIS_DB", c.Cache.RedisDB)
	c.Cache.RedisPoolSize = getEnvInt("CASETRAIL_REDIS_POOL_SIZE", c.Cache.RedisPoolSize)

	// Evidence storage
	c.Evidence.Backend = getEnv("CASETRAIL_EVIDENCE_BACKEND", c.Evidence.Backend)
	c.Evidence.FilesystemRoot = getEnv("CASETRAIL_EVIDENCE_ROOT", c.Evidence.FilesystemRoot)
	c.Evidence.S3Endpoint = getEnv("CASETRAIL_S3_ENDPOINT", c.Evidence.S3Endpoint)
	c.Evidence.S3Region = getEnv("CASETRAIL_S3_REGION", c.Evidence.S3Region)
	c.Evidence.S3Bucket = getEnv("CASETRAIL_S3_BUCKET", c.Evidence.S3Bucket)
	c.Evidence.S3AccessKey = getEnv("CASETRAIL_S3_ACCESS_KEY", c.Evidence.S3AccessKey)
	c.Evidence.S3SecretKey = getEnv("CASETRAIL_S3_SECRET_KEY", c.Evidence.S3SecretKey)
	c.Evidence.S3UsePathStyle = getEnvBool("CASETRAIL_S3_USE_PATH_STYLE", c.Evidence.S3UsePathStyle)
	c.Evidence.MaxUploadBytes = getEnvInt64("CASETRAIL_EVIDENCE_MAX_UPLOAD_BYTES", c.Evidence.MaxUploadBytes)

	// Audit
	c.Audit.FilePath = getEnv("CASETRAIL_AUDIT_FILE", c.Audit.FilePath)
	c.Audit.RetentionDays = getEnvInt("CASETRAIL_AUDIT_RETENTION_DAYS", c.Audit.RetentionDays)
	c.Audit.MaintenanceSchedule = getEnv("CASETRAIL_MAINTENANCE_SCHEDULE", c.Audit.MaintenanceSchedule)

	// Observability
	if level := os.Getenv("CASETRAIL_LOG_LEVEL"); level != "" {
		c.Observability.LogLevel = observability.ParseLevel(level)
	}
	c.Observability.MetricsEnabled = getEnvBool("CASETRAIL_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OTelEnabled = getEnvBool("CASETRAIL_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("CASETRAIL_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("CASETRAIL_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("CASETRAIL_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("CASETRAIL_OTEL_INSECURE", c.Observability.OTelInsecure)
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

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	switch c.Cache.Backend {
	case "memory":
		if c.Cache.MemorySize <= 0 {
			return fmt.Errorf("memory cache size must be positive")
		}
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory or redis)", c.Cache.Backend)
	}

	switch c.Evidence.Backend {
	case "filesystem":
		if c.Evidence.FilesystemRoot == "" {
			return fmt.Errorf("filesystem root is required for filesystem evidence storage")
		}
	case "s3":
		if c.Evidence.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 evidence storage")
		}
	default:
		return fmt.Errorf("invalid evidence backend: %s (must be filesystem or s3)", c.Evidence.Backend)
	}

	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit retention days must not be negative")
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

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
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
