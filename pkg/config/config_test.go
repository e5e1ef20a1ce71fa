package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/casetrail/casetrail/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{name: "returns true for 'true'", defaultValue: false, envValue: "true", want: true},
		{name: "returns true for '1'", defaultValue: false, envValue: "1", want: true},
		{name: "returns true for 'TRUE'", defaultValue: false, envValue: "TRUE", want: true},
		{name: "returns false for 'false'", defaultValue: true, envValue: "false", want: false},
		{name: "returns false for '0'", defaultValue: true, envValue: "0", want: false},
		{name: "returns default when not set", defaultValue: true, envValue: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
				defer os.Unsetenv(key)
			}

			got := getEnvBool(key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{name: "parses valid duration", defaultValue: time.Second, envValue: "30s", want: 30 * time.Second},
		{name: "parses minutes", defaultValue: time.Second, envValue: "5m", want: 5 * time.Minute},
		{name: "returns default for invalid value", defaultValue: 15 * time.Second, envValue: "not-a-duration", want: 15 * time.Second},
		{name: "returns default when not set", defaultValue: time.Minute, envValue: "", want: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_DURATION"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
				defer os.Unsetenv(key)
			}

			got := getEnvDuration(key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestLoadConfig_Defaults verifies default values with only the required URL set
func TestLoadConfig_Defaults(t *testing.T) {
	os.Setenv("CASETRAIL_POSTGRES_URL", "postgres://localhost/casetrail_test")
	defer os.Unsetenv("CASETRAIL_POSTGRES_URL")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %s, want 8080", cfg.Server.Port)
	}
	if cfg.Server.HealthPort != "9090" {
		t.Errorf("Server.HealthPort = %s, want 9090", cfg.Server.HealthPort)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Cache.Backend = %s, want memory", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Cache.TTL = %v, want 5m", cfg.Cache.TTL)
	}
	if cfg.Evidence.Backend != "filesystem" {
		t.Errorf("Evidence.Backend = %s, want filesystem", cfg.Evidence.Backend)
	}
	if cfg.Audit.RetentionDays != 365 {
		t.Errorf("Audit.RetentionDays = %d, want 365", cfg.Audit.RetentionDays)
	}
}

// TestLoadConfig_EnvOverrides verifies env vars win over defaults
func TestLoadConfig_EnvOverrides(t *testing.T) {
	envs := map[string]string{
		"CASETRAIL_POSTGRES_URL":  "postgres://db/casetrail",
		"CASETRAIL_PORT":          "8888",
		"CASETRAIL_CACHE_BACKEND": "redis",
		"CASETRAIL_REDIS_URL":     "redis://cache:6379",
		"CASETRAIL_LOG_LEVEL":     "debug",
	}
	for k, v := range envs {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range envs {
			os.Unsetenv(k)
		}
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8888" {
		t.Errorf("Server.Port = %s, want 8888", cfg.Server.Port)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("Cache.Backend = %s, want redis", cfg.Cache.Backend)
	}
	if cfg.Cache.RedisURL != "redis://cache:6379" {
		t.Errorf("Cache.RedisURL = %s, want redis://cache:6379", cfg.Cache.RedisURL)
	}
	if cfg.Observability.LogLevel != observability.DebugLevel {
		t.Errorf("LogLevel = %v, want debug", cfg.Observability.LogLevel)
	}
}

// TestLoadConfig_YAMLOverlay verifies file values apply under env values
func TestLoadConfig_YAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "casetrail.yaml")
	yamlBody := `
server:
  port: "7070"
database:
  url: postgres://file/casetrail
audit:
  retention_days: 30
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv("CASETRAIL_CONFIG_FILE", path)
	os.Setenv("CASETRAIL_PORT", "6060") // env wins over file
	defer os.Unsetenv("CASETRAIL_CONFIG_FILE")
	defer os.Unsetenv("CASETRAIL_PORT")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "6060" {
		t.Errorf("Server.Port = %s, want env override 6060", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://file/casetrail" {
		t.Errorf("Database.URL = %s, want file value", cfg.Database.URL)
	}
	if cfg.Audit.RetentionDays != 30 {
		t.Errorf("Audit.RetentionDays = %d, want 30", cfg.Audit.RetentionDays)
	}
}

// TestValidate covers rejection paths
func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := defaultConfig()
		cfg.Database.URL = "postgres://localhost/casetrail"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid default", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }, wantErr: true},
		{name: "port collision", mutate: func(c *Config) { c.Server.HealthPort = c.Server.Port }, wantErr: true},
		{name: "missing database URL", mutate: func(c *Config) { c.Database.URL = "" }, wantErr: true},
		{name: "unknown cache backend", mutate: func(c *Config) { c.Cache.Backend = "memcached" }, wantErr: true},
		{name: "redis backend without URL", mutate: func(c *Config) { c.Cache.Backend = "redis" }, wantErr: true},
		{name: "unknown evidence backend", mutate: func(c *Config) { c.Evidence.Backend = "tape" }, wantErr: true},
		{name: "s3 backend without bucket", mutate: func(c *Config) { c.Evidence.Backend = "s3" }, wantErr: true},
		{name: "negative retention", mutate: func(c *Config) { c.Audit.RetentionDays = -1 }, wantErr: true},
		{name: "otel enabled without endpoint", mutate: func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
