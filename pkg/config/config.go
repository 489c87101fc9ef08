package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/plantops/pkg/observability"
)

const envPrefix = "PLANTOPS_"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Cache         CacheConfig
	Directory     DirectoryConfig
	Audit         AuditConfig
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

	// MaxBodyBytes caps JSON request bodies
	MaxBodyBytes int64
	// RateLimitPerMinute is the per-caller request budget; 0 disables limiting
	RateLimitPerMinute int
	RateLimitBurst     int
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// RunMigrations applies the schema at startup
	RunMigrations bool
}

// AuthConfig controls authentication and authorization
type AuthConfig struct {
	// AnonymousMode allows every request through the authorization handler
	AnonymousMode bool
	IssuerURL     string
	Audience      string
	// Environment is recorded on resolved identities (e.g. "production")
	Environment string
	// AreaMapFile is an optional YAML controller to area table, hot reloaded
	AreaMapFile string
}

// CacheConfig selects and sizes the identity cache
type CacheConfig struct {
	// TTL bounds how long a resolved identity is reused (session lifetime)
	TTL  time.Duration
	Size int
	// RedisURL switches the identity cache to Redis when set
	RedisURL string
}

// DirectoryConfig holds settings for syncing users from the identity directory
type DirectoryConfig struct {
	Enabled      bool
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	// GroupID is the directory group whose members may use the API
	GroupID string
	// DefaultRole is assigned to newly synced users
	DefaultRole string
	// Schedule is a cron spec for periodic resyncs; empty disables it
	Schedule string
	Timeout  time.Duration
}

// AuditConfig controls the persisted audit trail
type AuditConfig struct {
	Enabled bool
	// Retention is how long events are kept; PruneSchedule is a cron spec
	Retention     time.Duration
	PruneSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Auth:          loadAuthConfig(),
		Cache:         loadCacheConfig(),
		Directory:     loadDirectoryConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "8080"),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("HEALTH_PORT", "9090"),

		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 600),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 50),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("DATABASE_URL", ""),
		MaxOpenConns:    getEnvInt("DATABASE_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    getEnvInt("DATABASE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		RunMigrations:   getEnvBool("DATABASE_MIGRATE", true),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		AnonymousMode: getEnvBool("AUTH_ANONYMOUS", false),
		IssuerURL:     getEnv("AUTH_ISSUER_URL", ""),
		Audience:      getEnv("AUTH_AUDIENCE", ""),
		Environment:   getEnv("ENVIRONMENT", "development"),
		AreaMapFile:   getEnv("AUTH_AREA_MAP_FILE", ""),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:      getEnvDuration("IDENTITY_CACHE_TTL", 8*time.Hour),
		Size:     getEnvInt("IDENTITY_CACHE_SIZE", 10000),
		RedisURL: getEnv("REDIS_URL", ""),
	}
}

func loadDirectoryConfig() DirectoryConfig {
	return DirectoryConfig{
		Enabled:      getEnvBool("DIRECTORY_ENABLED", false),
		BaseURL:      getEnv("DIRECTORY_BASE_URL", "https://graph.microsoft.com/v1.0"),
		TokenURL:     getEnv("DIRECTORY_TOKEN_URL", ""),
		ClientID:     getEnv("DIRECTORY_CLIENT_ID", ""),
		ClientSecret: getEnv("DIRECTORY_CLIENT_SECRET", ""),
		Scopes:       getEnvList("DIRECTORY_SCOPES", []string{"https://graph.microsoft.com/.default"}),
		GroupID:      getEnv("DIRECTORY_GROUP_ID", ""),
		DefaultRole:  getEnv("DIRECTORY_DEFAULT_ROLE", "Viewer"),
		Schedule:     getEnv("DIRECTORY_SCHEDULE", "@every 1h"),
		Timeout:      getEnvDuration("DIRECTORY_TIMEOUT", 30*time.Second),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:       getEnvBool("AUDIT_ENABLED", true),
		Retention:     getEnvDuration("AUDIT_RETENTION", 90*24*time.Hour),
		PruneSchedule: getEnv("AUDIT_PRUNE_SCHEDULE", "@daily"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("OTEL_SERVICE_NAME", "plantops-api"),
		OTelServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("OTEL_SAMPLE_RATIO", 1),
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
	if c.Server.RateLimitPerMinute < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	if !c.Auth.AnonymousMode && c.Auth.IssuerURL == "" {
		return fmt.Errorf("auth issuer URL is required unless anonymous mode is enabled")
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("identity cache TTL must be positive")
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("identity cache size must be positive")
	}
	if c.Cache.RedisURL != "" {
		if _, err := url.Parse(c.Cache.RedisURL); err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
	}

	if c.Directory.Enabled {
		d := c.Directory
		if d.TokenURL == "" || d.ClientID == "" || d.ClientSecret == "" {
			return fmt.Errorf("directory token URL, client id and client secret are required when directory sync is enabled")
		}
		if d.GroupID == "" {
			return fmt.Errorf("directory group id is required when directory sync is enabled")
		}
		if d.DefaultRole == "" {
			return fmt.Errorf("directory default role is required when directory sync is enabled")
		}
	}

	if c.Audit.Enabled && c.Audit.Retention <= 0 {
		return fmt.Errorf("audit retention must be positive")
	}

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

// getEnv returns a PLANTOPS_ prefixed environment variable or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(envPrefix + key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(envPrefix + key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
