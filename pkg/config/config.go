package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/platinummonkey/crmgate/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Scope         ScopeConfig
	Reports       ReportsConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL             string
	ReplicaURLs     []string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	AutoMigrate     bool
}

// RedisConfig holds Redis settings. An empty URL disables Redis and the
// in-process rate limiter is used instead.
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int

	RateLimitPerMinute int
	RateLimitBurst     int
}

// AuthConfig holds token settings
type AuthConfig struct {
	JWTSecret       string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	// FirebaseProjectID enables Firebase ID tokens as bearer credentials
	FirebaseProjectID string
}

// ScopeConfig controls the hierarchy snapshot cache
type ScopeConfig struct {
	CacheTTL  time.Duration
	CacheSize int
}

// ReportsConfig controls financial report fan-out and archiving
type ReportsConfig struct {
	FanOutLimit     int
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3UsePathStyle  bool
	ArchiveSchedule string
	SweepSchedule   string
}

// ArchiveEnabled reports whether an archive bucket is configured
func (r ReportsConfig) ArchiveEnabled() bool {
	return r.S3Bucket != ""
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// OTel converts the settings for observability.InitOTel
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// LoadConfig loads configuration from environment variables. Values from a
// .env file in the working directory (or CRMGATE_ENV_FILE) fill in
// variables that are not already set.
func LoadConfig() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		Scope:         loadScopeConfig(),
		Reports:       loadReportsConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadDotEnv() error {
	path := getEnv("CRMGATE_ENV_FILE", ".env")
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CRMGATE_HOST", "0.0.0.0"),
		Port:            getEnv("CRMGATE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CRMGATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CRMGATE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("CRMGATE_IDLE_TIMEOUT", 60*time.Second),
		RequestTimeout:  getEnvDuration("CRMGATE_REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getEnvDuration("CRMGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		CORSOrigins:     getEnvList("CRMGATE_CORS_ORIGINS"),
		HealthPort:      getEnv("CRMGATE_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("CRMGATE_DATABASE_URL", ""),
		ReplicaURLs:     getEnvList("CRMGATE_DATABASE_REPLICA_URLS"),
		MaxOpenConns:    getEnvInt("CRMGATE_DATABASE_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    getEnvInt("CRMGATE_DATABASE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("CRMGATE_DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		ConnectTimeout:  getEnvDuration("CRMGATE_DATABASE_CONNECT_TIMEOUT", 5*time.Second),
		AutoMigrate:     getEnvBool("CRMGATE_DATABASE_AUTO_MIGRATE", true),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:                getEnv("CRMGATE_REDIS_URL", ""),
		Password:           getEnv("CRMGATE_REDIS_PASSWORD", ""),
		DB:                 getEnvInt("CRMGATE_REDIS_DB", 0),
		PoolSize:           getEnvInt("CRMGATE_REDIS_POOL_SIZE", 10),
		MaxRetries:         getEnvInt("CRMGATE_REDIS_MAX_RETRIES", 3),
		RateLimitPerMinute: getEnvInt("CRMGATE_RATE_LIMIT_PER_MINUTE", 600),
		RateLimitBurst:     getEnvInt("CRMGATE_RATE_LIMIT_BURST", 50),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:         getEnv("CRMGATE_JWT_SECRET", ""),
		Issuer:            getEnv("CRMGATE_JWT_ISSUER", "crmgate"),
		AccessTokenTTL:    getEnvDuration("CRMGATE_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:   getEnvDuration("CRMGATE_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		FirebaseProjectID: getEnv("CRMGATE_FIREBASE_PROJECT_ID", ""),
	}
}

func loadScopeConfig() ScopeConfig {
	return ScopeConfig{
		CacheTTL:  getEnvDuration("CRMGATE_SCOPE_CACHE_TTL", 30*time.Second),
		CacheSize: getEnvInt("CRMGATE_SCOPE_CACHE_SIZE", 1024),
	}
}

func loadReportsConfig() ReportsConfig {
	return ReportsConfig{
		FanOutLimit:     getEnvInt("CRMGATE_REPORT_FANOUT", 4),
		S3Bucket:        getEnv("CRMGATE_S3_BUCKET", ""),
		S3Region:        getEnv("CRMGATE_S3_REGION", "us-east-1"),
		S3Endpoint:      getEnv("CRMGATE_S3_ENDPOINT", ""),
		S3AccessKey:     getEnv("CRMGATE_S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("CRMGATE_S3_SECRET_KEY", ""),
		S3UsePathStyle:  getEnvBool("CRMGATE_S3_USE_PATH_STYLE", false),
		ArchiveSchedule: getEnv("CRMGATE_ARCHIVE_SCHEDULE", "0 2 1 * *"),
		SweepSchedule:   getEnv("CRMGATE_SWEEP_SCHEDULE", "*/15 * * * *"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("CRMGATE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("CRMGATE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("CRMGATE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("CRMGATE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("CRMGATE_OTEL_SERVICE_NAME", "crmgate"),
		OTelServiceVersion: getEnv("CRMGATE_OTEL_SERVICE_VERSION", "dev"),
		OTelInsecure:       getEnvBool("CRMGATE_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("CRMGATE_OTEL_SAMPLE_RATIO", 1),
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

	if c.Database.URL == "" {
		return fmt.Errorf("CRMGATE_DATABASE_URL is required")
	}

	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("CRMGATE_JWT_SECRET must be at least 32 bytes")
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.Auth.RefreshTokenTTL < c.Auth.AccessTokenTTL {
		return fmt.Errorf("refresh token TTL must not be shorter than access token TTL")
	}

	if c.Scope.CacheTTL < 0 {
		return fmt.Errorf("scope cache TTL must not be negative")
	}

	if c.Reports.FanOutLimit < 1 {
		return fmt.Errorf("report fan-out must be at least 1")
	}
	if c.Reports.S3Bucket != "" && c.Reports.S3Region == "" {
		return fmt.Errorf("S3 region is required when an archive bucket is set")
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

// Addr is the API listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr is the ops listen address
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

// getEnvList splits a comma separated variable, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
