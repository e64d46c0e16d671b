package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/platinummonkey/crmgate/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("CRMGATE_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("CRMGATE_DATABASE_URL", "postgres://localhost/crmgate")
	t.Setenv("CRMGATE_JWT_SECRET", testSecret)
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.HealthAddr())
	assert.Equal(t, 10*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenTTL)
	assert.Equal(t, 30*time.Second, cfg.Scope.CacheTTL)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Reports.ArchiveEnabled())
	assert.Empty(t, cfg.Redis.URL)
	assert.True(t, cfg.Database.AutoMigrate)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("CRMGATE_PORT", "8181")
	t.Setenv("CRMGATE_SCOPE_CACHE_TTL", "0s")
	t.Setenv("CRMGATE_LOG_LEVEL", "debug")
	t.Setenv("CRMGATE_CORS_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("CRMGATE_S3_BUCKET", "reports")
	t.Setenv("CRMGATE_OTEL_SAMPLE_RATIO", "0.5")
	t.Setenv("CRMGATE_DATABASE_AUTO_MIGRATE", "false")
	t.Setenv("CRMGATE_DATABASE_REPLICA_URLS", "postgres://replica-1/crmgate,postgres://replica-2/crmgate")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8181", cfg.Server.Port)
	assert.Zero(t, cfg.Scope.CacheTTL)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Reports.ArchiveEnabled())
	assert.Equal(t, 0.5, cfg.Observability.OTel().SampleRatio)
	assert.False(t, cfg.Database.AutoMigrate)
	assert.Len(t, cfg.Database.ReplicaURLs, 2)
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CRMGATE_DATABASE_URL=postgres://from-file/crmgate\nCRMGATE_JWT_SECRET="+testSecret+"\n"), 0o600))
	t.Setenv("CRMGATE_ENV_FILE", path)
	// t.Setenv restores the previous values; unset so the file applies
	t.Setenv("CRMGATE_DATABASE_URL", "")
	t.Setenv("CRMGATE_JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("CRMGATE_DATABASE_URL"))
	require.NoError(t, os.Unsetenv("CRMGATE_JWT_SECRET"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://from-file/crmgate", cfg.Database.URL)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: "8080", HealthPort: "9090"},
			Database: DatabaseConfig{URL: "postgres://localhost/crmgate"},
			Auth: AuthConfig{
				JWTSecret:       testSecret,
				AccessTokenTTL:  time.Minute,
				RefreshTokenTTL: time.Hour,
			},
			Reports: ReportsConfig{FanOutLimit: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"same ports", func(c *Config) { c.Server.HealthPort = "8080" }, "must be different"},
		{"no database", func(c *Config) { c.Database.URL = "" }, "CRMGATE_DATABASE_URL"},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "at least 32 bytes"},
		{"refresh shorter than access", func(c *Config) { c.Auth.RefreshTokenTTL = time.Second }, "refresh token TTL"},
		{"negative cache ttl", func(c *Config) { c.Scope.CacheTTL = -time.Second }, "scope cache TTL"},
		{"zero fan-out", func(c *Config) { c.Reports.FanOutLimit = 0 }, "fan-out"},
		{"otel without endpoint", func(c *Config) { c.Observability.OTelEnabled = true; c.Observability.OTelServiceName = "x" }, "endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("CRMGATE_TEST_INT", "12")
	t.Setenv("CRMGATE_TEST_BAD_INT", "twelve")
	t.Setenv("CRMGATE_TEST_BOOL", "1")
	t.Setenv("CRMGATE_TEST_DURATION", "90s")

	assert.Equal(t, 12, getEnvInt("CRMGATE_TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("CRMGATE_TEST_BAD_INT", 7))
	assert.True(t, getEnvBool("CRMGATE_TEST_BOOL", false))
	assert.Equal(t, 90*time.Second, getEnvDuration("CRMGATE_TEST_DURATION", 0))
	assert.Equal(t, "fallback", getEnv("CRMGATE_TEST_UNSET", "fallback"))
	assert.Nil(t, getEnvList("CRMGATE_TEST_UNSET"))
}
