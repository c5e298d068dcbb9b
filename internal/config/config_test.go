package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("CATALOG_API_KEY", "test-key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, StorageSQLite, cfg.CartStorage)
	assert.Equal(t, "storefront.db", cfg.SQLitePath)
	assert.Equal(t, 10*time.Second, cfg.CatalogTimeout)
	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "storefront", cfg.Tracing.ServiceName)
	assert.Equal(t, "development", cfg.Tracing.Environment)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"127.0.0.1/32", "::1/128"}, cfg.PprofAllowedCIDRs)
}

func TestLoad_NestedPrefixes(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("POSTGRES_DB", "shop")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal", cfg.Redis.Host)
	assert.Equal(t, "shop", cfg.Postgres.DBName)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "production", cfg.Tracing.Environment)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"port", map[string]string{"STOREFRONT_HTTP_PORT": "0"}, "invalid HTTP port"},
		{"base url", map[string]string{"CATALOG_BASE_URL": "not a url"}, "invalid CATALOG_BASE_URL"},
		{"api key", map[string]string{"CATALOG_API_KEY": ""}, "CATALOG_API_KEY is required"},
		{"storage", map[string]string{"CART_STORAGE": "mongo"}, "invalid CART_STORAGE"},
		{"sample rate", map[string]string{"OTEL_SAMPLE_RATE": "2.0"}, "OTEL_SAMPLE_RATE"},
		{"rate limit", map[string]string{"RATE_LIMIT_RPS": "-1"}, "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
