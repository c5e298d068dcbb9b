package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/tracing"
)

// Cart storage backends.
const (
	StorageSQLite   = "sqlite"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config holds all configuration for the storefront.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"STOREFRONT_HTTP_PORT" envDefault:"8080"`

	// Catalog API
	CatalogBaseURL        string        `env:"CATALOG_BASE_URL" envDefault:"https://nti.urfu.ru/api_exam"`
	CatalogAPIKey         string        `env:"CATALOG_API_KEY"`
	CatalogTimeout        time.Duration `env:"CATALOG_TIMEOUT" envDefault:"10s"`
	CatalogBreakerEnabled bool          `env:"CATALOG_BREAKER_ENABLED" envDefault:"false"`
	CatalogCacheSeconds   int           `env:"CATALOG_CACHE_SECONDS" envDefault:"30"`

	// Cart storage
	CartStorage        string                  `env:"CART_STORAGE" envDefault:"sqlite"`
	CartTTL            time.Duration           `env:"CART_TTL" envDefault:"0s"`
	SQLitePath         string                  `env:"SQLITE_PATH" envDefault:"storefront.db"`
	Redis              database.RedisConfig    `envPrefix:"REDIS_"`
	Postgres           database.PostgresConfig `envPrefix:"POSTGRES_"`
	SlowQueryThreshold time.Duration           `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// OpenTelemetry
	Tracing tracing.Config `envPrefix:"OTEL_"`

	// Edge
	RateLimitRPS       float64  `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst     int      `env:"RATE_LIMIT_BURST" envDefault:"40"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	PprofAllowedCIDRs  []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	cfg.Tracing.Environment = cfg.Environment
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	u, err := url.Parse(c.CatalogBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid CATALOG_BASE_URL: %q", c.CatalogBaseURL)
	}
	if c.CatalogAPIKey == "" {
		return fmt.Errorf("CATALOG_API_KEY is required")
	}
	if c.CatalogTimeout <= 0 {
		return fmt.Errorf("CATALOG_TIMEOUT must be positive")
	}
	switch c.CartStorage {
	case StorageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for sqlite storage")
		}
	case StorageRedis, StoragePostgres:
	default:
		return fmt.Errorf("invalid CART_STORAGE %q: want sqlite, redis or postgres", c.CartStorage)
	}
	if c.CartTTL < 0 {
		return fmt.Errorf("CART_TTL must not be negative")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1, got %v", c.Tracing.SampleRate)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}
	return nil
}
