package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/event"
	handler "github.com/utafrali/storefront/internal/handler/http"
	"github.com/utafrali/storefront/internal/repository"
	pgrepo "github.com/utafrali/storefront/internal/repository/postgres"
	redisrepo "github.com/utafrali/storefront/internal/repository/redis"
	sqliterepo "github.com/utafrali/storefront/internal/repository/sqlite"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	pkgmw "github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/tracing"
)

// App wires together all dependencies and runs the storefront.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	closers        []namedCloser
	producer       *pkgkafka.Producer
	shutdownTracer func(context.Context) error
	httpServer     *http.Server
	stopBackground context.CancelFunc
}

type namedCloser struct {
	name  string
	close func() error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.shutdownTracer = shutdownTracer

	database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)

	storage, err := a.openStorage(ctx)
	if err != nil {
		a.closeAll()
		return nil, err
	}

	// Catalog client: one attempt per query, optionally behind a breaker.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.CatalogTimeout
	var doer httpclient.Doer = httpclient.New(httpCfg)
	if cfg.CatalogBreakerEnabled {
		doer = httpclient.NewCircuitBreakerClient(doer, httpclient.DefaultCircuitBreakerConfig("catalog"), logger)
	}
	catalogClient := catalog.NewClient(cfg.CatalogBaseURL, cfg.CatalogAPIKey, doer, logger)

	// Cart events.
	var publisher event.Publisher = event.NoopPublisher{}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(a.producer, logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	cart := service.NewCartStore(ctx, storage, publisher, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("storage", storage.Ping)
	healthHandler.RegisterNonCritical("catalog", func(ctx context.Context) error {
		_, err := catalogClient.NewSession().ListCategories(ctx)
		return err
	})
	if a.producer != nil {
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
	}

	corsCfg := pkgmw.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	corsCfg.Environment = cfg.Environment

	bgCtx, stopBackground := context.WithCancel(context.Background())
	a.stopBackground = stopBackground

	storefront := handler.NewStorefrontHandler(catalogClient, cart, logger)
	router := handler.NewRouter(bgCtx, storefront, healthHandler, logger, handler.Options{
		CORS:                corsCfg,
		PprofCIDRs:          cfg.PprofAllowedCIDRs,
		RateLimitRPS:        cfg.RateLimitRPS,
		RateLimitBurst:      cfg.RateLimitBurst,
		CatalogCacheSeconds: cfg.CatalogCacheSeconds,
	})

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// openStorage connects the configured cart backend.
func (a *App) openStorage(ctx context.Context) (repository.Storage, error) {
	switch a.cfg.CartStorage {
	case config.StorageRedis:
		rdb, err := database.NewRedisClient(ctx, a.cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.addCloser("redis", rdb.Close)
		a.logger.Info("connected to Redis",
			slog.String("addr", a.cfg.Redis.Addr()),
			slog.Int("db", a.cfg.Redis.DB),
		)
		return redisrepo.NewStorage(rdb, a.cfg.CartTTL), nil

	case config.StoragePostgres:
		pool, err := database.NewPostgresPool(ctx, &a.cfg.Postgres, a.logger)
		if err != nil {
			return nil, err
		}
		a.addCloser("postgres", func() error { pool.Close(); return nil })
		if err := database.RunMigrations(ctx, pool, pgrepo.Migrations(), a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.registerPoolMetrics("postgres", database.PgxPoolStats(pool))
		return pgrepo.NewStorage(pool), nil

	default:
		db, err := database.OpenSQLite(ctx, a.cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.addCloser("sqlite", db.Close)
		a.registerPoolMetrics("sqlite", database.SQLDBStats(db))
		a.logger.Info("opened sqlite storage", slog.String("path", a.cfg.SQLitePath))
		return sqliterepo.NewStorage(ctx, db)
	}
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

func (a *App) registerPoolMetrics(backend string, stats database.StatsFunc) {
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, backend, stats); err != nil {
		a.logger.Warn("failed to register pool metrics",
			slog.String("backend", backend),
			slog.String("error", err.Error()),
		)
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}
	a.stopBackground()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	a.closeAll()

	if err := a.shutdownTracer(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Error(c.name+" close error", slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}
