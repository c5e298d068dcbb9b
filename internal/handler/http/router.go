package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/internal/middleware"
	"github.com/utafrali/storefront/pkg/health"
	pkgmw "github.com/utafrali/storefront/pkg/middleware"
)

const serviceName = "storefront"

// Options tunes the outer middleware of the router.
type Options struct {
	CORS           pkgmw.CORSConfig
	PprofCIDRs     []string
	RateLimitRPS   float64
	RateLimitBurst int
	// CatalogCacheSeconds is the max-age sent on catalog views.
	CatalogCacheSeconds int
}

// NewRouter builds the route table: the three views, the cart actions, a
// redirect to / for anything else, and the operational endpoints. ctx
// bounds background work such as rate limiter cleanup.
func NewRouter(
	ctx context.Context,
	storefront *StorefrontHandler,
	healthHandler *health.Handler,
	logger *slog.Logger,
	opts Options,
) http.Handler {
	r := chi.NewRouter()

	r.Use(pkgmw.Recovery(logger))
	r.Use(pkgmw.CORS(opts.CORS))
	if opts.RateLimitRPS > 0 {
		r.Use(middleware.RateLimit(ctx, opts.RateLimitRPS, opts.RateLimitBurst, logger))
	}
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(pkgmw.RequestLogging(logger))
	r.Use(pkgmw.PrometheusMetrics(serviceName))
	r.Use(pkgmw.Tracing(serviceName))
	r.Use(pkgmw.RequestLogger(logger))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	pkgmw.RegisterPprof(r, opts.PprofCIDRs, logger)

	catalogCache := pkgmw.CacheControl(opts.CatalogCacheSeconds)
	r.With(pkgmw.View("home"), catalogCache).Get("/", storefront.Home)
	r.With(pkgmw.View("product_detail"), catalogCache).Get("/product/{id}", storefront.ProductDetail)

	r.Route("/cart", func(r chi.Router) {
		r.Use(pkgmw.View("cart"), pkgmw.NoStore)

		r.Get("/", storefront.Cart)
		r.Delete("/", storefront.ClearCart)
		r.Post("/items", storefront.AddItem)
		r.Put("/items/{id}", storefront.UpdateQuantity)
		r.Delete("/items/{id}", storefront.RemoveItem)
	})

	r.NotFound(NotFound)

	return r
}
