package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/storefront/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context, enriched
// with correlation_id, trace_id and span_id. Mount it after RequestLogging
// and Tracing so those values are already present.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// View tags the request with the name of the view serving it, both in the
// context and on the request-scoped logger.
func View(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recordView(r.Context(), name)
			ctx := logger.WithView(r.Context(), name)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("view", name)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
