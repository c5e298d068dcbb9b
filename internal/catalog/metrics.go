package catalog

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_catalog_queries_total",
			Help: "Catalog API queries by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_catalog_query_duration_seconds",
			Help:    "Catalog API query latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(queriesTotal, queryDuration)
}

// Query outcomes.
const (
	outcomeOK        = "ok"
	outcomeTransport = "transport_error"
	outcomeStatus    = "status_error"
	outcomeClient    = "client_error"
	outcomeDecode    = "decode_error"
)

// endpointLabel collapses numeric path segments so /product/42 and
// /product/43 share a series.
func endpointLabel(endpoint string) string {
	parts := strings.Split(endpoint, "/")
	for i, p := range parts {
		if p != "" && strings.Trim(p, "0123456789") == "" {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}
