package service

import "github.com/prometheus/client_golang/prometheus"

var (
	cartItems = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_cart_items",
		Help: "Sum of quantities across cart line items.",
	})

	cartLines = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_cart_line_items",
		Help: "Number of distinct products in the cart.",
	})

	storageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_storage_errors_total",
			Help: "Cart persistence failures by operation.",
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(cartItems, cartLines, storageErrors)
}
