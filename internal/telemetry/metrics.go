package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration tracks request latency by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "path", "status"},
	)

	// OrdersTotal counts accepted orders.
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_orders_total",
			Help: "Total number of accepted orders",
		},
		[]string{"symbol", "side", "kind"},
	)

	// OrdersRejectedTotal counts orders refused before matching.
	OrdersRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_orders_rejected_total",
			Help: "Total number of rejected orders by reason",
		},
		[]string{"reason"},
	)

	// ExecutionsTotal counts executions by symbol.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_executions_total",
			Help: "Total number of executions by symbol",
		},
		[]string{"symbol"},
	)

	// TradedQuantityTotal sums executed quantity by symbol.
	TradedQuantityTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_traded_quantity_total",
			Help: "Total executed quantity by symbol",
		},
		[]string{"symbol"},
	)

	// MatchDuration tracks time spent inside the matching engine.
	MatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exchange_match_duration_seconds",
			Help:    "Time spent matching a single order",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		},
		[]string{"symbol"},
	)

	// OrderBookLevels tracks the number of price levels per side.
	OrderBookLevels = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "exchange_orderbook_levels",
			Help: "Current number of price levels",
		},
		[]string{"symbol", "side"},
	)

	// FeedPublishErrorsTotal counts failed downstream deliveries.
	FeedPublishErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_feed_publish_errors_total",
			Help: "Total number of failed execution feed or cache writes",
		},
		[]string{"sink"},
	)
)
