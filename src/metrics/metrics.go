package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumixd_orders_created_total",
		Help: "Orders created, by kind and direction.",
	}, []string{"kind", "direction"})

	OrdersTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumixd_orders_terminal_total",
		Help: "Orders reaching a terminal status.",
	}, []string{"status"})

	GatewayFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lumixd_gateway_failures_total",
		Help: "Failed quote/swap/price/balance gateway calls.",
	}, []string{"op"})

	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lumixd_order_execution_seconds",
		Help:    "Wall time of order execution attempts.",
		Buckets: prometheus.DefBuckets,
	})
)
