package runner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============ Циклы ============

var cyclesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "trade_guard",
		Subsystem: "runner",
		Name:      "cycles_total",
		Help:      "Completed poll cycles by loop and result",
	},
	[]string{"loop", "result"},
)

var cycleDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "trade_guard",
		Subsystem: "runner",
		Name:      "cycle_duration_ms",
		Help:      "Poll cycle duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	},
	[]string{"loop"},
)

// priceSource — откуда взяли цену для группы: feed, cache, miss
var priceSource = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "trade_guard",
		Subsystem: "runner",
		Name:      "price_source_total",
		Help:      "Price resolutions per symbol group by source",
	},
	[]string{"loop", "source"},
)

var evaluationErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "trade_guard",
		Subsystem: "runner",
		Name:      "evaluation_errors_total",
		Help:      "Per-item evaluation failures (errors and recovered panics)",
	},
	[]string{"loop", "kind"},
)

// ============ Движки ============

var stopsMoved = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "trade_guard",
		Subsystem: "trail",
		Name:      "stops_moved_total",
		Help:      "Trailing stop ratchets by direction",
	},
	[]string{"direction"},
)

var positionsClosed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "trade_guard",
		Subsystem: "trail",
		Name:      "positions_closed_total",
		Help:      "Closed positions by close type",
	},
	[]string{"close_type"},
)

var cascadeFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "trade_guard",
		Subsystem: "trail",
		Name:      "cascade_failures_total",
		Help:      "Failed cascade steps after a stop-loss close",
	},
	[]string{"step"},
)

var pushGroupsClosed = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "trade_guard",
		Subsystem: "trail",
		Name:      "push_groups_closed_total",
		Help:      "Push groups closed after their last position closed",
	},
)

var conditionalOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "trade_guard",
		Subsystem: "trigger",
		Name:      "conditional_orders_total",
		Help:      "Triggered conditional orders by final status",
	},
	[]string{"status"},
)

var reconcileActions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "trade_guard",
		Subsystem: "reconcile",
		Name:      "actions_total",
		Help:      "Repairs made by the reconciliation sweep",
	},
	[]string{"action"},
)
