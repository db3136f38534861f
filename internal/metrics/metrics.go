// Package metrics registers the ledger's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperledger_orders_total",
			Help: "Orders submitted, by type, side and outcome",
		},
		[]string{"type", "side", "outcome"},
	)

	fillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperledger_fills_total",
			Help: "Executed fills by symbol and side",
		},
		[]string{"symbol", "side"},
	)

	versionConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperledger_version_conflicts_total",
			Help: "Optimistic lock conflicts, by operation",
		},
		[]string{"operation"},
	)

	retriesExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperledger_retries_exhausted_total",
			Help: "Operations that gave up after the retry budget",
		},
		[]string{"operation"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "paperledger_sweep_duration_seconds",
			Help:    "Duration of pending limit order sweeps",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
	)

	sweepOrders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperledger_sweep_orders_total",
			Help: "Pending orders examined by the sweep, by result",
		},
		[]string{"result"},
	)

	recalculations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperledger_portfolio_recalculations_total",
			Help: "Portfolio recalculations by result",
		},
		[]string{"result"},
	)
)

func RecordOrder(orderType, side, outcome string) {
	ordersTotal.WithLabelValues(orderType, side, outcome).Inc()
}

func RecordFill(symbol, side string) {
	fillsTotal.WithLabelValues(symbol, side).Inc()
}

func RecordVersionConflict(operation string) {
	versionConflicts.WithLabelValues(operation).Inc()
}

func RecordRetriesExhausted(operation string) {
	retriesExhausted.WithLabelValues(operation).Inc()
}

func ObserveSweep(d time.Duration, filled, skipped, failed int) {
	sweepDuration.Observe(d.Seconds())
	sweepOrders.WithLabelValues("filled").Add(float64(filled))
	sweepOrders.WithLabelValues("skipped").Add(float64(skipped))
	sweepOrders.WithLabelValues("failed").Add(float64(failed))
}

func RecordRecalculation(result string) {
	recalculations.WithLabelValues(result).Inc()
}
