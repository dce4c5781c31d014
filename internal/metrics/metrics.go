/*

This file contains the Prometheus instrumentation for the keeper: cycle
and outcome counters, per-tube collateral ratio gauges, and the amounts
moved by successful siphons.

*/

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siphon_keeper_cycles_total",
		Help: "Number of keeper cycles started.",
	})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siphon_runs_total",
		Help: "Siphon runs per tube, labelled by outcome.",
	}, []string{"tube", "outcome"})

	AmountOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siphon_amount_out_wad_total",
		Help: "Debt asset withdrawn and repaid per tube, in whole tokens.",
	}, []string{"tube"})

	CollateralRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "siphon_collateral_ratio",
		Help: "Last observed collateralization ratio per tube.",
	}, []string{"tube"})

	LiquidityBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "siphon_liquidity_balance",
		Help: "Redeemable liquidity per tube in whole debt-asset tokens.",
	}, []string{"tube"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "siphon_cycle_duration_seconds",
		Help:    "Wall-clock duration of keeper cycles.",
		Buckets: prometheus.DefBuckets,
	})
)

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
