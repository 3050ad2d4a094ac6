// Package metrics exposes Prometheus instruments for the scanner and the
// execution pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Opportunities = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arbscan_opportunities",
		Help: "Opportunities found by the last scheduled scan",
	}, []string{"kind"})

	BestSpread = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arbscan_best_spread_pct",
		Help: "Best direct spread in the last scheduled scan",
	})

	ScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "arbscan_scan_duration_seconds",
		Help:    "Time to obtain a snapshot and run the engine",
		Buckets: prometheus.DefBuckets,
	})

	VenueFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbscan_venue_fetches_total",
		Help: "Venue quote fetches by resulting state",
	}, []string{"venue", "state"})

	VenueLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arbscan_venue_latency_seconds",
		Help:    "Venue quote fetch latency",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"venue"})

	Trades = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbscan_trades_total",
		Help: "Finished execution attempts by terminal status",
	}, []string{"status"})

	RiskRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arbscan_risk_rejections_total",
		Help: "Execution requests rejected before starting",
	}, []string{"check"})

	RealizedPnL = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arbscan_daily_net_pnl_ada",
		Help: "Net realized P&L for the current local day",
	})

	KillSwitch = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arbscan_kill_switch_total",
		Help: "Kill switch activations",
	})
)

func init() {
	prometheus.MustRegister(
		Opportunities,
		BestSpread,
		ScanDuration,
		VenueFetches,
		VenueLatency,
		Trades,
		RiskRejections,
		RealizedPnL,
		KillSwitch,
	)
}
