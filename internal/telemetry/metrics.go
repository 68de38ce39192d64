package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects batch-run instrumentation. One instance per process,
// registered on a caller-supplied registry so tests stay isolated.
type Metrics struct {
	OptimizationRuns   *prometheus.CounterVec
	WalkForwardRuns    *prometheus.CounterVec
	RegimeRuns         *prometheus.CounterVec
	SkippedTrades      *prometheus.CounterVec
	RunDurationSeconds *prometheus.HistogramVec
}

// New registers the engine's collectors on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		OptimizationRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "exittune_optimization_runs_total",
			Help: "Optimizer runs by pair and verdict",
		}, []string{"asset_class", "algorithm", "verdict"}),

		WalkForwardRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "exittune_walkforward_runs_total",
			Help: "Walk-forward validation runs by pair",
		}, []string{"asset_class", "algorithm"}),

		RegimeRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "exittune_regime_runs_total",
			Help: "Regime tracker runs by pair",
		}, []string{"asset_class", "algorithm"}),

		SkippedTrades: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "exittune_skipped_trades_total",
			Help: "Trades excluded for missing price paths",
		}, []string{"asset_class", "algorithm"}),

		RunDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exittune_run_duration_seconds",
			Help:    "Wall-clock duration of engine runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"kind"}),
	}
}

// NewDefault registers on the global prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
