// Package metrics defines the Prometheus instrumentation the reconciler
// exposes on /metrics: tick outcomes, elections, and reconfiguration counts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters and gauges the reconciler updates once per
// tick. Construct with NewMetrics and pass the result into reconciler.New.
type Metrics struct {
	TickOutcomesTotal *prometheus.CounterVec
	TickDuration      *prometheus.HistogramVec

	ElectionsTotal *prometheus.CounterVec
	ElectionsWon   *prometheus.CounterVec

	ReconfigurationsTotal *prometheus.CounterVec

	RosterSize      prometheus.Gauge
	ReplicaSetSize  prometheus.Gauge
}

// NewMetrics registers and returns the full metric set.
func NewMetrics() *Metrics {
	return &Metrics{
		TickOutcomesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replset_controller_tick_outcomes_total",
				Help: "Total number of reconciliation ticks by outcome.",
			},
			[]string{"outcome"},
		),
		TickDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "replset_controller_tick_duration_seconds",
				Help:    "Duration of a single reconciliation tick.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		ElectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replset_controller_elections_total",
				Help: "Total number of times this pod ran the election function.",
			},
			[]string{"branch"},
		),
		ElectionsWon: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replset_controller_elections_won_total",
				Help: "Total number of times this pod won the election function.",
			},
			[]string{"branch"},
		),
		ReconfigurationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replset_controller_reconfigurations_total",
				Help: "Total number of replSetReconfig/replSetInitiate calls issued.",
			},
			[]string{"kind", "result"},
		),
		RosterSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "replset_controller_roster_size",
			Help: "Number of Running pods with an IP observed on the last tick.",
		}),
		ReplicaSetSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "replset_controller_replica_set_size",
			Help: "Number of members reported by the last successful replSetGetStatus.",
		}),
	}
}
