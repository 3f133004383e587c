package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"actiond/internal/domain"
)

// Metrics bundles engine metrics registered on one explicit registry.
type Metrics struct {
	Registry *prometheus.Registry

	Thrown           prometheus.Gauge
	PerformErrors    *prometheus.CounterVec
	PerformDuration  *prometheus.HistogramVec
	Transitions      *prometheus.CounterVec
	LastRun          prometheus.Gauge
	OldestInState    *prometheus.GaugeVec
	ActionDuplicates prometheus.Counter
	AlertDuplicates  prometheus.Counter
	Purged           prometheus.Counter
	Ingested         *prometheus.CounterVec
}

// New constructs metrics and registers them on reg.
// Params: registry (fresh one when nil) and per-state population reader.
// Returns: metrics bundle; several engines may coexist with separate registries.
func New(reg *prometheus.Registry, population func(domain.ActionState) int64) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		Registry: reg,
		Thrown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "actiond_actions_thrown",
			Help: "Actions whose most recent attempt raised an error",
		}),
		PerformErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actiond_perform_errors_total",
				Help: "Recoverable perform errors by action type",
			},
			[]string{"type"},
		),
		PerformDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "actiond_perform_duration_seconds",
				Help:    "Perform latency by action type",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actiond_state_transitions_total",
				Help: "State transitions by target state",
			},
			[]string{"state"},
		),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "actiond_scheduler_last_run_timestamp_seconds",
			Help: "Unix time of the last completed scheduler pass",
		}),
		OldestInState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "actiond_oldest_state_change_timestamp_seconds",
				Help: "Earliest state transition among actions currently in state; 0 when none",
			},
			[]string{"state"},
		),
		ActionDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "actiond_action_duplicates_total",
			Help: "Action submissions matching an already known action",
		}),
		AlertDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "actiond_alert_duplicates_total",
			Help: "Alert submissions matching an already known label set",
		}),
		Purged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "actiond_actions_purged_total",
			Help: "Actions removed by purge",
		}),
		Ingested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "actiond_ingest_total",
				Help: "Ingested submissions by source and outcome",
			},
			[]string{"source", "outcome"},
		),
	}
	reg.MustRegister(
		m.Thrown,
		m.PerformErrors,
		m.PerformDuration,
		m.Transitions,
		m.LastRun,
		m.OldestInState,
		m.ActionDuplicates,
		m.AlertDuplicates,
		m.Purged,
		m.Ingested,
	)
	if population != nil {
		for _, state := range domain.States() {
			state := state
			reg.MustRegister(prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name:        "actiond_actions",
					Help:        "Known actions by last state",
					ConstLabels: prometheus.Labels{"state": string(state)},
				},
				func() float64 { return float64(population(state)) },
			))
		}
	}
	return m
}

// ObserveOldest publishes earliest transition per state.
// Params: map of state to earliest transition; absent states reset to 0.
// Returns: none.
func (m *Metrics) ObserveOldest(oldest map[domain.ActionState]time.Time) {
	for _, state := range domain.States() {
		ts, ok := oldest[state]
		if !ok || ts.IsZero() {
			m.OldestInState.WithLabelValues(string(state)).Set(0)
			continue
		}
		m.OldestInState.WithLabelValues(string(state)).Set(float64(ts.UnixNano()) / 1e9)
	}
}
