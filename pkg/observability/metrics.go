package observability

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aretw0/fable/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fable"

// Metrics holds the collectors fed by Hooks.
type Metrics struct {
	NodeVisits         *prometheus.CounterVec
	Choices            prometheus.Counter
	FlagWrites         *prometheus.CounterVec
	ConditionErrors    prometheus.Counter
	ValidationFailures *prometheus.CounterVec
	HistoryOps         *prometheus.CounterVec
	Autosaves          *prometheus.CounterVec
	PersistenceLatency *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// skips registration.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		NodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_visits_total",
			Help:      "Total number of node visits",
		}, []string{"node_id", "cause"}),
		Choices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "choices_total",
			Help:      "Total number of committed choices",
		}),
		FlagWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flag_writes_total",
			Help:      "Flag sets and deletes",
		}, []string{"op"}),
		ConditionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "condition_errors_total",
			Help:      "Conditions that failed to evaluate and hid their choice",
		}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Rejected choices by rule",
		}, []string{"rule"}),
		HistoryOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_operations_total",
			Help:      "Undo and redo attempts",
		}, []string{"operation", "success"}),
		Autosaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autosaves_total",
			Help:      "Autosave triggers by outcome",
		}, []string{"trigger", "outcome"}),
		PersistenceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persistence_duration_seconds",
			Help:      "Duration of save, load, checkpoint and restore operations",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"operation", "success"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.NodeVisits, m.Choices, m.FlagWrites, m.ConditionErrors,
		m.ValidationFailures, m.HistoryOps, m.Autosaves, m.PersistenceLatency,
	}
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(e.NodeID, string(e.Cause)).Inc()
		},
		OnChoiceMade: func(context.Context, *domain.ChoiceEvent) {
			m.Choices.Inc()
		},
		OnFlagSet: func(_ context.Context, e *domain.FlagEvent) {
			op := "set"
			if e.Deleted {
				op = "delete"
			}
			m.FlagWrites.WithLabelValues(op).Inc()
		},
		OnConditionError: func(context.Context, *domain.ConditionEvent) {
			m.ConditionErrors.Inc()
		},
		OnValidationFailed: func(_ context.Context, e *domain.ValidationEvent) {
			m.ValidationFailures.WithLabelValues(e.Rule).Inc()
		},
		OnHistory: func(_ context.Context, e *domain.HistoryEvent) {
			m.HistoryOps.WithLabelValues(e.Operation, strconv.FormatBool(e.Success)).Inc()
		},
		OnAutosave: func(_ context.Context, e *domain.AutosaveEvent) {
			outcome := "skipped"
			switch {
			case e.Saved:
				outcome = "saved"
			case e.Throttled:
				outcome = "throttled"
			}
			m.Autosaves.WithLabelValues(e.Trigger, outcome).Inc()
		},
		OnPersistence: func(_ context.Context, e *domain.PersistenceEvent) {
			m.PersistenceLatency.WithLabelValues(e.Operation, strconv.FormatBool(e.Success)).Observe(e.Duration.Seconds())
		},
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
