package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/minirx/internal/effect"
	"github.com/roach88/minirx/internal/engine"
	"github.com/roach88/minirx/internal/ir"
)

const namespace = "minirx"

// Metrics is a store extension that exports Prometheus metrics for
// dispatched actions, reducer latency, state changes and effect failures.
//
// Add it with engine.Config.Extensions (or Store.AddExtension) and pass
// EffectErrorHook to engine.WithEffectErrorHook to count effect failures.
type Metrics struct {
	actions          *prometheus.CounterVec   // by action type
	stateChanges     prometheus.Counter       // reductions that produced a new tree
	replacements     prometheus.Counter       // external UpdateState calls
	reducerDuration  *prometheus.HistogramVec // by action type
	reducerPanics    prometheus.Counter
	effectErrors     *prometheus.CounterVec // by effect name and kind (error/panic)
	observedSessions *prometheus.GaugeVec   // 1 per attached store session
}

// NewMetrics creates the collectors and registers them with reg.
// Returns an error if any collector is already registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "actions_total",
			Help:      "Total number of actions processed by the store",
		}, []string{"type"}),

		stateChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "state_changes_total",
			Help:      "Total number of reductions that produced a new state tree",
		}),

		replacements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "state_replacements_total",
			Help:      "Total number of external full-state replacements",
		}),

		reducerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "reducer_duration_seconds",
			Help:      "Root reducer duration in seconds",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"type"}),

		reducerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "reducer_panics_total",
			Help:      "Total number of reducer panics",
		}),

		effectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "effects",
			Name:      "errors_total",
			Help:      "Total number of effect handler failures",
		}, []string{"effect", "kind"}), // kind: error, panic

		observedSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "session_info",
			Help:      "Store sessions observed by this process",
		}, []string{"session"}),
	}

	collectors := []prometheus.Collector{
		m.actions,
		m.stateChanges,
		m.replacements,
		m.reducerDuration,
		m.reducerPanics,
		m.effectErrors,
		m.observedSessions,
	}
	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// Name implements engine.Named.
func (m *Metrics) Name() string { return "metrics" }

// Init implements engine.Extension.
func (m *Metrics) Init(h engine.Host) error {
	m.observedSessions.WithLabelValues(h.Session()).Set(1)
	return nil
}

// OnActionAndState implements engine.Extension.
func (m *Metrics) OnActionAndState(a ir.Action, _ ir.State) error {
	if a.Type == ir.UpdateStateType {
		m.replacements.Inc()
		return nil
	}
	m.actions.WithLabelValues(a.Type).Inc()
	return nil
}

// MetaReducer implements engine.MetaReducerProvider. It times the wrapped
// reducer and counts reductions that change the tree.
func (m *Metrics) MetaReducer() engine.MetaReducer {
	return func(next engine.Reducer) engine.Reducer {
		return func(state any, a ir.Action) any {
			start := time.Now()
			panicked := true
			defer func() {
				m.reducerDuration.WithLabelValues(a.Type).Observe(time.Since(start).Seconds())
				if panicked {
					m.reducerPanics.Inc()
				}
			}()

			out := next(state, a)
			panicked = false
			if !ir.Same(state, out) {
				m.stateChanges.Inc()
			}
			return out
		}
	}
}

// EffectErrorHook returns a hook counting effect failures.
func (m *Metrics) EffectErrorHook() effect.ErrorHook {
	return func(err *effect.TransformError) {
		kind := "error"
		if err.Panic != nil {
			kind = "panic"
		}
		m.effectErrors.WithLabelValues(err.Effect, kind).Inc()
	}
}
