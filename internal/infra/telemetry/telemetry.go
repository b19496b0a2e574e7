package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the gateway's engine-level Prometheus collectors.
type Metrics struct {
	InvocationsTotal         *prometheus.CounterVec
	DebitRetriesTotal        prometheus.Counter
	DebitReplaysTotal        prometheus.Counter
	InsufficientBalanceTotal prometheus.Counter
	SessionRefreshTotal      *prometheus.CounterVec
}

// NewMetrics registers the engine collectors with the provided registerer.
// Passing nil uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		InvocationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tollgate",
			Name:      "invocations_total",
			Help:      "Terminal invocation outcomes by operation and outcome code",
		}, []string{"operation", "outcome"}),
		DebitRetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tollgate",
			Name:      "debit_retries_total",
			Help:      "Debit attempts retried after transient storage failures",
		}),
		DebitReplaysTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tollgate",
			Name:      "debit_replays_total",
			Help:      "Debits answered from an existing idempotency record",
		}),
		InsufficientBalanceTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tollgate",
			Name:      "insufficient_balance_total",
			Help:      "Invocations rejected for insufficient balance",
		}),
		SessionRefreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tollgate",
			Name:      "session_refresh_total",
			Help:      "Session refresh attempts by result",
		}, []string{"result"}),
	}
}

// ObserveInvocation records a terminal invocation outcome.
func (m *Metrics) ObserveInvocation(operation, outcome string) {
	if m == nil {
		return
	}
	m.InvocationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveDebitRetry records one retried debit attempt.
func (m *Metrics) ObserveDebitRetry() {
	if m == nil {
		return
	}
	m.DebitRetriesTotal.Inc()
}

// ObserveDebitReplay records a debit answered idempotently.
func (m *Metrics) ObserveDebitReplay() {
	if m == nil {
		return
	}
	m.DebitReplaysTotal.Inc()
}

// ObserveInsufficientBalance records a balance rejection.
func (m *Metrics) ObserveInsufficientBalance() {
	if m == nil {
		return
	}
	m.InsufficientBalanceTotal.Inc()
}

// ObserveSessionRefresh records a session refresh result.
func (m *Metrics) ObserveSessionRefresh(result string) {
	if m == nil {
		return
	}
	m.SessionRefreshTotal.WithLabelValues(result).Inc()
}
