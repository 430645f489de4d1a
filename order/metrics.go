package order

import (
	"github.com/Anmol-Dhiman/stellar-fusionX/fsm"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the coordinator metrics.
type Metrics struct {
	transitionCount *prometheus.CounterVec
	rejectedCount   *prometheus.CounterVec
}

// NewMetrics creates the coordinator metrics and registers them.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitionCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_transition_count",
				Help: "Number of order status transitions",
			},
			[]string{"status"},
		),
		rejectedCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_rejected_operation_count",
				Help: "Number of rejected coordinator operations",
			},
			[]string{"operation"},
		),
	}

	registerer.MustRegister(m.transitionCount, m.rejectedCount)

	return m
}

func (m *Metrics) transition(status fsm.StateType) {
	if m == nil {
		return
	}

	m.transitionCount.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) rejected(operation string) {
	if m == nil {
		return
	}

	m.rejectedCount.WithLabelValues(operation).Inc()
}
