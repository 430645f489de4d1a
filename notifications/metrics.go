package notifications

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks webhook deliveries. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	attemptCount  *prometheus.CounterVec
	deliveryCount *prometheus.CounterVec
}

// NewMetrics creates the webhook metrics and registers them.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := Metrics{
		attemptCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_attempt_count",
				Help: "Number of webhook requests sent",
			},
			[]string{"kind"},
		),
		deliveryCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_delivery_count",
				Help: "Number of webhook deliveries by outcome",
			},
			[]string{"kind", "result"},
		),
	}

	registerer.MustRegister(m.attemptCount)
	registerer.MustRegister(m.deliveryCount)

	return &m
}

func (m *Metrics) attempt(kind Kind) {
	if m == nil {
		return
	}

	m.attemptCount.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) delivered(kind Kind, ok bool) {
	if m == nil {
		return
	}

	result := "success"
	if !ok {
		result = "failure"
	}

	m.deliveryCount.WithLabelValues(kind.String(), result).Inc()
}
