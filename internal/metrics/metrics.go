// Package metrics exposes Prometheus instrumentation for the dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the service's Prometheus collectors. Audit writes are
// best-effort, so LogWriteFailures is the only way a silently lost delivery
// log becomes visible.
type Metrics struct {
	TriggersTotal    *prometheus.CounterVec
	AttemptsTotal    *prometheus.CounterVec
	DeliveryDuration prometheus.Histogram
	LogWriteFailures prometheus.Counter
}

// New creates and registers all collectors on the given registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		TriggersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "webhook_triggers_total", Help: "Inbound triggers by final result."},
			[]string{"result"},
		),
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "webhook_delivery_attempts_total", Help: "Outbound delivery attempts by outcome."},
			[]string{"outcome"},
		),
		DeliveryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "webhook_delivery_duration_seconds",
				Help:    "Total wall-clock time per trigger across all attempts.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30},
			},
		),
		LogWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "webhook_log_write_failures_total", Help: "Delivery outcomes that failed to persist."},
		),
	}

	reg.MustRegister(m.TriggersTotal, m.AttemptsTotal, m.DeliveryDuration, m.LogWriteFailures)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}
