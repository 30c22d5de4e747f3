package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "bankguard/pkg/platform/audit"
)

// Metrics holds Prometheus metrics for audit publishing.
type Metrics struct {
	Written      *prometheus.CounterVec
	Failed       prometheus.Counter
	Overflow     prometheus.Counter
	SinkFailures prometheus.Counter
	Late         prometheus.Counter
	Queued       prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with audit metrics registered.
func NewMetrics() *Metrics {
	return &Metrics{
		Written: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bankguard_audit_written_total",
			Help: "Total number of audit records persisted",
		}, []string{"category"}),
		Failed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bankguard_audit_write_failures_total",
			Help: "Total number of audit records that could not be persisted after retries",
		}),
		Overflow: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bankguard_audit_buffer_overflow_total",
			Help: "Total number of audit records written outside the queue because it was full",
		}),
		SinkFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bankguard_audit_sink_failures_total",
			Help: "Total number of audit records a downstream sink rejected",
		}),
		Late: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bankguard_audit_late_records_total",
			Help: "Total number of audit records written synchronously after the publisher closed",
		}),
		Queued: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bankguard_audit_queue_depth",
			Help: "Audit records waiting in the publisher queue",
		}),
	}
}

func (m *Metrics) incWritten(category audit.EventCategory) {
	if m == nil {
		return
	}
	m.Written.WithLabelValues(string(category)).Inc()
}

func (m *Metrics) incFailed() {
	if m == nil {
		return
	}
	m.Failed.Inc()
}

func (m *Metrics) incOverflow() {
	if m == nil {
		return
	}
	m.Overflow.Inc()
}

func (m *Metrics) incSinkFailed() {
	if m == nil {
		return
	}
	m.SinkFailures.Inc()
}

func (m *Metrics) incLate() {
	if m == nil {
		return
	}
	m.Late.Inc()
}

func (m *Metrics) setQueued(n int) {
	if m == nil {
		return
	}
	m.Queued.Set(float64(n))
}
