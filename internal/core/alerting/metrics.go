package alerting

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the alerting pipeline's own operational counters
type Metrics struct {
	EventsProcessed   prometheus.Counter
	EventsRejected    prometheus.Counter
	AlertsGenerated   *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
	EvaluationLatency prometheus.Histogram
	BufferSize        prometheus.Gauge
}

// NewMetrics creates and registers the pipeline metrics on the given
// registerer. Pass prometheus.DefaultRegisterer for the process registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scrapewatch",
			Subsystem: "alerting",
			Name:      "events_processed_total",
			Help:      "Telemetry events accepted into the alerting pipeline",
		}),
		EventsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scrapewatch",
			Subsystem: "alerting",
			Name:      "events_rejected_total",
			Help:      "Telemetry events rejected during batch validation",
		}),
		AlertsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scrapewatch",
			Subsystem: "alerting",
			Name:      "alerts_generated_total",
			Help:      "Alerts generated, by type and severity",
		}, []string{"type", "severity"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scrapewatch",
			Subsystem: "alerting",
			Name:      "notifications_total",
			Help:      "Notification delivery attempts, by channel kind and status",
		}, []string{"kind", "status"}),
		EvaluationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scrapewatch",
			Subsystem: "alerting",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating one telemetry event",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		BufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "scrapewatch",
			Subsystem: "alerting",
			Name:      "buffer_size",
			Help:      "Events currently queued in the ingestion buffer",
		}),
	}
	reg.MustRegister(
		m.EventsProcessed,
		m.EventsRejected,
		m.AlertsGenerated,
		m.Notifications,
		m.EvaluationLatency,
		m.BufferSize,
	)
	return m
}
