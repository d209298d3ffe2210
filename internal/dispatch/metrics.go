package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricEventsTotal     = "docaudit_events_total"
	MetricEventErrors     = "docaudit_event_errors_total"
	MetricChangedFields   = "docaudit_changed_fields_total"
	MetricDispatchLatency = "docaudit_dispatch_latency_seconds"
)

// Error reasons used as the "reason" label of MetricEventErrors.
const (
	ReasonUnknownRoute    = "unknown_route"
	ReasonMissingSnapshot = "missing_snapshot"
	ReasonRecord          = "record"
)

// Metrics contains Prometheus metrics for the dispatcher.
// All operations are thread-safe.
type Metrics struct {
	events        *prometheus.CounterVec
	eventErrors   *prometheus.CounterVec
	changedFields *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// NewMetrics creates the dispatcher collectors. They are not registered; call
// Register.
func NewMetrics() *Metrics {
	return &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricEventsTotal,
			Help: "Total number of change events recorded, by collection and operation",
		}, []string{"collection", "operation"}),
		eventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricEventErrors,
			Help: "Total number of change events that could not be recorded",
		}, []string{"collection", "operation", "reason"}),
		changedFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricChangedFields,
			Help: "Total number of update records by reported field (\"all\" for fallbacks)",
		}, []string{"collection", "field"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricDispatchLatency,
			Help:    "Histogram of time spent classifying and emitting a record",
			Buckets: prometheus.DefBuckets,
		}, []string{"collection", "operation"}),
	}
}

// Register registers all metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.events,
		m.eventErrors,
		m.changedFields,
		m.latency,
	}
}

func (m *Metrics) observe(r Route, field string, seconds float64) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(r.Collection, string(r.Operation)).Inc()
	m.latency.WithLabelValues(r.Collection, string(r.Operation)).Observe(seconds)
	if field != "" {
		m.changedFields.WithLabelValues(r.Collection, field).Inc()
	}
}

func (m *Metrics) fail(r Route, reason string) {
	if m == nil {
		return
	}
	m.eventErrors.WithLabelValues(r.Collection, string(r.Operation), reason).Inc()
}
