package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names.
const (
	MetricMessagesProcessed    = "ingest_messages_processed_total"
	MetricMessagesError        = "ingest_messages_error_total"
	MetricMessagesSkipped      = "ingest_messages_skipped_total"
	MetricReconnectionAttempts = "ingest_reconnection_attempts_total"
	MetricProcessingLag        = "ingest_processing_lag_seconds"
	MetricIngestLatency        = "ingest_latency_seconds"
)

// Metrics contains Prometheus metrics for the stream consumer.
// All operations are thread-safe.
type Metrics struct {
	messagesProcessed    prometheus.Counter
	messagesError        prometheus.Counter
	messagesSkipped      prometheus.Counter
	reconnectionAttempts prometheus.Counter
	processingLag        prometheus.Gauge
	ingestLatency        prometheus.Histogram
}

// NewMetrics creates the collectors. They are not registered; call Register.
func NewMetrics() *Metrics {
	return &Metrics{
		messagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricMessagesProcessed,
			Help: "Total number of change messages recorded",
		}),
		messagesError: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricMessagesError,
			Help: "Total number of change messages that failed to decode or record",
		}),
		messagesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricMessagesSkipped,
			Help: "Total number of messages skipped because no route handles them",
		}),
		reconnectionAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricReconnectionAttempts,
			Help: "Total number of change stream reconnection attempts",
		}),
		processingLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricProcessingLag,
			Help: "Seconds between a message's time_us and when it was processed",
		}),
		ingestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricIngestLatency,
			Help:    "Histogram of per-message processing time in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncMessagesProcessed increments the processed counter.
func (m *Metrics) IncMessagesProcessed() {
	m.messagesProcessed.Inc()
}

// IncMessagesError increments the error counter.
func (m *Metrics) IncMessagesError() {
	m.messagesError.Inc()
}

// IncMessagesSkipped increments the skipped counter.
func (m *Metrics) IncMessagesSkipped() {
	m.messagesSkipped.Inc()
}

// IncReconnectionAttempts increments the reconnection counter.
func (m *Metrics) IncReconnectionAttempts() {
	m.reconnectionAttempts.Inc()
}

// SetProcessingLag sets the processing lag gauge.
func (m *Metrics) SetProcessingLag(seconds float64) {
	m.processingLag.Set(seconds)
}

// ObserveIngestLatency records a processing time sample.
func (m *Metrics) ObserveIngestLatency(seconds float64) {
	m.ingestLatency.Observe(seconds)
}

// Collectors returns all Prometheus collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.messagesProcessed,
		m.messagesError,
		m.messagesSkipped,
		m.reconnectionAttempts,
		m.processingLag,
		m.ingestLatency,
	}
}
