package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects Prometheus metrics for the harvest pipeline. All metric
// names are prefixed with the service name.
type Metrics struct {
	registry *prometheus.Registry

	processedTotal   *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	durationSeconds  *prometheus.HistogramVec
	archiveSizeBytes prometheus.Histogram
	messagesTotal    prometheus.Counter
}

// NewMetrics creates a Metrics instance backed by its own registry.
func NewMetrics(serviceName string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.processedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_processed_total", serviceName),
			Help: "Total archives processed by terminal status",
		},
		[]string{"status"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_errors_total", serviceName),
			Help: "Total errors by type and operation",
		},
		[]string{"error_type", "operation"},
	)

	m.durationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_duration_seconds", serviceName),
			Help:    "Operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	m.archiveSizeBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_archive_size_bytes", serviceName),
			Help:    "Downloaded archive sizes in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	m.messagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_messages_published_total", serviceName),
			Help: "Total messages handed to the queue broker",
		},
	)

	m.registry.MustRegister(
		m.processedTotal,
		m.errorsTotal,
		m.durationSeconds,
		m.archiveSizeBytes,
		m.messagesTotal,
	)

	return m
}

// Registry exposes the backing registry for the scrape endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordProcessed counts a task reaching a terminal status ("success" or "failure").
func (m *Metrics) RecordProcessed(status string) {
	m.processedTotal.WithLabelValues(status).Inc()
}

// RecordError counts an error by classification and the operation it occurred in.
func (m *Metrics) RecordError(errorType, operation string) {
	m.errorsTotal.WithLabelValues(errorType, operation).Inc()
}

// ObserveDuration records how long an operation took.
func (m *Metrics) ObserveDuration(operation string, seconds float64) {
	m.durationSeconds.WithLabelValues(operation).Observe(seconds)
}

// ObserveArchiveSize records the byte size of a downloaded archive.
func (m *Metrics) ObserveArchiveSize(bytes int64) {
	m.archiveSizeBytes.Observe(float64(bytes))
}

// RecordMessagePublished counts a message submitted to the broker.
func (m *Metrics) RecordMessagePublished() {
	m.messagesTotal.Inc()
}
