// Package metrics provides Prometheus metrics for the hookline collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the collector.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Ingestion
	eventsReceived *prometheus.CounterVec
	eventsAccepted *prometheus.CounterVec
	eventsDeduped  *prometheus.CounterVec
	eventsRejected *prometheus.CounterVec
	storeErrors    prometheus.Counter

	// Normalizers
	otelRecordsDropped     prometheus.Counter
	transcriptLinesSkipped prometheus.Counter
	normalizedEvents       *prometheus.CounterVec

	// Downstream processing
	processingFailures prometheus.Counter
	processingLatency  prometheus.Histogram
	dispatchDropped    prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "hookline",
		subsystem:        "collector",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	auto := promauto.With(m.registry)

	m.eventsReceived = auto.NewCounterVec(m.counterOpts("events_received_total",
		"Events submitted to the ingest route, by producer source"), []string{"source"})
	m.eventsAccepted = auto.NewCounterVec(m.counterOpts("events_accepted_total",
		"First-seen events stored and dispatched, by producer source"), []string{"source"})
	m.eventsDeduped = auto.NewCounterVec(m.counterOpts("events_deduped_total",
		"Repeat deliveries suppressed by the dedup store, by producer source"), []string{"source"})
	m.eventsRejected = auto.NewCounterVec(m.counterOpts("events_rejected_total",
		"Events rejected at the ingestion boundary, by reason"), []string{"reason"})
	m.storeErrors = auto.NewCounter(m.counterOpts("store_errors_total",
		"Dedup store put failures"))

	m.otelRecordsDropped = auto.NewCounter(m.counterOpts("otel_records_dropped_total",
		"OTEL log records dropped during normalization"))
	m.transcriptLinesSkipped = auto.NewCounter(m.counterOpts("transcript_lines_skipped_total",
		"Transcript lines skipped during normalization"))
	m.normalizedEvents = auto.NewCounterVec(m.counterOpts("normalized_events_total",
		"Events produced by a normalizer, by source"), []string{"source"})

	m.processingFailures = auto.NewCounter(m.counterOpts("processing_failures_total",
		"Accepted events the downstream processor failed on"))
	m.processingLatency = auto.NewHistogram(m.histogramOpts("processing_latency_milliseconds",
		"Downstream processor latency in milliseconds"))
	m.dispatchDropped = auto.NewCounter(m.counterOpts("dispatch_dropped_total",
		"Accepted events that could not be handed to the processor queue"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size",
		"Current size of the dispatch queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity",
		"Maximum dispatch queue capacity"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total",
		"Total number of enqueue errors"))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count",
		"Number of processor workers"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Total number of errors by component"), []string{"component", "error_type"})
}

// RecordEventReceived counts an event arriving at the ingest route.
func RecordEventReceived(source string) {
	globalManager.eventsReceived.WithLabelValues(sourceLabel(source)).Inc()
}

// RecordEventAccepted counts a first-seen accept.
func RecordEventAccepted(source string) {
	globalManager.eventsAccepted.WithLabelValues(sourceLabel(source)).Inc()
}

// RecordEventDeduped counts a suppressed repeat delivery.
func RecordEventDeduped(source string) {
	globalManager.eventsDeduped.WithLabelValues(sourceLabel(source)).Inc()
}

// RecordEventRejected counts a rejected submission.
func RecordEventRejected(reason string) {
	globalManager.eventsRejected.WithLabelValues(reason).Inc()
}

// RecordStoreError counts a failed store put.
func RecordStoreError() {
	globalManager.storeErrors.Inc()
}

// RecordOTELRecordsDropped adds dropped OTEL records.
func RecordOTELRecordsDropped(n int) {
	if n > 0 {
		globalManager.otelRecordsDropped.Add(float64(n))
	}
}

// RecordTranscriptLinesSkipped adds skipped transcript lines.
func RecordTranscriptLinesSkipped(n int) {
	if n > 0 {
		globalManager.transcriptLinesSkipped.Add(float64(n))
	}
}

// RecordNormalizedEvents adds events produced by a normalizer.
func RecordNormalizedEvents(source string, n int) {
	if n > 0 {
		globalManager.normalizedEvents.WithLabelValues(sourceLabel(source)).Add(float64(n))
	}
}

// RecordProcessingFailure counts a processor failure.
func RecordProcessingFailure() {
	globalManager.processingFailures.Inc()
}

// RecordProcessingLatency records processor latency in milliseconds.
func RecordProcessingLatency(latencyMs float64) {
	globalManager.processingLatency.Observe(latencyMs)
}

// RecordDispatchDropped counts an accepted event the queue refused.
func RecordDispatchDropped() {
	globalManager.dispatchDropped.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RegisterCollector adds an extra collector (Go runtime, process) to the registry.
func RegisterCollector(c prometheus.Collector) error {
	if err := customRegistry.Register(c); err != nil {
		return fmt.Errorf("%w: %w", ErrRegister, err)
	}
	return nil
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// sourceLabel keeps label cardinality bounded to the known producers.
func sourceLabel(source string) string {
	switch source {
	case "hook", "otel", "transcript":
		return source
	default:
		return "unknown"
	}
}
