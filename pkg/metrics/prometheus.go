// Package metrics provides Prometheus metrics for the clutch analysis pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	durationBuckets  []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Ingestion
	sessionsIngested     prometheus.Counter
	validationRejections prometheus.Counter
	duplicateDeliveries  prometheus.Counter
	inFlightSessions     prometheus.Gauge

	// Streams
	streamAttempts    *prometheus.CounterVec
	streamRetries     *prometheus.CounterVec
	streamFailures    *prometheus.CounterVec
	streamCompletions *prometheus.CounterVec
	streamDuration    *prometheus.HistogramVec
	framesProcessed   *prometheus.CounterVec
	framesNoDetection *prometheus.CounterVec

	// Synthesis and session outcome
	synthesisDispatched         prometheus.Counter
	duplicateDispatchSuppressed prometheus.Counter
	synthesisLatency            prometheus.Histogram
	sessionsFinished            *prometheus.CounterVec
	cancellations               prometheus.Counter
	notifications               *prometheus.CounterVec

	// Store
	storeLatency *prometheus.HistogramVec

	// Queue and workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	workerCount        prometheus.Gauge
	workerActiveCount  prometheus.Gauge
	workerErrors       prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager registered on the configured registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "clutch",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		durationBuckets:  []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.sessionsIngested = m.counter("sessions_ingested_total", "Sessions accepted by the ingestion webhook")
	m.validationRejections = m.counter("validation_rejections_total", "Ingestion requests rejected by validation")
	m.duplicateDeliveries = m.counter("duplicate_deliveries_total", "Redelivered ingestion requests acknowledged without a new session")
	m.inFlightSessions = m.gauge("in_flight_sessions", "Sessions created but not yet terminal")

	m.streamAttempts = m.counterVec("stream_attempts_total", "Stream analysis attempts", "stream")
	m.streamRetries = m.counterVec("stream_retries_total", "Stream analysis attempts retried after a retryable error", "stream")
	m.streamFailures = m.counterVec("stream_failures_total", "Streams that ended failed", "stream")
	m.streamCompletions = m.counterVec("stream_completions_total", "Streams that completed", "stream")
	m.streamDuration = m.histogramVec("stream_duration_seconds", "Wall time of one stream run including retries", m.durationBuckets, "stream")
	m.framesProcessed = m.counterVec("frames_processed_total", "Sampled frames reduced to metric frames", "stream")
	m.framesNoDetection = m.counterVec("frames_no_detection_total", "Sampled frames without a usable detection", "stream")

	m.synthesisDispatched = m.counter("synthesis_dispatched_total", "Sessions whose synthesis was dispatched")
	m.duplicateDispatchSuppressed = m.counter("synthesis_duplicate_suppressed_total", "Synthesis dispatch attempts that lost the compare-and-set")
	m.synthesisLatency = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "synthesis_latency_milliseconds",
		Help:        "Time to merge both streams into the final report",
		ConstLabels: m.constLabels,
		Buckets:     m.histogramBuckets,
	})
	m.sessionsFinished = m.counterVec("sessions_finished_total", "Sessions that reached a terminal status", "status")
	m.cancellations = m.counter("cancellations_total", "Sessions cancelled by callers")
	m.notifications = m.counterVec("notifications_total", "Downstream notifications by sink and result", "sink", "result")

	m.storeLatency = m.histogramVec("store_operation_latency_milliseconds", "Session store operation latency", m.histogramBuckets, "driver", "op")

	m.queueSize = m.gauge("queue_size", "Stream jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum number of queued stream jobs")
	m.queueUtilization = m.gauge("queue_utilization", "Queue size over capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Stream jobs enqueued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Stream jobs rejected by a full or closed queue")
	m.workerCount = m.gauge("worker_count", "Configured stream workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently running a stream job")
	m.workerErrors = m.counter("worker_errors_total", "Stream jobs whose handler returned an error")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		m.histogramBuckets, "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordSessionIngested counts an accepted session.
func RecordSessionIngested() {
	globalManager.sessionsIngested.Inc()
	globalManager.inFlightSessions.Inc()
}

// RecordValidationRejected counts a rejected request.
func RecordValidationRejected() {
	globalManager.validationRejections.Inc()
}

// RecordDuplicateDelivery counts an acknowledged duplicate.
func RecordDuplicateDelivery() {
	globalManager.duplicateDeliveries.Inc()
}

// RecordStreamAttempt counts one analysis attempt of a stream.
func RecordStreamAttempt(stream string) {
	globalManager.streamAttempts.WithLabelValues(stream).Inc()
}

// RecordStreamRetry counts a retried attempt.
func RecordStreamRetry(stream string) {
	globalManager.streamRetries.WithLabelValues(stream).Inc()
}

// RecordStreamFailure counts a failed stream.
func RecordStreamFailure(stream string) {
	globalManager.streamFailures.WithLabelValues(stream).Inc()
}

// RecordStreamCompletion counts a completed stream.
func RecordStreamCompletion(stream string) {
	globalManager.streamCompletions.WithLabelValues(stream).Inc()
}

// RecordStreamDuration observes the wall time of a stream run.
func RecordStreamDuration(stream string, seconds float64) {
	globalManager.streamDuration.WithLabelValues(stream).Observe(seconds)
}

// AddFramesProcessed adds processed frame counts.
func AddFramesProcessed(stream string, total, noDetection int) {
	globalManager.framesProcessed.WithLabelValues(stream).Add(float64(total))
	globalManager.framesNoDetection.WithLabelValues(stream).Add(float64(noDetection))
}

// RecordSynthesisDispatched counts a won dispatch.
func RecordSynthesisDispatched() {
	globalManager.synthesisDispatched.Inc()
}

// RecordDuplicateDispatchSuppressed counts a lost dispatch race.
func RecordDuplicateDispatchSuppressed() {
	globalManager.duplicateDispatchSuppressed.Inc()
}

// RecordSynthesisLatency observes synthesis latency in milliseconds.
func RecordSynthesisLatency(latencyMs float64) {
	globalManager.synthesisLatency.Observe(latencyMs)
}

// RecordSessionFinished counts a terminal session by status.
func RecordSessionFinished(status string) {
	globalManager.sessionsFinished.WithLabelValues(status).Inc()
	globalManager.inFlightSessions.Dec()
}

// RecordCancellation counts a cancelled session.
func RecordCancellation() {
	globalManager.cancellations.Inc()
}

// RecordNotification counts a notification delivery result ("sent" or "failed").
func RecordNotification(sink, result string) {
	globalManager.notifications.WithLabelValues(sink, result).Inc()
}

// RecordStoreLatency observes a store operation latency.
func RecordStoreLatency(driver, op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(driver, op).Observe(latencyMs)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
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

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
