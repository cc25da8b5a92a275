package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Reveal pipeline
	reveals          *prometheus.CounterVec
	revealLatency    prometheus.Histogram
	overflowReroutes *prometheus.CounterVec
	walkSteps        prometheus.Histogram
	commitConflicts  prometheus.Counter
	poolOccupancy    *prometheus.GaugeVec
	revealedSlots    prometheus.Gauge

	// Repository
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByType        *prometheus.CounterVec
	errorsByEndpoint    *prometheus.CounterVec

	// Batch queue and workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueErrors prometheus.Counter
	workerCount        prometheus.Gauge
	workerProcessed    prometheus.Counter
	workerErrors       prometheus.Counter

	// Process
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by the Record*/Update* helpers

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out of /metrics

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "blindbox",
		subsystem:        "reveal",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.reveals = auto.NewCounterVec(m.counterOpts("reveals_total", "Reveal attempts by rarity class and outcome"), []string{"rarity", "result"})
	m.revealLatency = auto.NewHistogram(m.histogramOpts("reveal_latency_milliseconds", "End-to-end reveal latency in milliseconds", m.histogramBuckets))
	m.overflowReroutes = auto.NewCounterVec(m.counterOpts("overflow_reroutes_total", "Allocations that landed outside the natural pool"), []string{"natural", "selected"})
	m.walkSteps = auto.NewHistogram(m.histogramOpts("collision_walk_steps", "Occupied slots skipped before a free slot was found", []float64{0, 1, 2, 4, 8, 16, 32, 64}))
	m.commitConflicts = auto.NewCounter(m.counterOpts("commit_conflicts_total", "Commits rejected by the slot uniqueness constraint"))
	m.poolOccupancy = auto.NewGaugeVec(m.gaugeOpts("pool_occupancy", "Revealed slots observed in each pool's current window"), []string{"pool"})

	m.revealedSlots = auto.NewGauge(m.gaugeOpts("revealed_slots", "Revealed slots held by the in-memory store"))

	m.storeLatency = auto.NewHistogramVec(m.histogramOpts("store_latency_milliseconds", "Repository operation latency in milliseconds", m.histogramBuckets), []string{"backend", "op"})
	m.storeErrors = auto.NewCounterVec(m.counterOpts("store_errors_total", "Repository operations that failed with a transport error"), []string{"backend", "op"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets), []string{"endpoint", "method", "status_code"})
	m.errorsByType = auto.NewCounterVec(m.counterOpts("errors_by_type_total", "Errors by type and severity"), []string{"error_type", "severity"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "Errors by endpoint"), []string{"endpoint", "method", "error_type"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Avatars waiting in the batch reveal queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Capacity of the batch reveal queue"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Batch jobs rejected by the queue"))
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Batch reveal workers"))
	m.workerProcessed = auto.NewCounter(m.counterOpts("worker_processed_total", "Batch jobs processed by workers"))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Batch jobs that ended in an error"))

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "Average GC pause in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100}))
}

// RecordReveal counts a reveal attempt.
func RecordReveal(rarity, result string) {
	globalManager.reveals.WithLabelValues(rarity, result).Inc()
}

// RecordRevealLatency records end-to-end reveal latency in milliseconds.
func RecordRevealLatency(latencyMs float64) {
	globalManager.revealLatency.Observe(latencyMs)
}

// RecordOverflowReroute counts an allocation that left its natural pool.
func RecordOverflowReroute(natural, selected string) {
	globalManager.overflowReroutes.WithLabelValues(natural, selected).Inc()
}

// RecordCollisionWalk records how many occupied slots were skipped.
func RecordCollisionWalk(steps int) {
	globalManager.walkSteps.Observe(float64(steps))
}

// RecordCommitConflict counts a uniqueness violation on commit.
func RecordCommitConflict() {
	globalManager.commitConflicts.Inc()
}

// UpdatePoolOccupancy sets the last observed occupancy of a pool.
func UpdatePoolOccupancy(pool string, count uint64) {
	globalManager.poolOccupancy.WithLabelValues(pool).Set(float64(count))
}

// UpdateRevealedSlots sets the number of revealed slots in the store.
func UpdateRevealedSlots(count int) {
	globalManager.revealedSlots.Set(float64(count))
}

// RecordStoreLatency records a repository call latency in milliseconds.
func RecordStoreLatency(backend, op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordStoreError counts a repository transport failure.
func RecordStoreError(backend, op string) {
	globalManager.storeErrors.WithLabelValues(backend, op).Inc()
}

// RecordHTTPRequest increments the HTTP requests counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByType records an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error by endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateQueueSize sets the current batch queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the batch queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the number of batch workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessed counts a processed batch job.
func RecordWorkerProcessed() {
	globalManager.workerProcessed.Inc()
}

// RecordWorkerError counts a failed batch job.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records the average GC pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
