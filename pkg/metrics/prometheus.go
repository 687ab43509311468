// Package metrics provides Prometheus metrics for the skill rating service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the rating service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Recalculation Metrics - what the rating engine did
	recalculations        *prometheus.CounterVec
	recalculationDuration *prometheus.HistogramVec
	periodDuration        *prometheus.HistogramVec
	playersRated          prometheus.Counter
	playersInactive       prometheus.Counter
	playersSkipped        *prometheus.CounterVec
	ratedPlayers          *prometheus.GaugeVec

	// Scheduler Metrics
	schedulerRunning prometheus.Gauge
	schedulerLastRun prometheus.Gauge
	schedulerSkipped prometheus.Counter

	// Leaderboard Read Metrics
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository Metrics
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Queue Metrics - recalculation job queue
	queueSize          prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker Metrics - recalculation job worker
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// System Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "skillrank",
		subsystem:        "ratings",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
		constLabels:      make(map[string]string),
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
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	m.recalculations = auto.NewCounterVec(
		m.counterOpts("recalculations_total", "Recalculation runs by kind and outcome"),
		[]string{"kind", "outcome"},
	)
	m.recalculationDuration = auto.NewHistogramVec(
		m.histogramOpts("recalculation_duration_milliseconds", "Wall time of a recalculation run in milliseconds"),
		[]string{"kind"},
	)
	m.periodDuration = auto.NewHistogramVec(
		m.histogramOpts("period_duration_milliseconds", "Wall time of one scope and period recalculation in milliseconds"),
		[]string{"scope_kind"},
	)
	m.playersRated = auto.NewCounter(m.counterOpts("players_rated_total", "Players updated from played games"))
	m.playersInactive = auto.NewCounter(m.counterOpts("players_inactive_total", "Players given an inactivity-only update"))
	m.playersSkipped = auto.NewCounterVec(
		m.counterOpts("players_skipped_total", "Players left unchanged because their update failed"),
		[]string{"reason"},
	)
	m.ratedPlayers = auto.NewGaugeVec(
		m.gaugeOpts("rated_players", "Players holding a current rating per scope"),
		[]string{"scope"},
	)

	m.schedulerRunning = auto.NewGauge(m.gaugeOpts("scheduler_running", "1 while a recalculation job is executing"))
	m.schedulerLastRun = auto.NewGauge(m.gaugeOpts("scheduler_last_run_unix", "Unix time the last recalculation job finished"))
	m.schedulerSkipped = auto.NewCounter(m.counterOpts("scheduler_skipped_total", "Scheduled fires skipped because a job was running"))

	m.cacheHits = auto.NewCounter(m.counterOpts("leaderboard_cache_hits_total", "Leaderboard reads served from cache"))
	m.cacheMisses = auto.NewCounter(m.counterOpts("leaderboard_cache_misses_total", "Leaderboard reads that went to the store"))

	// HTTP Performance Metrics - User experience indicators
	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)

	m.repositoryUpdateLatency = auto.NewHistogram(
		m.histogramOpts("repository_update_latency_milliseconds", "Rating store write latency in milliseconds"),
	)
	m.repositoryQueryLatency = auto.NewHistogram(
		m.histogramOpts("repository_query_latency_milliseconds", "Rating store read latency in milliseconds"),
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Recalculation jobs waiting to run"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Recalculation jobs accepted"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Recalculation jobs picked up"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Recalculation jobs rejected by the queue"))

	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of active job workers"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Job processing latency in milliseconds"),
	)
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total", "Jobs that finished with an error"))

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_milliseconds", "Average GC pause in milliseconds"),
	)

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Errors by HTTP endpoint, method and type"),
		[]string{"endpoint", "method", "error_type"},
	)
	m.errorLatency = auto.NewHistogramVec(
		m.histogramOpts("error_latency_milliseconds", "Latency of operations that ended in an error"),
		[]string{"component", "error_type"},
	)
}

// Recalculation Metrics Functions.

// RecordRecalculation counts one finished recalculation run.
func RecordRecalculation(kind, outcome string) {
	globalManager.recalculations.WithLabelValues(kind, outcome).Inc()
}

// RecordRecalculationDuration records the wall time of a run in milliseconds.
func RecordRecalculationDuration(kind string, ms float64) {
	globalManager.recalculationDuration.WithLabelValues(kind).Observe(ms)
}

// RecordPeriodDuration records how long one scope and period took.
func RecordPeriodDuration(scopeKind string, ms float64) {
	globalManager.periodDuration.WithLabelValues(scopeKind).Observe(ms)
}

// RecordPlayersRated adds n players updated from games.
func RecordPlayersRated(n int) {
	globalManager.playersRated.Add(float64(n))
}

// RecordPlayersInactive adds n players given an inactivity-only update.
func RecordPlayersInactive(n int) {
	globalManager.playersInactive.Add(float64(n))
}

// RecordPlayersSkipped adds n players skipped for reason.
func RecordPlayersSkipped(reason string, n int) {
	globalManager.playersSkipped.WithLabelValues(reason).Add(float64(n))
}

// UpdateRatedPlayers sets the number of rated players in scope.
func UpdateRatedPlayers(scope string, n int) {
	globalManager.ratedPlayers.WithLabelValues(scope).Set(float64(n))
}

// ResetRatedPlayers drops every per-scope rated player gauge.
func ResetRatedPlayers() {
	globalManager.ratedPlayers.Reset()
}

// Scheduler Metrics Functions.

// SetSchedulerRunning flips the running gauge.
func SetSchedulerRunning(running bool) {
	if running {
		globalManager.schedulerRunning.Set(1)
		return
	}
	globalManager.schedulerRunning.Set(0)
}

// SetSchedulerLastRun records when the last job finished.
func SetSchedulerLastRun(t time.Time) {
	globalManager.schedulerLastRun.Set(float64(t.Unix()))
}

// RecordSchedulerSkipped counts a fire dropped because a job was running.
func RecordSchedulerSkipped() {
	globalManager.schedulerSkipped.Inc()
}

// Leaderboard Read Metrics Functions.

// RecordLeaderboardCacheHit increments the cache hit counter.
func RecordLeaderboardCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordLeaderboardCacheMiss increments the cache miss counter.
func RecordLeaderboardCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Repository Metrics Functions.

// RecordRepositoryUpdateLatency records repository update operation latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository query operation latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// System Metrics Functions.

// UpdateSystemMemoryUsage sets the allocated heap size in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records the average GC pause in milliseconds.
func RecordSystemGCPauseTime(ms float64) {
	globalManager.systemGCPauseTime.Observe(ms)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
