// Package metrics provides Prometheus metrics for the delaycast prediction service.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval    = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// Manager owns every Prometheus metric of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Prediction metrics
	predictions       *prometheus.CounterVec
	predictionLatency prometheus.Histogram
	daySweeps         prometheus.Counter
	daySweepLatency   prometheus.Histogram
	batchSize         prometheus.Histogram

	// Fallback and data quality metrics
	degradedLookups  *prometheus.CounterVec
	unseenCategories *prometheus.CounterVec
	validationErrors *prometheus.CounterVec
	inferenceErrors  prometheus.Counter

	// Lifecycle metrics
	serviceState     prometheus.Gauge
	artifactInfo     *prometheus.GaugeVec
	featureCount     prometheus.Gauge
	rateStoreEntries prometheus.Gauge
	loadDuration     prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Worker metrics
	workerJobs              prometheus.Counter
	workerErrors            prometheus.Counter
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram

	// Error metrics
	errorRateByComponent *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its metrics.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "delaycast",
		subsystem:        "predictor",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
		Buckets:     buckets,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.predictions = auto.NewCounterVec(
		m.counterOpts("predictions_total", "Predictions served by label and confidence tier"),
		[]string{"label", "tier"},
	)
	m.predictionLatency = auto.NewHistogram(
		m.histogramOpts("prediction_latency_milliseconds", "Latency of a single prediction in milliseconds", m.histogramBuckets),
	)
	m.daySweeps = auto.NewCounter(
		m.counterOpts("day_sweeps_total", "Day sweeps served"),
	)
	m.daySweepLatency = auto.NewHistogram(
		m.histogramOpts("day_sweep_latency_milliseconds", "Latency of a full day sweep in milliseconds", m.histogramBuckets),
	)
	m.batchSize = auto.NewHistogram(
		m.histogramOpts("batch_size", "Number of events per batch request", prometheus.ExponentialBuckets(1, 2, 10)),
	)

	m.degradedLookups = auto.NewCounterVec(
		m.counterOpts("degraded_rate_lookups_total", "Rate lookups resolved below the requested key, by feature"),
		[]string{"feature"},
	)
	m.unseenCategories = auto.NewCounterVec(
		m.counterOpts("unseen_categories_total", "Categorical values routed to the Other bucket, by field"),
		[]string{"field"},
	)
	m.validationErrors = auto.NewCounterVec(
		m.counterOpts("validation_errors_total", "Rejected events by offending field"),
		[]string{"field"},
	)
	m.inferenceErrors = auto.NewCounter(
		m.counterOpts("inference_errors_total", "Classifier failures on well-formed vectors"),
	)

	m.serviceState = auto.NewGauge(
		m.gaugeOpts("service_state", "Service lifecycle state (0 uninitialized, 1 loading, 2 ready, 3 failed)"),
	)
	m.artifactInfo = auto.NewGaugeVec(
		m.gaugeOpts("artifact_info", "Versions of the loaded artifacts; value is always 1"),
		[]string{"artifact_version", "transformer_version", "rate_store_version"},
	)
	m.featureCount = auto.NewGauge(
		m.gaugeOpts("feature_vector_length", "Number of features in the served vector"),
	)
	m.rateStoreEntries = auto.NewGauge(
		m.gaugeOpts("rate_store_entries", "Keys held by the historical rate store"),
	)
	m.loadDuration = auto.NewGauge(
		m.gaugeOpts("load_duration_milliseconds", "Duration of the last artifact load in milliseconds"),
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.workerJobs = auto.NewCounter(
		m.counterOpts("worker_jobs_total", "Jobs executed by the fan-out pool"),
	)
	m.workerErrors = auto.NewCounter(
		m.counterOpts("worker_errors_total", "Jobs that returned an error"),
	)
	m.workerActiveCount = auto.NewGauge(
		m.gaugeOpts("worker_active_count", "Jobs currently running"),
	)
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Job latency in milliseconds", m.histogramBuckets),
	)

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(
		m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"),
	)
	m.systemGoroutineCount = auto.NewGauge(
		m.gaugeOpts("system_goroutine_count", "Number of goroutines"),
	)
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}),
	)
}

// RecordPrediction counts a prediction and its latency.
func (m *Manager) RecordPrediction(label, tier string, latencyMs float64) {
	if !m.enabled {
		return
	}
	m.predictions.WithLabelValues(label, tier).Inc()
	m.predictionLatency.Observe(latencyMs)
}

// RecordDaySweep counts a day sweep and its latency.
func (m *Manager) RecordDaySweep(latencyMs float64) {
	if !m.enabled {
		return
	}
	m.daySweeps.Inc()
	m.daySweepLatency.Observe(latencyMs)
}

// RecordBatchSize observes the size of a batch request.
func (m *Manager) RecordBatchSize(n int) {
	if !m.enabled {
		return
	}
	m.batchSize.Observe(float64(n))
}

// RecordDegradedLookup counts a rate lookup that fell back.
func (m *Manager) RecordDegradedLookup(feature string) {
	if !m.enabled {
		return
	}
	m.degradedLookups.WithLabelValues(feature).Inc()
}

// RecordUnseenCategory counts a categorical value outside the vocabulary.
func (m *Manager) RecordUnseenCategory(field string) {
	if !m.enabled {
		return
	}
	m.unseenCategories.WithLabelValues(field).Inc()
}

// RecordValidationError counts a rejected event.
func (m *Manager) RecordValidationError(field string) {
	if !m.enabled {
		return
	}
	m.validationErrors.WithLabelValues(field).Inc()
}

// RecordInferenceError counts a classifier failure.
func (m *Manager) RecordInferenceError() {
	if !m.enabled {
		return
	}
	m.inferenceErrors.Inc()
}

// UpdateServiceState sets the lifecycle state gauge.
func (m *Manager) UpdateServiceState(state int) {
	if !m.enabled {
		return
	}
	m.serviceState.Set(float64(state))
}

// UpdateArtifactInfo publishes the loaded artifact versions.
func (m *Manager) UpdateArtifactInfo(artifactVersion, transformerVersion, rateStoreVersion string, features, rateEntries int, loadMs float64) {
	if !m.enabled {
		return
	}
	m.artifactInfo.Reset()
	m.artifactInfo.WithLabelValues(artifactVersion, transformerVersion, rateStoreVersion).Set(1)
	m.featureCount.Set(float64(features))
	m.rateStoreEntries.Set(float64(rateEntries))
	m.loadDuration.Set(loadMs)
}

// RecordHTTPRequest records an HTTP request and its duration.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// WorkerStarted marks a pool job as running.
func (m *Manager) WorkerStarted() {
	if !m.enabled {
		return
	}
	m.workerActiveCount.Inc()
}

// WorkerFinished records the end of a pool job.
func (m *Manager) WorkerFinished(latencyMs float64, err error) {
	if !m.enabled {
		return
	}
	m.workerActiveCount.Dec()
	m.workerJobs.Inc()
	m.workerProcessingLatency.Observe(latencyMs)
	if err != nil {
		m.workerErrors.Inc()
	}
}

// RecordErrorByComponent records an error with component and type labels.
func (m *Manager) RecordErrorByComponent(component, errorType string) {
	if !m.enabled {
		return
	}
	m.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystem samples runtime memory, goroutine and GC statistics.
func (m *Manager) UpdateSystem() {
	if !m.enabled {
		return
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.systemMemoryUsage.Set(float64(ms.Alloc))
	m.systemGoroutineCount.Set(float64(runtime.NumGoroutine()))
	if ms.NumGC > 0 {
		m.systemGCPauseTime.Observe(float64(ms.PauseTotalNs) / float64(ms.NumGC) / nanosecondsPerMillisecond)
	}
}

// RunSystemCollector samples system metrics every refresh interval until
// ctx is done.
func (m *Manager) RunSystemCollector(ctx context.Context) {
	ticker := time.NewTicker(m.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.UpdateSystem()
		}
	}
}

// Default returns the process-wide manager.
func Default() *Manager { return globalManager }

// RecordHTTPRequest records an HTTP request on the global manager.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode, durationMs)
}

// RecordErrorByComponent records an error on the global manager.
func RecordErrorByComponent(component, errorType string) {
	globalManager.RecordErrorByComponent(component, errorType)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
