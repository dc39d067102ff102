package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics collection for the playground server
// Tracks request traffic, execution lifecycle, cache effectiveness and
// admission rejections for monitoring
type Metrics struct {
	requestsTotal     *prometheus.CounterVec   // Total requests by method and status
	requestDuration   *prometheus.HistogramVec // Request duration distribution
	executionsTotal   prometheus.Counter       // Total code executions started
	executionDuration prometheus.Histogram     // Execution duration distribution
	activeExecutions  prometheus.Gauge         // Currently running child processes
	truncationsTotal  prometheus.Counter       // Executions cut at the output limit
	cacheEvents       *prometheus.CounterVec   // Cache lookups by result (hit/miss)
	rateLimitedTotal  prometheus.Counter       // Requests rejected by admission
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Default returns the process-wide metrics collector
// A single registration guards against duplicate collector panics when
// several components share the default registry
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = newMetrics()
	})
	return defaultMetrics
}

// newMetrics creates the collector and registers all instruments with
// the default registry for HTTP exposition
// Time Complexity: O(1) - metric registration
// Space Complexity: O(1) - fixed metric storage
func newMetrics() *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"method", "status_code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "playground_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		executionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "playground_executions_total",
				Help: "Total number of code executions started",
			},
		),
		executionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "playground_execution_duration_seconds",
				Help:    "Code execution duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
			},
		),
		activeExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "playground_active_executions",
				Help: "Number of currently running child processes",
			},
		),
		truncationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "playground_output_truncations_total",
				Help: "Executions whose output was cut at the configured limit",
			},
		),
		cacheEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_cache_events_total",
				Help: "Result cache lookups by outcome",
			},
			[]string{"result"},
		),
		rateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "playground_rate_limited_total",
				Help: "Requests rejected by the admission controller",
			},
		),
	}

	prometheus.MustRegister(m.requestsTotal)
	prometheus.MustRegister(m.requestDuration)
	prometheus.MustRegister(m.executionsTotal)
	prometheus.MustRegister(m.executionDuration)
	prometheus.MustRegister(m.activeExecutions)
	prometheus.MustRegister(m.truncationsTotal)
	prometheus.MustRegister(m.cacheEvents)
	prometheus.MustRegister(m.rateLimitedTotal)

	return m
}

// ExecutionStarted records the start of a child process run
func (m *Metrics) ExecutionStarted() {
	m.executionsTotal.Inc()
	m.activeExecutions.Inc()
}

// ExecutionFinished records completion of a child process run
func (m *Metrics) ExecutionFinished(duration time.Duration) {
	m.activeExecutions.Dec()
	m.executionDuration.Observe(duration.Seconds())
}

// RecordTruncation counts an execution cut at the output limit
func (m *Metrics) RecordTruncation() {
	m.truncationsTotal.Inc()
}

// RecordCacheHit counts a result replayed from the cache
func (m *Metrics) RecordCacheHit() {
	m.cacheEvents.WithLabelValues("hit").Inc()
}

// RecordCacheMiss counts a lookup that fell through to the executor
func (m *Metrics) RecordCacheMiss() {
	m.cacheEvents.WithLabelValues("miss").Inc()
}

// RecordRateLimited counts a request rejected by admission control
func (m *Metrics) RecordRateLimited() {
	m.rateLimitedTotal.Inc()
}

// RecordRequest records HTTP request metrics including duration and status
// Called by middleware to track request statistics
// Time Complexity: O(1) - metric recording
// Space Complexity: O(1) - no additional allocations
func (m *Metrics) RecordRequest(method, statusCode string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, statusCode).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// Handler returns HTTP handler for Prometheus metrics exposition
// Enables metrics scraping by monitoring systems
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates middleware for automatic request metrics collection
// Wraps HTTP handlers to collect timing and status metrics
// Time Complexity: O(1) per request for metric recording
// Space Complexity: O(1) - no additional allocations per request
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			wrapper := &statusRecorder{ResponseWriter: w, statusCode: 200}

			next.ServeHTTP(wrapper, r)

			m.RecordRequest(
				r.Method,
				strconv.Itoa(wrapper.statusCode),
				time.Since(start),
			)
		})
	}
}

// statusRecorder wraps ResponseWriter to capture HTTP status codes
// Used by metrics middleware to record response status
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures status code for metrics
func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush forwards flushes so streaming responses keep working through
// the middleware chain
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
