package foxytools

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request pipeline,
// the response cache and the rate limiter. It is safe for concurrent use
// and every method is a no-op on a nil collector.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheWrites    *prometheus.CounterVec
	computeRetries *prometheus.CounterVec

	rateLimitWait prometheus.Histogram

	errorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetricsCollector creates a metrics collector on a fresh registry.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	mc := &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "foxytools_requests_total",
				Help: "Total number of requests sent through the pipeline",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "foxytools_request_duration_seconds",
				Help:    "Duration of pipeline requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "foxytools_requests_in_flight",
				Help: "Number of requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "foxytools_cache_hits_total",
				Help: "Total number of response cache hits",
			},
			[]string{"collection"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "foxytools_cache_misses_total",
				Help: "Total number of response cache misses",
			},
			[]string{"collection"},
		),
		cacheWrites: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "foxytools_cache_writes_total",
				Help: "Total number of responses persisted to the cache",
			},
			[]string{"collection"},
		),
		computeRetries: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "foxytools_cache_compute_retries_total",
				Help: "Total number of repeated compute attempts after a failure",
			},
			[]string{"collection", "attempt"},
		),
		rateLimitWait: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "foxytools_rate_limit_wait_seconds",
				Help:    "Time spent waiting for a rate limit permit",
				Buckets: []float64{0, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "foxytools_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type", "method", "endpoint"},
		),
	}

	if reg, ok := registry.(*prometheus.Registry); ok {
		mc.registry = reg
	}

	return mc
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordCacheHit increments cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(collection string) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(collection).Inc()
}

// RecordCacheMiss increments cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(collection string) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(collection).Inc()
}

// RecordCacheWrite increments cache write counter.
func (mc *MetricsCollector) RecordCacheWrite(collection string) {
	if mc == nil {
		return
	}

	mc.cacheWrites.WithLabelValues(collection).Inc()
}

// RecordComputeRetry counts a repeated compute attempt.
func (mc *MetricsCollector) RecordComputeRetry(collection string, attempt int) {
	if mc == nil {
		return
	}

	mc.computeRetries.WithLabelValues(collection, strconv.Itoa(attempt)).Inc()
}

// RecordRateLimitWait observes time spent blocked on the rate limiter.
func (mc *MetricsCollector) RecordRateLimitWait(d time.Duration) {
	if mc == nil {
		return
	}

	mc.rateLimitWait.Observe(d.Seconds())
}

// RecordError increments error counter by type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}

// GetRegistry exposes the underlying prometheus registry. It is nil when
// the collector was built on a registerer that is not a *prometheus.Registry.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	return mc.registry
}

// errorType names err for the errors_total metric.
func errorType(err error) string {
	switch err.(type) {
	case *TransportError:
		return "Transport"
	case *CacheComputeError:
		return "CacheCompute"
	case *SerializationError:
		return "Serialization"
	case *StatusError:
		return "Status"
	case *StoreIOError:
		return "StoreIO"
	default:
		return "Other"
	}
}
