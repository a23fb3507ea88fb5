package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Cache metrics
	CacheLookups *prometheus.CounterVec // result: "hit", "miss", "stale", "bypass"
	CacheWrites  prometheus.Counter
	CacheErrors  prometheus.Counter

	// Rate limit metrics
	RateLimitChecks *prometheus.CounterVec // verdict: "allowed", "rejected", "failopen"

	// Extraction pipeline metrics
	ExtractionRuns    prometheus.Counter
	InsightsCreated   *prometheus.CounterVec // insight_type label
	ExtractionLatency prometheus.Histogram
	LLMRequestLatency prometheus.Histogram
	LLMRequestErrors  prometheus.Counter
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meetingmind_cache_lookups_total",
			Help: "Total cache lookups by result",
		}, []string{"result"}),

		CacheWrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetingmind_cache_writes_total",
			Help: "Total cache writes",
		}),

		CacheErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetingmind_cache_errors_total",
			Help: "Total KV store errors swallowed by the cache layer",
		}),

		RateLimitChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meetingmind_ratelimit_checks_total",
			Help: "Total rate limit checks by verdict",
		}, []string{"verdict"}),

		ExtractionRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetingmind_extraction_runs_total",
			Help: "Total insight extraction batch runs",
		}),

		InsightsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "meetingmind_insights_created_total",
			Help: "Total insights persisted by type",
		}, []string{"insight_type"}),

		ExtractionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetingmind_extraction_run_duration_seconds",
			Help:    "Extraction batch run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),

		LLMRequestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "meetingmind_llm_request_duration_seconds",
			Help:    "LLM structured-output request latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		LLMRequestErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "meetingmind_llm_request_errors_total",
			Help: "Total failed LLM requests",
		}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordCacheLookup records a cache lookup result
func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordCacheWrite records a successful cache write
func (m *Metrics) RecordCacheWrite() {
	if m == nil {
		return
	}
	m.CacheWrites.Inc()
}

// RecordCacheError records a swallowed KV store error
func (m *Metrics) RecordCacheError() {
	if m == nil {
		return
	}
	m.CacheErrors.Inc()
}

// RecordRateLimitCheck records a rate limit verdict
func (m *Metrics) RecordRateLimitCheck(verdict string) {
	if m == nil {
		return
	}
	m.RateLimitChecks.WithLabelValues(verdict).Inc()
}

// RecordInsight records a persisted insight
func (m *Metrics) RecordInsight(insightType string) {
	if m == nil {
		return
	}
	m.InsightsCreated.WithLabelValues(insightType).Inc()
}
