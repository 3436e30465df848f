package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the Prometheus-backed recorder for model client activity.
// Each Metrics owns its registry so several instances can coexist in tests.
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	tokens      *prometheus.CounterVec
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	active      prometheus.Gauge

	usage *UsageTracker
}

// NewMetrics registers the vcare collectors. usage may be nil.
func NewMetrics(usage *UsageTracker) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vcare_requests_total",
			Help: "Model invocations by model and terminal status",
		}, []string{"model", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vcare_response_time_seconds",
			Help:    "Model invocation latency",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"model"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vcare_tokens_total",
			Help: "Estimated tokens by model and direction",
		}, []string{"model", "type"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vcare_cache_hits_total",
			Help: "Responses served from the response cache",
		}, []string{"model"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vcare_cache_misses_total",
			Help: "Response cache lookups that missed",
		}, []string{"model"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vcare_active_requests",
			Help: "Model invocations currently in flight",
		}),
		usage: usage,
	}

	m.registry.MustRegister(m.requests, m.latency, m.tokens, m.cacheHits, m.cacheMisses, m.active)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Usage returns the attached usage tracker, if any
func (m *Metrics) Usage() *UsageTracker {
	return m.usage
}

func (m *Metrics) RequestStarted() {
	m.active.Inc()
}

func (m *Metrics) RequestFinished() {
	m.active.Dec()
}

func (m *Metrics) RequestCompleted(model, status string, latency time.Duration) {
	m.requests.WithLabelValues(model, status).Inc()
	if latency > 0 {
		m.latency.WithLabelValues(model).Observe(latency.Seconds())
	}
	if m.usage != nil {
		m.usage.RecordRequest(model, status)
	}
}

func (m *Metrics) TokensUsed(model, direction string, n int) {
	if n <= 0 {
		return
	}
	m.tokens.WithLabelValues(model, direction).Add(float64(n))
	if m.usage != nil {
		m.usage.RecordTokens(model, direction, n)
	}
}

func (m *Metrics) CacheHit(model string) {
	m.cacheHits.WithLabelValues(model).Inc()
}

func (m *Metrics) CacheMiss(model string) {
	m.cacheMisses.WithLabelValues(model).Inc()
}
