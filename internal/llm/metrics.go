package llm

import "time"

// Request status labels
const (
	StatusSuccess   = "success"
	StatusFailed    = "error"
	StatusCancelled = "cancelled"
)

// Token direction labels
const (
	TokensInput  = "input"
	TokensOutput = "output"
)

// Metrics receives client instrumentation. telemetry.Metrics is the
// Prometheus-backed implementation.
type Metrics interface {
	RequestStarted()
	RequestFinished()
	RequestCompleted(model, status string, latency time.Duration)
	TokensUsed(model, direction string, n int)
	CacheHit(model string)
	CacheMiss(model string)
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) RequestStarted()                                {}
func (NopMetrics) RequestFinished()                               {}
func (NopMetrics) RequestCompleted(string, string, time.Duration) {}
func (NopMetrics) TokensUsed(string, string, int)                 {}
func (NopMetrics) CacheHit(string)                                {}
func (NopMetrics) CacheMiss(string)                               {}
