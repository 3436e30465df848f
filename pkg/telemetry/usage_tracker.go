// Package telemetry provides model usage accounting and Prometheus metrics.
//
// The telemetry package tracks estimated token usage and cost per model
// with a daily budget, alert threshold and automatic reset, and exposes the
// request, latency, token and cache metrics recorded by the model client.
package telemetry

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ModelPricing holds on-demand pricing for a model in USD per million tokens
type ModelPricing struct {
	InputPricePerMToken  float64
	OutputPricePerMToken float64
}

// BedrockPricing lists on-demand prices for the model families this service
// calls. Lookup strips the Bedrock version suffix, so
// "anthropic.claude-3-sonnet-20240229-v1:0" matches "anthropic.claude-3-sonnet-20240229".
var BedrockPricing = map[string]ModelPricing{
	// Claude
	"anthropic.claude-3-sonnet-20240229": {InputPricePerMToken: 3.00, OutputPricePerMToken: 15.00},
	"anthropic.claude-3-haiku-20240307":  {InputPricePerMToken: 0.25, OutputPricePerMToken: 1.25},
	"anthropic.claude-3-opus-20240229":   {InputPricePerMToken: 15.00, OutputPricePerMToken: 75.00},
	"anthropic.claude-v2":                {InputPricePerMToken: 8.00, OutputPricePerMToken: 24.00},

	// Llama
	"meta.llama3-2-11b-instruct": {InputPricePerMToken: 0.16, OutputPricePerMToken: 0.16},
	"meta.llama3-2-90b-instruct": {InputPricePerMToken: 0.72, OutputPricePerMToken: 0.72},
	"meta.llama3-70b-instruct":   {InputPricePerMToken: 2.65, OutputPricePerMToken: 3.50},

	// Mistral
	"mistral.mistral-7b-instruct":   {InputPricePerMToken: 0.15, OutputPricePerMToken: 0.20},
	"mistral.mistral-large-2402":    {InputPricePerMToken: 4.00, OutputPricePerMToken: 12.00},
	"mistral.mixtral-8x7b-instruct": {InputPricePerMToken: 0.45, OutputPricePerMToken: 0.70},
}

// LookupPricing finds pricing for a model id, ignoring region prefixes
// ("us.", "eu.", "apac.") and version suffixes ("-v1:0")
func LookupPricing(modelID string) (ModelPricing, bool) {
	id := modelID
	for _, prefix := range []string{"us.", "eu.", "apac."} {
		id = strings.TrimPrefix(id, prefix)
	}
	if p, ok := BedrockPricing[id]; ok {
		return p, true
	}
	if idx := strings.LastIndex(id, "-v"); idx > 0 {
		if p, ok := BedrockPricing[id[:idx]]; ok {
			return p, true
		}
	}
	return ModelPricing{}, false
}

// UsageTracker accumulates estimated tokens and cost per day and overall
type UsageTracker struct {
	mu sync.RWMutex

	dailyMaxUSD       float64
	alertThresholdUSD float64

	// Daily tracking (resets at midnight)
	dailySpend        float64
	dailyInputTokens  int64
	dailyOutputTokens int64
	dailyRequestCount int
	dailyErrorCount   int
	lastResetDate     string
	alerted           bool

	// Overall tracking
	totalSpend        float64
	totalInputTokens  int64
	totalOutputTokens int64
	totalRequestCount int
	totalErrorCount   int

	now    func() time.Time
	logger zerolog.Logger
}

// NewUsageTracker creates a tracker. A zero dailyMaxUSD disables the budget.
func NewUsageTracker(dailyMaxUSD, alertThresholdUSD float64, logger zerolog.Logger) *UsageTracker {
	if alertThresholdUSD <= 0 {
		alertThresholdUSD = dailyMaxUSD * 0.8
	}
	ut := &UsageTracker{
		dailyMaxUSD:       dailyMaxUSD,
		alertThresholdUSD: alertThresholdUSD,
		now:               time.Now,
		logger:            logger,
	}
	ut.lastResetDate = ut.today()
	return ut
}

func (ut *UsageTracker) today() string {
	return ut.now().Format("2006-01-02")
}

// RecordTokens adds estimated tokens for model and returns their cost.
// Models without pricing are counted at zero cost.
func (ut *UsageTracker) RecordTokens(model, direction string, tokens int) float64 {
	if tokens <= 0 {
		return 0
	}

	ut.mu.Lock()
	defer ut.mu.Unlock()

	ut.checkDailyReset()

	pricing, _ := LookupPricing(model)
	var cost float64
	switch direction {
	case "input":
		cost = float64(tokens) / 1_000_000 * pricing.InputPricePerMToken
		ut.dailyInputTokens += int64(tokens)
		ut.totalInputTokens += int64(tokens)
	case "output":
		cost = float64(tokens) / 1_000_000 * pricing.OutputPricePerMToken
		ut.dailyOutputTokens += int64(tokens)
		ut.totalOutputTokens += int64(tokens)
	default:
		return 0
	}

	ut.dailySpend += cost
	ut.totalSpend += cost

	// Check alert threshold once per day
	if ut.dailyMaxUSD > 0 && !ut.alerted && ut.dailySpend >= ut.alertThresholdUSD {
		ut.alerted = true
		ut.logger.Warn().
			Float64("daily_spend_usd", ut.dailySpend).
			Float64("alert_threshold_usd", ut.alertThresholdUSD).
			Float64("daily_max_usd", ut.dailyMaxUSD).
			Msg("Daily usage alert threshold reached")
	}

	return cost
}

// RecordRequest counts one finished model request
func (ut *UsageTracker) RecordRequest(model, status string) {
	ut.mu.Lock()
	defer ut.mu.Unlock()

	ut.checkDailyReset()

	ut.dailyRequestCount++
	ut.totalRequestCount++
	if status == "error" {
		ut.dailyErrorCount++
		ut.totalErrorCount++
	}

	ut.logger.Debug().
		Str("model", model).
		Str("status", status).
		Float64("daily_spend_usd", ut.dailySpend).
		Msg("Model request recorded")
}

// BudgetExceeded reports whether today's estimated spend reached the daily budget
func (ut *UsageTracker) BudgetExceeded() bool {
	ut.mu.Lock()
	defer ut.mu.Unlock()

	ut.checkDailyReset()
	return ut.dailyMaxUSD > 0 && ut.dailySpend >= ut.dailyMaxUSD
}

// checkDailyReset resets daily counters if the date has changed
func (ut *UsageTracker) checkDailyReset() {
	today := ut.today()
	if today != ut.lastResetDate {
		ut.logger.Info().
			Float64("previous_daily_spend_usd", ut.dailySpend).
			Int("previous_daily_requests", ut.dailyRequestCount).
			Msg("Daily usage tracking reset")

		ut.dailySpend = 0
		ut.dailyInputTokens = 0
		ut.dailyOutputTokens = 0
		ut.dailyRequestCount = 0
		ut.dailyErrorCount = 0
		ut.alerted = false
		ut.lastResetDate = today
	}
}

// GetDailyStats returns current daily statistics
func (ut *UsageTracker) GetDailyStats() DailyStats {
	ut.mu.Lock()
	defer ut.mu.Unlock()

	ut.checkDailyReset()

	remaining := 0.0
	if ut.dailyMaxUSD > 0 {
		remaining = ut.dailyMaxUSD - ut.dailySpend
	}
	return DailyStats{
		SpendUSD:     ut.dailySpend,
		InputTokens:  ut.dailyInputTokens,
		OutputTokens: ut.dailyOutputTokens,
		RequestCount: ut.dailyRequestCount,
		ErrorCount:   ut.dailyErrorCount,
		LimitUSD:     ut.dailyMaxUSD,
		RemainingUSD: remaining,
	}
}

// GetTotalStats returns overall statistics
func (ut *UsageTracker) GetTotalStats() TotalStats {
	ut.mu.RLock()
	defer ut.mu.RUnlock()

	return TotalStats{
		TotalSpendUSD:     ut.totalSpend,
		TotalInputTokens:  ut.totalInputTokens,
		TotalOutputTokens: ut.totalOutputTokens,
		TotalRequests:     ut.totalRequestCount,
		TotalErrors:       ut.totalErrorCount,
	}
}

// DailyStats holds daily usage statistics
type DailyStats struct {
	SpendUSD     float64 `json:"spend_usd"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	RequestCount int     `json:"request_count"`
	ErrorCount   int     `json:"error_count"`
	LimitUSD     float64 `json:"limit_usd"`
	RemainingUSD float64 `json:"remaining_usd"`
}

// TotalStats holds overall usage statistics
type TotalStats struct {
	TotalSpendUSD     float64 `json:"total_spend_usd"`
	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
	TotalRequests     int     `json:"total_requests"`
	TotalErrors       int     `json:"total_errors"`
}
