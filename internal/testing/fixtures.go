package testing

import (
	"encoding/json"
	"io"

	"github.com/First008/vcare/internal/llm"
	"github.com/First008/vcare/internal/nutrition"
	"github.com/First008/vcare/pkg/telemetry"
	"github.com/rs/zerolog"
)

// Sample payloads
const (
	// SampleImage is a short base64 stand-in for a JPEG
	SampleImage = "aGVsbG8gaW1hZ2U="

	// SampleVisionAnswer is what a vision model returns for a dish photo
	SampleVisionAnswer = `{
  "dish_name": "Crispy Fried Chicken",
  "ingredients": [
    {"name": " Chicken ", "quantity": 200},
    {"name": "Wheat Flour", "quantity": 50},
    {"name": "dragon fruit", "quantity": 100}
  ],
  "confidence": 140
}`

	// SampleEstimateAnswer is a model estimate in loose prose
	SampleEstimateAnswer = `Here are the values per 100g:
- Carbohydrates: 13.5
- Protein: 1.2
- Fat: 0.4
- Fiber: 3
- Calories: 60`

	// SampleNutrientCSV is an ingestion file with a header row
	SampleNutrientCSV = `name,carbohydrates,proteins,fats,fibre,calories
Chicken,0,27,14,0,239
Wheat Flour,76,10,1,2.7,364
Rice,28,2.7,0.3,0.4,130
`

	// SampleClinicalAnswer is a clinical recommendation as the model returns it
	SampleClinicalAnswer = `Based on the data:
{"prescriptions": ["Metformin 500mg"], "tests": ["HbA1c"], "reasoning": "Elevated glucose"}`
)

// NewTestLogger creates a zerolog.Logger that discards output (for quiet tests)
func NewTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// NewTestUsageTracker creates a telemetry.UsageTracker for testing
func NewTestUsageTracker() *telemetry.UsageTracker {
	return telemetry.NewUsageTracker(10.0, 8.0, NewTestLogger())
}

// NewTestClient creates a Claude messages client on top of endpoint with a
// fresh cache and no retries.
func NewTestClient(endpoint llm.Endpoint) (*llm.Client, error) {
	cfg, err := llm.NewModelConfig()
	if err != nil {
		return nil, err
	}
	cache, err := llm.NewResponseCache(llm.DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	return llm.NewClient(cfg, endpoint, NewTestLogger(), llm.WithCache(cache))
}

// ClaudeBody renders a Claude messages API response carrying text
func ClaudeBody(text string) string {
	body, _ := json.Marshal(map[string]any{
		"content":     []map[string]string{{"type": "text", "text": text}},
		"stop_reason": "end_turn",
	})
	return string(body)
}

// ClaudeStreamEvents renders Claude messages stream events: one delta per
// chunk followed by a message_delta with stop_reason end_turn.
func ClaudeStreamEvents(chunks ...string) []string {
	events := []string{`{"type":"message_start","message":{}}`}
	for _, c := range chunks {
		ev, _ := json.Marshal(map[string]any{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]string{"type": "text_delta", "text": c},
		})
		events = append(events, string(ev))
	}
	return append(events, `{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`)
}

// SampleCatalog returns per-100g profiles for a few common ingredients
func SampleCatalog() map[string]nutrition.Profile {
	return map[string]nutrition.Profile{
		"chicken":     {Carbohydrates: 0, Proteins: 27, Fats: 14, Fibre: 0, Calories: 239},
		"wheat flour": {Carbohydrates: 76, Proteins: 10, Fats: 1, Fibre: 2.7, Calories: 364},
		"rice":        {Carbohydrates: 28, Proteins: 2.7, Fats: 0.3, Fibre: 0.4, Calories: 130},
	}
}
