package llm

import (
	"math"
	"strings"
)

// tokensPerWord approximates the tokenizer ratio for English prose
const tokensPerWord = 1.3

// EstimateTokens approximates the token count of text from its word count.
// It is only used for accounting, never for request sizing.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Round(float64(words) * tokensPerWord))
}
