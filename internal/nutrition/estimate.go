package nutrition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var nutrientPatterns = []struct {
	nutrient string
	re       *regexp.Regexp
}{
	{Carbohydrates, nutrientPattern(`carbohydrates|carbs?|sugars?`)},
	{Proteins, nutrientPattern(`proteins?`)},
	{Fats, nutrientPattern(`fats?|lipids`)},
	{Fibre, nutrientPattern(`dietary fiber|fib(?:er|re)`)},
	{Calories, nutrientPattern(`calories|energy`)},
}

func nutrientPattern(names string) *regexp.Regexp {
	return regexp.MustCompile(`(?:` + names + `)"?\s*:?\s*(\d+(?:\.\d+)?)`)
}

// ParseEstimate extracts "<nutrient>: <number>" pairs from free model text.
// It is lossy on purpose: JSON, prose and bullet lists all parse, and
// nutrients that cannot be found are left at zero. found lists the nutrients
// that matched.
func ParseEstimate(text string) (p Profile, found []string) {
	lower := strings.ToLower(text)
	for _, np := range nutrientPatterns {
		m := np.re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		p.Set(np.nutrient, v)
		found = append(found, np.nutrient)
	}
	return p, found
}

// EstimatePrompt asks the model for a per-100g profile of one ingredient
func EstimatePrompt(ingredient string) string {
	return fmt.Sprintf(`Provide macronutrients per 100g for %s as JSON:
{
    "carbohydrates": float,
    "proteins": float,
    "fats": float,
    "fibre": float,
    "calories": float
}`, ingredient)
}
