package nutrition

import (
	"fmt"
	"math"
	"strings"
)

// IngredientDetail is the per-ingredient breakdown of an aggregation
type IngredientDetail struct {
	Name       string  `json:"name"`
	Quantity   float64 `json:"quantity"`
	Nutrients  Profile `json:"nutrients"`
	Adjusted   Profile `json:"adjusted_nutrients"`
	Tier       Tier    `json:"tier"`
	Substitute string  `json:"substitute,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Aggregate is the outcome of summing a dish
type Aggregate struct {
	Totals  Profile            `json:"totals"`
	Details []IngredientDetail `json:"ingredient_details"`
}

// AggregateNutrients sums value × factor × quantity/100 across resolved
// ingredients. resolutions must be aligned with ingredients. Totals are
// rounded to two decimals.
func AggregateNutrients(ingredients []Ingredient, resolutions []Resolution, factors Profile) Aggregate {
	var totals Profile
	details := make([]IngredientDetail, 0, len(ingredients))

	for i, ing := range ingredients {
		var res Resolution
		if i < len(resolutions) {
			res = resolutions[i]
		}
		adjusted := res.Profile.Scale(factors, ing.Quantity/100)
		totals = totals.Add(adjusted)

		d := IngredientDetail{
			Name:       ing.Name,
			Quantity:   ing.Quantity,
			Nutrients:  res.Profile,
			Adjusted:   adjusted,
			Tier:       res.Tier,
			Substitute: res.Substitute,
		}
		if res.Err != nil {
			d.Error = res.Err.Error()
		}
		details = append(details, d)
	}

	return Aggregate{Totals: totals.Round(2), Details: details}
}

// Deviation returns total - requirement per nutrient
func Deviation(total, requirement Profile) Profile {
	return total.Sub(requirement)
}

// Recommend renders advice for every nonzero deviation
func Recommend(deviation Profile) string {
	var advice []string
	for _, n := range Nutrients {
		diff := deviation.Get(n)
		switch {
		case diff > 0:
			advice = append(advice, fmt.Sprintf("reduce %s by %.1fg", n, math.Abs(diff)))
		case diff < 0:
			advice = append(advice, fmt.Sprintf("increase %s by %.1fg", n, math.Abs(diff)))
		}
	}
	if len(advice) == 0 {
		return "Nutrition targets met"
	}
	return "Consider to " + strings.Join(advice, ", ")
}
