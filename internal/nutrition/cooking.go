package nutrition

import "strings"

// CookingMethod is the preparation inferred from a dish name
type CookingMethod string

const (
	Boiling  CookingMethod = "boiling"
	Frying   CookingMethod = "frying"
	Baking   CookingMethod = "baking"
	Grilling CookingMethod = "grilling"
	Steaming CookingMethod = "steaming"
)

// cookingFactors are retention multipliers applied to per-100g values
var cookingFactors = map[CookingMethod]Profile{
	Boiling:  {Proteins: 0.85, Fats: 0.95, Carbohydrates: 0.90, Fibre: 0.80, Calories: 0.92},
	Frying:   {Proteins: 0.90, Fats: 1.20, Carbohydrates: 0.95, Fibre: 0.85, Calories: 1.15},
	Baking:   {Proteins: 0.92, Fats: 0.98, Carbohydrates: 0.94, Fibre: 0.88, Calories: 0.96},
	Grilling: {Proteins: 0.88, Fats: 0.90, Carbohydrates: 0.92, Fibre: 0.82, Calories: 0.93},
	Steaming: {Proteins: 0.95, Fats: 0.99, Carbohydrates: 0.97, Fibre: 0.92, Calories: 0.97},
}

// Checked in order; the first keyword found wins.
var cookingKeywords = []struct {
	keywords []string
	method   CookingMethod
}{
	{[]string{"fry", "crispy"}, Frying},
	{[]string{"bake", "roast"}, Baking},
	{[]string{"grill"}, Grilling},
	{[]string{"steam"}, Steaming},
}

// DetectCookingMethod infers the cooking method from a dish name, defaulting
// to boiling.
func DetectCookingMethod(dish string) CookingMethod {
	lower := strings.ToLower(dish)
	for _, rule := range cookingKeywords {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.method
			}
		}
	}
	return Boiling
}

// Factors returns the retention factors for m. Unknown methods get the
// boiling table.
func (m CookingMethod) Factors() Profile {
	if f, ok := cookingFactors[m]; ok {
		return f
	}
	return cookingFactors[Boiling]
}

// CookingAdjustment returns the method and factors for a dish name
func CookingAdjustment(dish string) (CookingMethod, Profile) {
	m := DetectCookingMethod(dish)
	return m, m.Factors()
}
