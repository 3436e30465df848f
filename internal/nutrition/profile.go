// Package nutrition derives nutrient totals for a dish from its ingredients.
//
// Ingredient profiles are resolved through a tiered fallback (exact store
// lookup, similarity search, model estimate), adjusted for the cooking method
// inferred from the dish name and compared against a requirement profile.
package nutrition

import (
	"math"
	"strings"
)

// Nutrient names as they appear in maps, prompts and reports
const (
	Carbohydrates = "carbohydrates"
	Proteins      = "proteins"
	Fats          = "fats"
	Fibre         = "fibre"
	Calories      = "calories"
)

// Nutrients lists the profile fields in reporting order
var Nutrients = []string{Carbohydrates, Proteins, Fats, Fibre, Calories}

// Profile holds the five tracked nutrients. Store and model profiles are per
// 100 g; aggregated profiles are absolute.
type Profile struct {
	Carbohydrates float64 `json:"carbohydrates" yaml:"carbohydrates"`
	Proteins      float64 `json:"proteins" yaml:"proteins"`
	Fats          float64 `json:"fats" yaml:"fats"`
	Fibre         float64 `json:"fibre" yaml:"fibre"`
	Calories      float64 `json:"calories" yaml:"calories"`
}

// DefaultRequirements is the target used when a request carries none
func DefaultRequirements() Profile {
	return Profile{
		Carbohydrates: 200,
		Proteins:      60,
		Fats:          20,
		Fibre:         30,
		Calories:      1200,
	}
}

// Get returns the named nutrient, or zero for unknown names
func (p Profile) Get(nutrient string) float64 {
	switch nutrient {
	case Carbohydrates:
		return p.Carbohydrates
	case Proteins:
		return p.Proteins
	case Fats:
		return p.Fats
	case Fibre:
		return p.Fibre
	case Calories:
		return p.Calories
	}
	return 0
}

// Set assigns the named nutrient and reports whether the name is known
func (p *Profile) Set(nutrient string, value float64) bool {
	switch nutrient {
	case Carbohydrates:
		p.Carbohydrates = value
	case Proteins:
		p.Proteins = value
	case Fats:
		p.Fats = value
	case Fibre:
		p.Fibre = value
	case Calories:
		p.Calories = value
	default:
		return false
	}
	return true
}

// IsZero reports whether every field is zero
func (p Profile) IsZero() bool {
	return p == Profile{}
}

// Add returns the field-wise sum
func (p Profile) Add(o Profile) Profile {
	return Profile{
		Carbohydrates: p.Carbohydrates + o.Carbohydrates,
		Proteins:      p.Proteins + o.Proteins,
		Fats:          p.Fats + o.Fats,
		Fibre:         p.Fibre + o.Fibre,
		Calories:      p.Calories + o.Calories,
	}
}

// Sub returns the field-wise difference p - o
func (p Profile) Sub(o Profile) Profile {
	return Profile{
		Carbohydrates: p.Carbohydrates - o.Carbohydrates,
		Proteins:      p.Proteins - o.Proteins,
		Fats:          p.Fats - o.Fats,
		Fibre:         p.Fibre - o.Fibre,
		Calories:      p.Calories - o.Calories,
	}
}

// Scale multiplies every field by the matching field of factors and then by k
func (p Profile) Scale(factors Profile, k float64) Profile {
	return Profile{
		Carbohydrates: p.Carbohydrates * factors.Carbohydrates * k,
		Proteins:      p.Proteins * factors.Proteins * k,
		Fats:          p.Fats * factors.Fats * k,
		Fibre:         p.Fibre * factors.Fibre * k,
		Calories:      p.Calories * factors.Calories * k,
	}
}

// Round rounds every field to the given number of decimals
func (p Profile) Round(decimals int) Profile {
	pow := math.Pow(10, float64(decimals))
	r := func(v float64) float64 { return math.Round(v*pow) / pow }
	return Profile{
		Carbohydrates: r(p.Carbohydrates),
		Proteins:      r(p.Proteins),
		Fats:          r(p.Fats),
		Fibre:         r(p.Fibre),
		Calories:      r(p.Calories),
	}
}

// Map converts the profile into a name→value map
func (p Profile) Map() map[string]float64 {
	m := make(map[string]float64, len(Nutrients))
	for _, n := range Nutrients {
		m[n] = p.Get(n)
	}
	return m
}

// ProfileFromMap builds a profile from a name→value map. Missing names are
// zero-filled and unknown names ignored.
func ProfileFromMap(m map[string]float64) Profile {
	var p Profile
	for k, v := range m {
		p.Set(strings.ToLower(strings.TrimSpace(k)), v)
	}
	return p
}

// Ingredient is one component of a dish with its weight in grams
type Ingredient struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
}

// NewIngredient normalizes the name and clamps negative quantities to zero
func NewIngredient(name string, grams float64) Ingredient {
	if grams < 0 || math.IsNaN(grams) {
		grams = 0
	}
	return Ingredient{Name: NormalizeName(name), Quantity: grams}
}

// NormalizeName lower-cases and trims an ingredient name
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Item is a catalog entry: a canonical food name with its per-100g profile
type Item struct {
	Name    string  `json:"name"`
	Profile Profile `json:"nutrients"`
	Source  string  `json:"source,omitempty"`
}
