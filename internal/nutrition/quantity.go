package nutrition

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultQuantity is assumed for list entries without an amount
const DefaultQuantity = "1 piece"

// unitGrams maps a unit to its weight in grams. Count units use typical
// portion weights.
var unitGrams = map[string]float64{
	"kg":         1000,
	"g":          1,
	"mg":         0.001,
	"l":          1000,
	"ml":         1,
	"cup":        240,
	"cups":       240,
	"tbsp":       15,
	"tablespoon": 15,
	"tsp":        5,
	"teaspoon":   5,
	"piece":      50,
	"pieces":     50,
	"pc":         50,
	"pcs":        50,
	"slice":      30,
	"slices":     30,
	"whole":      100,
}

var (
	// [whole ]number[/denominator] [unit]
	quantityRe    = regexp.MustCompile(`(?:(\d+)\s+)?(\d+(?:\.\d+)?)(?:\s*/\s*(\d+))?\s*([a-z]*)`)
	trailingQtyRe = regexp.MustCompile(`^(.+?)\s+(\d.*)$`)
	leadingQtyRe  = regexp.MustCompile(`^(\d+(?:\.\d+)?(?:\s*/\s*\d+)?)\s*(kg|mg|ml|g|l|cups?|tbsp|tablespoon|tsp|teaspoon|pieces?|pcs?|slices?|whole)?\s+(.+)$`)
	lastQtyRe     = regexp.MustCompile(`(\d+\s*[a-z]*)$`)
	andRe         = regexp.MustCompile(`\band\b`)
)

// ParseQuantity converts an amount such as "2 cups", "1/2 tsp" or
// "1 1/2 kg" into grams. Unknown units count as grams; unparseable input
// yields zero.
func ParseQuantity(s string) float64 {
	s = strings.ReplaceAll(strings.ToLower(s), ",", "")
	m := quantityRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}

	value, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0
	}
	if m[3] != "" {
		den, err := strconv.ParseFloat(m[3], 64)
		if err != nil || den == 0 {
			return 0
		}
		value /= den
	}
	if m[1] != "" {
		whole, _ := strconv.ParseFloat(m[1], 64)
		value += whole
	}

	factor, ok := unitGrams[m[4]]
	if !ok {
		factor = 1
	}
	return value * factor
}

// ParseIngredients splits a free-form list ("rice 200g, 2 eggs and salt")
// into ingredients with gram quantities. Entries may be "name: amount",
// "name amount", "amount [unit] name" or a bare name. Bare names and
// unitless leading counts are taken as pieces.
func ParseIngredients(list string) []Ingredient {
	var out []Ingredient
	for _, part := range splitIngredientList(list) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		var item, qty string
		switch {
		case strings.Contains(part, ":"):
			item, qty, _ = strings.Cut(part, ":")
		case strings.ContainsAny(part, "0123456789"):
			if m := trailingQtyRe.FindStringSubmatch(part); m != nil {
				item, qty = m[1], m[2]
			} else if m := leadingQtyRe.FindStringSubmatch(strings.ToLower(part)); m != nil {
				unit := m[2]
				if unit == "" {
					unit = "piece"
				}
				item, qty = m[3], m[1]+" "+unit
			} else if m := lastQtyRe.FindStringSubmatch(strings.ToLower(part)); m != nil {
				qty = m[1]
				item = strings.TrimSpace(strings.TrimSuffix(strings.ToLower(part), qty))
			} else {
				continue
			}
		default:
			item, qty = part, DefaultQuantity
		}

		if strings.TrimSpace(item) == "" {
			continue
		}
		out = append(out, NewIngredient(item, ParseQuantity(strings.TrimSpace(qty))))
	}
	return out
}

// splitIngredientList splits on commas outside parentheses, newlines and the
// word "and".
func splitIngredientList(list string) []string {
	var parts []string
	var cur strings.Builder
	depth := 0
	flush := func() {
		parts = append(parts, cur.String())
		cur.Reset()
	}
	for _, r := range list {
		switch {
		case r == '(':
			depth++
		case r == ')' && depth > 0:
			depth--
		case r == '\n' || (r == ',' && depth == 0):
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()

	var out []string
	for _, p := range parts {
		out = append(out, andRe.Split(p, -1)...)
	}
	return out
}
