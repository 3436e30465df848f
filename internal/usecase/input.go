package usecase

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/First008/vcare/internal/nutrition"
	"github.com/First008/vcare/internal/templates"
)

// Input maps come from decoded JSON, YAML or Go literals, so numbers and
// lists may arrive in several concrete types.

func stringValue(input map[string]any, key string) string {
	switch v := input[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func boolValue(input map[string]any, key string) bool {
	switch v := input[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// toFloat converts JSON-ish numbers; strings are parsed leniently
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toStrings(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprint(item))
		}
		return out, true
	default:
		return nil, false
	}
}

func toMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	case map[string]float64:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// profileValue reads a nutrient profile from input[key]. ok is false when
// the key is absent.
func profileValue(input map[string]any, key string) (nutrition.Profile, bool, error) {
	raw, present := input[key]
	if !present || raw == nil {
		return nutrition.Profile{}, false, nil
	}
	m, ok := toMap(raw)
	if !ok {
		return nutrition.Profile{}, true, fmt.Errorf("%s must be an object of nutrient values", key)
	}
	values := make(map[string]float64, len(m))
	for k, v := range m {
		f, ok := toFloat(v)
		if !ok {
			return nutrition.Profile{}, true, fmt.Errorf("%s.%s is not a number", key, k)
		}
		values[k] = f
	}
	return nutrition.ProfileFromMap(values), true, nil
}

// extractObject pulls the JSON object out of model text
func extractObject(text string) (map[string]any, bool) {
	return templates.ExtractJSONObject(text)
}

// ensureKeys fills missing keys with empty lists
func ensureKeys(result map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if _, ok := result[k]; !ok {
			result[k] = []any{}
		}
	}
	return result
}
