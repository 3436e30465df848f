package templates

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// $$, $name or ${name}
var placeholderRe = regexp.MustCompile(`\$(?:(\$)|([_a-zA-Z][_a-zA-Z0-9]*)|\{([_a-zA-Z][_a-zA-Z0-9]*)\})`)

// Render substitutes placeholders in text with values from data. Maps and
// slices are JSON encoded, everything else is formatted with %v. Unknown
// placeholders are left as they are and "$$" becomes "$".
func Render(text string, data map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		sub := placeholderRe.FindStringSubmatch(match)
		if sub[1] != "" {
			return "$"
		}
		name := sub[2]
		if name == "" {
			name = sub[3]
		}
		v, ok := data[name]
		if !ok {
			return match
		}
		return stringify(v)
	})
}

// Render fills the template's text with data
func (t Template) Render(data map[string]any) string {
	return Render(t.Text, data)
}

// Placeholders lists the distinct variable names used in text
func Placeholders(text string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, sub := range placeholderRe.FindAllStringSubmatch(text, -1) {
		name := sub[2]
		if name == "" {
			name = sub[3]
		}
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any, []string, map[string]string, []map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

// ExtractJSONObject decodes the outermost {...} span of text, so answers
// that wrap their JSON in prose or code fences still parse.
func ExtractJSONObject(text string) (map[string]any, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, false
	}
	return out, true
}

// ApplyResponseFormat shapes the JSON object found in text to the template's
// response_format: every format key is copied from the answer or falls back
// to the format's default. It reports false when the template has no format
// or no JSON object could be decoded.
func (t Template) ApplyResponseFormat(text string) (map[string]any, bool) {
	if len(t.ResponseFormat) == 0 {
		return nil, false
	}
	extracted, ok := ExtractJSONObject(text)
	if !ok {
		return nil, false
	}
	result := make(map[string]any, len(t.ResponseFormat))
	for key, def := range t.ResponseFormat {
		if v, ok := extracted[key]; ok {
			result[key] = v
		} else {
			result[key] = def
		}
	}
	return result, true
}

func sortByName(ts []Template) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Name < ts[j].Name })
}
