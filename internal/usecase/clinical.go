package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Clinical turns a patient summary into prescriptions, tests and referrals.
//
// Input: {age, conditions[], lab_results{name: value | {value, unit}},
// medications[]}. Output always carries prescriptions, tests and referrals.
type Clinical struct {
	textPipeline
}

// NewClinical creates the clinical recommender
func NewClinical(b base) *Clinical {
	c := &Clinical{textPipeline{base: b}}
	c.validate = validateClinical
	c.prompt = clinicalPrompt
	c.parse = parseClinical
	return c
}

func validateClinical(input map[string]any) error {
	var problems []string

	age, ok := toFloat(input["age"])
	switch {
	case !ok:
		problems = append(problems, "age is required and must be a number")
	case age < 0 || age > 120:
		problems = append(problems, fmt.Sprintf("age must be between 0 and 120, got %g", age))
	}
	if _, ok := toStrings(input["conditions"]); !ok {
		problems = append(problems, "conditions must be a list")
	}
	if _, ok := toMap(input["lab_results"]); !ok {
		problems = append(problems, "lab_results must be an object")
	}
	if meds, present := input["medications"]; present && meds != nil {
		if _, ok := toStrings(meds); !ok {
			problems = append(problems, "medications must be a list")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid clinical input: %s", strings.Join(problems, "; "))
	}
	return nil
}

// labValue renders {value, unit} lab entries as "value unit"
func labValue(v any) string {
	if m, ok := toMap(v); ok {
		value := fmt.Sprint(m["value"])
		if unit, ok := m["unit"].(string); ok && unit != "" {
			return value + " " + unit
		}
		return value
	}
	return fmt.Sprint(v)
}

func clinicalPrompt(input map[string]any) string {
	conditions, _ := toStrings(input["conditions"])
	meds, _ := toStrings(input["medications"])
	labs, _ := toMap(input["lab_results"])

	names := make([]string, 0, len(labs))
	for name := range labs {
		names = append(names, name)
	}
	sort.Strings(names)
	labParts := make([]string, 0, len(names))
	for _, name := range names {
		labParts = append(labParts, fmt.Sprintf("%s: %s", name, labValue(labs[name])))
	}

	medications := "None"
	if len(meds) > 0 {
		medications = strings.Join(meds, ", ")
	}

	var b strings.Builder
	b.WriteString("You are a clinical assistant helping a doctor analyze patient data and provide evidence-based recommendations.\n\n")
	b.WriteString("Patient Information:\n")
	fmt.Fprintf(&b, "- Age: %v\n", input["age"])
	fmt.Fprintf(&b, "- Medical Conditions: %s\n", strings.Join(conditions, ", "))
	fmt.Fprintf(&b, "- Lab Results: %s\n", strings.Join(labParts, ", "))
	fmt.Fprintf(&b, "- Current Medications: %s\n\n", medications)
	b.WriteString("Based on this information, provide:\n")
	b.WriteString("1. Recommended prescriptions or medication changes\n")
	b.WriteString("2. Suggested medical tests or monitoring\n")
	b.WriteString("3. Specialist referrals if needed\n")
	b.WriteString("4. Clinical reasoning for your recommendations\n\n")
	b.WriteString("Format your response as a JSON object with the following structure:\n")
	b.WriteString("{\n")
	b.WriteString(`  "prescriptions": ["medication1", "medication2"],` + "\n")
	b.WriteString(`  "tests": ["test1", "test2"],` + "\n")
	b.WriteString(`  "referrals": ["specialist1", "specialist2"],` + "\n")
	b.WriteString(`  "reasoning": "clinical reasoning for recommendations"` + "\n")
	b.WriteString("}\n")
	b.WriteString("Respond ONLY with a valid JSON object in the format above. Do not include any explanation or text outside the JSON.")
	return b.String()
}

func parseClinical(_ map[string]any, text string, log zerolog.Logger) map[string]any {
	return parseJSONAnswer(text, log, "prescriptions", "tests", "referrals")
}

// parseJSONAnswer decodes the JSON object in text, keeping the raw text when
// there is none, and fills the required keys with empty lists
func parseJSONAnswer(text string, log zerolog.Logger, required ...string) map[string]any {
	result, ok := extractObject(text)
	if !ok {
		if strings.Contains(text, "{") {
			log.Warn().Msg("Could not parse JSON from response text")
		}
		result = map[string]any{}
		if text != "" {
			result["text"] = text
		}
	}
	return ensureKeys(result, required...)
}
