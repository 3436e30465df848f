package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// CarePlan updates a FHIR CarePlan from the current plan and the latest
// clinical recommendation
type CarePlan struct {
	textPipeline
}

// NewCarePlan creates the care-plan recommender
func NewCarePlan(b base) *CarePlan {
	c := &CarePlan{textPipeline{base: b}}
	c.validate = validateCarePlan
	c.prompt = carePlanPrompt
	c.parse = parseCarePlan
	return c
}

var carePlanRequired = []string{"careplan_summary", "clinical_recommendation"}

func validateCarePlan(input map[string]any) error {
	var missing []string
	for _, key := range carePlanRequired {
		if _, ok := input[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func carePlanPrompt(input map[string]any) string {
	var b strings.Builder
	b.WriteString("You are a clinical assistant helping design a personalized, standards-compliant FHIR CarePlan for a patient with chronic conditions.\n\n")
	b.WriteString("The patient's current careplan activities (LOINC/SNOMED-coded) are:\n")
	b.WriteString(indentJSON(input["careplan_summary"]))
	b.WriteString("\n\nThe latest clinical recommendations from the AI system are:\n")
	b.WriteString(indentJSON(input["clinical_recommendation"]))
	b.WriteString("\n\nBased on this information, return an UPDATED FHIR CarePlan in JSON format that:\n")
	b.WriteString("- Uses only LOINC or SNOMED codes in the `activity.detail.code`\n")
	b.WriteString("- Includes `title`, `description`, and optional `goal` mapping for each activity\n")
	b.WriteString("- Clearly includes `status: scheduled` or `completed` per activity\n")
	b.WriteString("- Is fully self-contained (with `resourceType`, `status`, `intent`, `activity`, and optionally `goal` sections)\n")
	b.WriteString("- Groups activities logically (e.g., monitoring, education, screening)\n\n")
	b.WriteString("Respond ONLY with a valid FHIR CarePlan JSON object. Do not include any explanation or text outside the JSON block.\n")
	return b.String()
}

func parseCarePlan(_ map[string]any, text string, log zerolog.Logger) map[string]any {
	return parseJSONAnswer(text, log, carePlanRequired...)
}
