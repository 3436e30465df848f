package usecase

import (
	"fmt"

	"github.com/rs/zerolog"
)

// SpeechToText summarizes a doctor-patient conversation and extracts the
// medical facts mentioned in it. It prefers the "speech_to_text" template
// when one is stored.
type SpeechToText struct {
	textPipeline
}

// NewSpeechToText creates the consultation summarizer
func NewSpeechToText(b base) *SpeechToText {
	s := &SpeechToText{textPipeline{base: b}}
	s.prompt = speechPrompt
	s.parse = parseSpeech
	return s
}

func speechPrompt(input map[string]any) string {
	return fmt.Sprintf(`Please analyze and extract information from the following doctor-patient conversation.

Context: %s

Audio Data: %s

Please provide a detailed analysis in the following JSON structure:
{
    "transcription": "full conversation text",
    "summary": "brief summary of key points",
    "medical_information": {
        "current_medications": [
            {"name": "medication name", "dosage": "dosage information", "frequency": "frequency of administration"}
        ],
        "diagnoses": [
            {"condition": "diagnosed condition", "severity": "mild/moderate/severe", "status": "new/existing/resolved"}
        ],
        "symptoms": [
            {"symptom": "symptom description", "duration": "how long", "severity": "mild/moderate/severe"}
        ],
        "vital_signs": {
            "blood_pressure": "value",
            "heart_rate": "value",
            "temperature": "value",
            "other": "other vital signs"
        },
        "lab_results": [
            {"test_name": "name of the test", "value": "test value", "unit": "unit of measurement", "status": "normal/abnormal"}
        ],
        "follow_up_actions": [
            {"action": "action description", "timeline": "when to do", "priority": "high/medium/low"}
        ]
    }
}
`, stringValue(input, "context"), stringValue(input, "audio_data"))
}

func parseSpeech(_ map[string]any, text string, log zerolog.Logger) map[string]any {
	result := map[string]any{
		"transcription":       "",
		"summary":             "",
		"medical_information": map[string]any{},
	}

	parsed, ok := extractObject(text)
	if !ok {
		log.Error().Int("length", len(text)).Msg("Could not parse speech-to-text response")
		return result
	}
	if v, ok := parsed["transcription"].(string); ok {
		result["transcription"] = v
	}
	if v, ok := parsed["summary"].(string); ok {
		result["summary"] = v
	}
	if v, ok := parsed["medical_information"].(map[string]any); ok {
		result["medical_information"] = v
	}
	return result
}
