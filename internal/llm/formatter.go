package llm

import (
	"encoding/json"
	"fmt"
)

const (
	bedrockAnthropicVersion = "bedrock-2023-05-31"
	legacyClaudeStop        = "\n\nHuman:"
	llamaTopP               = 0.9
	imageMediaType          = "image/jpeg"
)

// Wire shapes. Field order follows what the providers document.

type messagesRequest struct {
	Messages         []chatMessage `json:"messages"`
	MaxTokens        int           `json:"max_tokens"`
	Temperature      float64       `json:"temperature"`
	AnthropicVersion string        `json:"anthropic_version,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
}

type chatMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type     string       `json:"type"`
	Text     *string      `json:"text,omitempty"`
	Source   *imageSource `json:"source,omitempty"`
	ImageURL *imageURL    `json:"image_url,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type imageURL struct {
	URL string `json:"url"`
}

type legacyClaudeRequest struct {
	Prompt            string   `json:"prompt"`
	MaxTokensToSample int      `json:"max_tokens_to_sample"`
	Temperature       float64  `json:"temperature"`
	StopSequences     []string `json:"stop_sequences"`
}

type legacyLlamaRequest struct {
	Prompt      string  `json:"prompt"`
	MaxGenLen   int     `json:"max_gen_len"`
	Temperature float64 `json:"temperature"`
}

type mistralRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// FormatRequest builds the JSON body for cfg's provider and model.
// image is base64 encoded JPEG data and is ignored by text-only model shapes.
func FormatRequest(cfg ModelConfig, prompt, image string) ([]byte, error) {
	var payload any

	switch cfg.Provider {
	case ProviderClaude:
		if isClaudeMessagesModel(cfg.ModelID) {
			var content []contentBlock
			if image != "" {
				content = append(content, contentBlock{
					Type: "image",
					Source: &imageSource{
						Type:      "base64",
						MediaType: imageMediaType,
						Data:      image,
					},
				})
			}
			content = append(content, textBlock(prompt))
			payload = messagesRequest{
				Messages:         []chatMessage{{Role: "user", Content: content}},
				MaxTokens:        cfg.MaxTokens,
				Temperature:      cfg.Temperature,
				AnthropicVersion: bedrockAnthropicVersion,
			}
		} else {
			payload = legacyClaudeRequest{
				Prompt:            fmt.Sprintf("\n\nHuman: %s\n\nAssistant:", prompt),
				MaxTokensToSample: cfg.MaxTokens,
				Temperature:       cfg.Temperature,
				StopSequences:     []string{legacyClaudeStop},
			}
		}

	case ProviderLlama:
		if isLlamaVisionModel(cfg.ModelID) {
			var content []contentBlock
			if image != "" {
				content = append(content, contentBlock{
					Type:     "image_url",
					ImageURL: &imageURL{URL: "data:" + imageMediaType + ";base64," + image},
				})
			}
			content = append(content, textBlock(prompt))
			topP := llamaTopP
			payload = messagesRequest{
				Messages:    []chatMessage{{Role: "user", Content: content}},
				MaxTokens:   cfg.MaxTokens,
				Temperature: cfg.Temperature,
				TopP:        &topP,
			}
		} else {
			payload = legacyLlamaRequest{
				Prompt:      prompt,
				MaxGenLen:   cfg.MaxTokens,
				Temperature: cfg.Temperature,
			}
		}

	case ProviderMistral:
		payload = mistralRequest{
			Prompt:      prompt,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}

	default:
		return nil, &RequestFormattingError{
			Provider: cfg.Provider,
			ModelID:  cfg.ModelID,
			Reason:   "unsupported provider",
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &RequestFormattingError{Provider: cfg.Provider, ModelID: cfg.ModelID, Reason: err.Error()}
	}
	return body, nil
}

func textBlock(text string) contentBlock {
	return contentBlock{Type: "text", Text: &text}
}
