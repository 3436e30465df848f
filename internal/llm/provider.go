// Package llm provides the model invocation layer used by every use case.
//
// The llm package formats provider-specific request bodies, submits them to a
// remote model Endpoint (Bedrock runtime, the Anthropic API or a plain HTTP
// gateway), parses the heterogeneous responses into a normalized Response and
// layers caching, retries, streaming and metrics on top.
package llm

import (
	"fmt"
	"strings"
)

// Provider identifies a model family. Each family has its own request and
// response wire shapes.
type Provider string

const (
	// ProviderClaude covers Anthropic Claude models (messages API and legacy completions)
	ProviderClaude Provider = "anthropic"
	// ProviderLlama covers Meta Llama models
	ProviderLlama Provider = "meta"
	// ProviderMistral covers Mistral models
	ProviderMistral Provider = "mistral"
)

// Providers lists every supported provider in a stable order
var Providers = []Provider{ProviderClaude, ProviderLlama, ProviderMistral}

// ParseProvider converts a configuration value to a Provider.
// Family aliases ("claude", "llama") are accepted alongside the canonical values.
func ParseProvider(value string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "anthropic", "claude":
		return ProviderClaude, nil
	case "meta", "llama":
		return ProviderLlama, nil
	case "mistral":
		return ProviderMistral, nil
	default:
		return "", fmt.Errorf("unsupported model provider: %q (use anthropic, meta or mistral)", value)
	}
}

// Valid reports whether p is one of the supported providers
func (p Provider) Valid() bool {
	switch p {
	case ProviderClaude, ProviderLlama, ProviderMistral:
		return true
	default:
		return false
	}
}

func (p Provider) String() string {
	return string(p)
}

// UnmarshalText lets configuration files use the same aliases as ParseProvider
func (p *Provider) UnmarshalText(text []byte) error {
	parsed, err := ParseProvider(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Response is the normalized result of a model invocation
type Response struct {
	// Text is the generated text, empty when the provider returned nothing usable
	Text string `json:"text"`

	// StopReason is set when the provider reports why generation ended
	StopReason string `json:"stop_reason,omitempty"`
}

// Chunk is a single increment of a streaming invocation
type Chunk struct {
	Text       string `json:"text"`
	StopReason string `json:"stop_reason,omitempty"`
}

// isClaudeMessagesModel reports whether a Claude model id speaks the messages API
func isClaudeMessagesModel(modelID string) bool {
	return strings.Contains(modelID, "claude-3")
}

// isLlamaVisionModel reports whether a Llama model id speaks the chat messages shape
func isLlamaVisionModel(modelID string) bool {
	return strings.Contains(strings.ToLower(modelID), "llama3-2")
}
