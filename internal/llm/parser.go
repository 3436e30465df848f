package llm

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"
)

// ResponseParser normalizes provider response bodies into Response values.
// Missing or empty text is tolerated with a warning; structurally invalid
// bodies are reported as ResponseParsingError.
type ResponseParser struct {
	provider Provider
	logger   zerolog.Logger
}

// NewResponseParser creates a parser for one provider
func NewResponseParser(provider Provider, logger zerolog.Logger) *ResponseParser {
	return &ResponseParser{provider: provider, logger: logger}
}

type textBlockResponse struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Parse decodes a complete (non-streaming) response body
func (p *ResponseParser) Parse(body []byte) (Response, error) {
	fields, err := p.decodeObject(body)
	if err != nil {
		return Response{}, err
	}

	var resp Response
	switch p.provider {
	case ProviderClaude:
		if raw, ok := fields["content"]; ok {
			var blocks []textBlockResponse
			if err := json.Unmarshal(raw, &blocks); err != nil {
				return Response{}, &ResponseParsingError{Provider: p.provider, Reason: "content is not a list of blocks", Err: err}
			}
			var text strings.Builder
			for _, block := range blocks {
				if block.Type == "text" {
					text.WriteString(block.Text)
				}
			}
			resp.Text = text.String()
		} else {
			resp.Text = stringField(fields, "completion")
		}
		resp.StopReason = stringField(fields, "stop_reason")

	case ProviderLlama:
		resp.Text = stringField(fields, "generation")
		resp.StopReason = stringField(fields, "stop_reason")

	case ProviderMistral:
		raw, ok := fields["outputs"]
		if !ok {
			break
		}
		var outputs []struct {
			Text       string `json:"text"`
			StopReason string `json:"stop_reason"`
		}
		if err := json.Unmarshal(raw, &outputs); err != nil {
			return Response{}, &ResponseParsingError{Provider: p.provider, Reason: "outputs is not a list", Err: err}
		}
		if len(outputs) > 0 {
			resp.Text = outputs[0].Text
			resp.StopReason = outputs[0].StopReason
		}

	default:
		return Response{}, &ResponseParsingError{Provider: p.provider, Reason: "unsupported provider"}
	}

	if resp.Text == "" {
		p.logger.Warn().
			Str("provider", p.provider.String()).
			Msg("Model response contained no text")
	}
	return resp, nil
}

// ParseChunk decodes one streaming event. Events without text (message_start,
// ping, content_block_stop and similar) yield an empty Chunk.
func (p *ResponseParser) ParseChunk(body []byte) (Chunk, error) {
	fields, err := p.decodeObject(body)
	if err != nil {
		return Chunk{}, err
	}

	switch p.provider {
	case ProviderClaude:
		if _, ok := fields["type"]; ok {
			return parseMessagesEvent(fields), nil
		}
		return Chunk{
			Text:       stringField(fields, "completion"),
			StopReason: stringField(fields, "stop_reason"),
		}, nil

	case ProviderLlama:
		return Chunk{
			Text:       stringField(fields, "generation"),
			StopReason: stringField(fields, "stop_reason"),
		}, nil

	case ProviderMistral:
		var outputs []struct {
			Text       string `json:"text"`
			StopReason string `json:"stop_reason"`
		}
		if raw, ok := fields["outputs"]; ok {
			if err := json.Unmarshal(raw, &outputs); err != nil {
				return Chunk{}, &ResponseParsingError{Provider: p.provider, Reason: "outputs is not a list", Err: err}
			}
		}
		if len(outputs) == 0 {
			return Chunk{}, nil
		}
		return Chunk{Text: outputs[0].Text, StopReason: outputs[0].StopReason}, nil

	default:
		return Chunk{}, &ResponseParsingError{Provider: p.provider, Reason: "unsupported provider"}
	}
}

// parseMessagesEvent handles Claude messages API stream events
func parseMessagesEvent(fields map[string]json.RawMessage) Chunk {
	var delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	}
	raw, ok := fields["delta"]
	if !ok || json.Unmarshal(raw, &delta) != nil {
		return Chunk{}
	}

	switch stringField(fields, "type") {
	case "content_block_delta":
		return Chunk{Text: delta.Text}
	case "message_delta":
		return Chunk{StopReason: delta.StopReason}
	default:
		return Chunk{}
	}
}

func (p *ResponseParser) decodeObject(body []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &ResponseParsingError{Provider: p.provider, Reason: "body is not a JSON object", Err: err}
	}
	if fields == nil {
		return nil, &ResponseParsingError{Provider: p.provider, Reason: "body is null"}
	}
	return fields, nil
}

// stringField returns fields[key] as a string, or "" when absent, null or not a string
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
