package llm

import (
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestResponseParser_Parse(t *testing.T) {
	tests := []struct {
		name     string
		provider Provider
		body     string
		want     Response
	}{
		{
			name:     "claude messages joins text blocks",
			provider: ProviderClaude,
			body:     `{"content":[{"type":"text","text":"Hello "},{"type":"tool_use","id":"x"},{"type":"text","text":"there"}],"stop_reason":"end_turn"}`,
			want:     Response{Text: "Hello there", StopReason: "end_turn"},
		},
		{
			name:     "claude legacy completion",
			provider: ProviderClaude,
			body:     `{"completion":" Sure.","stop_reason":"stop_sequence"}`,
			want:     Response{Text: " Sure.", StopReason: "stop_sequence"},
		},
		{
			name:     "llama generation",
			provider: ProviderLlama,
			body:     `{"generation":"llama says hi","stop_reason":"stop"}`,
			want:     Response{Text: "llama says hi", StopReason: "stop"},
		},
		{
			name:     "mistral outputs",
			provider: ProviderMistral,
			body:     `{"outputs":[{"text":"bonjour","stop_reason":"stop"},{"text":"ignored"}]}`,
			want:     Response{Text: "bonjour", StopReason: "stop"},
		},
		{
			name:     "missing text field yields empty text",
			provider: ProviderLlama,
			body:     `{"other":"value"}`,
			want:     Response{},
		},
		{
			name:     "empty mistral outputs",
			provider: ProviderMistral,
			body:     `{"outputs":[]}`,
			want:     Response{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewResponseParser(tt.provider, testLogger())
			got, err := p.Parse([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResponseParser_StructuralErrors(t *testing.T) {
	tests := []struct {
		name     string
		provider Provider
		body     string
	}{
		{"not json", ProviderClaude, `not json`},
		{"json array", ProviderLlama, `[1,2]`},
		{"claude content not a list", ProviderClaude, `{"content":"text"}`},
		{"mistral outputs not a list", ProviderMistral, `{"outputs":{"text":"x"}}`},
		{"null body", ProviderMistral, `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewResponseParser(tt.provider, testLogger())
			_, err := p.Parse([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrResponseParsing))
			assert.False(t, Retryable(err))
		})
	}
}

func TestResponseParser_ParseChunk(t *testing.T) {
	tests := []struct {
		name     string
		provider Provider
		body     string
		want     Chunk
	}{
		{"claude content delta", ProviderClaude, `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`, Chunk{Text: "Hi"}},
		{"claude message delta", ProviderClaude, `{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`, Chunk{StopReason: "end_turn"}},
		{"claude message start", ProviderClaude, `{"type":"message_start","message":{"id":"m"}}`, Chunk{}},
		{"claude legacy", ProviderClaude, `{"completion":"abc","stop_reason":null}`, Chunk{Text: "abc"}},
		{"llama", ProviderLlama, `{"generation":"x","stop_reason":"stop"}`, Chunk{Text: "x", StopReason: "stop"}},
		{"mistral", ProviderMistral, `{"outputs":[{"text":"y"}]}`, Chunk{Text: "y"}},
		{"mistral no outputs", ProviderMistral, `{}`, Chunk{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewResponseParser(tt.provider, testLogger())
			got, err := p.ParseChunk([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
