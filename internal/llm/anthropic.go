package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
)

// bedrockVersionSuffix matches the "-v1:0" style suffix of Bedrock model ids
var bedrockVersionSuffix = regexp.MustCompile(`-v\d+(:\d+)?$`)

// AnthropicEndpoint serves Claude bodies through Anthropic's own API.
// It accepts the same bodies the Bedrock endpoint does and answers with
// messages API JSON, so the Claude response parser handles both.
type AnthropicEndpoint struct {
	client anthropic.Client
	logger zerolog.Logger
}

// NewAnthropicEndpoint creates a new Anthropic endpoint
func NewAnthropicEndpoint(apiKey string, logger zerolog.Logger, opts ...option.RequestOption) (*AnthropicEndpoint, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicEndpoint{
		client: anthropic.NewClient(clientOpts...),
		logger: logger,
	}, nil
}

// Name implements Endpoint
func (e *AnthropicEndpoint) Name() string { return "anthropic" }

// Invoke implements Endpoint
func (e *AnthropicEndpoint) Invoke(ctx context.Context, modelID string, body []byte) (*EndpointResponse, error) {
	params, err := anthropicParams(modelID, body)
	if err != nil {
		return nil, err
	}

	message, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return nil, anthropicError(err)
	}

	e.logger.Debug().
		Str("model", string(message.Model)).
		Int64("input_tokens", message.Usage.InputTokens).
		Int64("output_tokens", message.Usage.OutputTokens).
		Str("stop_reason", string(message.StopReason)).
		Msg("Claude API request completed")

	return &EndpointResponse{StatusCode: 200, Body: []byte(message.RawJSON())}, nil
}

// InvokeStream implements Endpoint
func (e *AnthropicEndpoint) InvokeStream(ctx context.Context, modelID string, body []byte) (EventStream, error) {
	params, err := anthropicParams(modelID, body)
	if err != nil {
		return nil, err
	}

	stream := e.client.Messages.NewStreaming(ctx, params)
	return &anthropicStream{
		next: func() ([]byte, bool) {
			if !stream.Next() {
				return nil, false
			}
			return []byte(stream.Current().RawJSON()), true
		},
		err:   stream.Err,
		close: stream.Close,
	}, nil
}

type anthropicStream struct {
	next  func() ([]byte, bool)
	err   func() error
	close func() error
}

func (s *anthropicStream) Recv() ([]byte, error) {
	if event, ok := s.next(); ok {
		return event, nil
	}
	if err := s.err(); err != nil {
		return nil, anthropicError(err)
	}
	return nil, io.EOF
}

func (s *anthropicStream) Close() error {
	return s.close()
}

// anthropicParams converts a Claude body (messages or legacy) into SDK params
func anthropicParams(modelID string, body []byte) (anthropic.MessageNewParams, error) {
	var req messagesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return anthropic.MessageNewParams{}, &RequestFormattingError{Provider: ProviderClaude, ModelID: modelID, Reason: "decode claude body: " + err.Error()}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(directModelName(modelID)),
		MaxTokens: int64(req.MaxTokens),
	}

	if len(req.Messages) > 0 {
		for _, msg := range req.Messages {
			var blocks []anthropic.ContentBlockParamUnion
			for _, block := range msg.Content {
				switch {
				case block.Type == "image" && block.Source != nil:
					blocks = append(blocks, anthropic.NewImageBlockBase64(block.Source.MediaType, block.Source.Data))
				case block.Type == "text" && block.Text != nil:
					blocks = append(blocks, anthropic.NewTextBlock(*block.Text))
				}
			}
			params.Messages = append(params.Messages, anthropic.NewUserMessage(blocks...))
		}
		params.Temperature = anthropic.Float(req.Temperature)
		return params, nil
	}

	var legacy legacyClaudeRequest
	if err := json.Unmarshal(body, &legacy); err != nil || legacy.Prompt == "" {
		return anthropic.MessageNewParams{}, &RequestFormattingError{Provider: ProviderClaude, ModelID: modelID, Reason: "claude body has neither messages nor prompt"}
	}
	prompt := strings.TrimPrefix(legacy.Prompt, "\n\nHuman: ")
	prompt = strings.TrimSuffix(prompt, "\n\nAssistant:")
	params.MaxTokens = int64(legacy.MaxTokensToSample)
	params.Temperature = anthropic.Float(legacy.Temperature)
	params.Messages = []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	}
	return params, nil
}

// directModelName maps a Bedrock model id such as
// "anthropic.claude-3-sonnet-20240229-v1:0" to the API name "claude-3-sonnet-20240229"
func directModelName(modelID string) string {
	name := strings.TrimPrefix(modelID, "anthropic.")
	return bedrockVersionSuffix.ReplaceAllString(name, "")
}

func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &StatusError{StatusCode: apiErr.StatusCode, Err: err}
	}
	return fmt.Errorf("anthropic API error: %w", err)
}
