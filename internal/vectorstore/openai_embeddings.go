package vectorstore

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

// OpenAIEmbeddingProvider implements EmbeddingProvider using OpenAI API
type OpenAIEmbeddingProvider struct {
	client openai.Client
	model  string
	logger zerolog.Logger
}

const (
	OpenAIModelTextEmbedding3Small = "text-embedding-3-small"
	OpenAIModelTextEmbedding3Large = "text-embedding-3-large"

	OpenAIDimensionSmall = 1536
	OpenAIDimensionLarge = 3072
)

// NewOpenAIEmbeddingProvider creates a new OpenAI embedding provider.
// Extra options (base URL, HTTP client) are passed to the SDK.
func NewOpenAIEmbeddingProvider(apiKey, model string, logger zerolog.Logger, opts ...option.RequestOption) (*OpenAIEmbeddingProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if model == "" {
		model = OpenAIModelTextEmbedding3Small
	}

	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)

	logger.Info().
		Str("model", model).
		Msg("OpenAI embedding provider initialized")

	return &OpenAIEmbeddingProvider{
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

// Embed embeds a single food name
func (o *OpenAIEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds every name in one API call. The response is ordered by
// its index field, not by position.
func (o *OpenAIEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding error: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("openai embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = toFloat32(d.Embedding)
	}

	o.logger.Debug().
		Int("inputs", len(texts)).
		Int64("prompt_tokens", resp.Usage.PromptTokens).
		Msg("OpenAI embeddings created")

	return vectors, nil
}

// Dimensions returns the embedding dimension
func (o *OpenAIEmbeddingProvider) Dimensions() int {
	if o.model == OpenAIModelTextEmbedding3Large {
		return OpenAIDimensionLarge
	}
	return OpenAIDimensionSmall
}

// ModelName returns the model name
func (o *OpenAIEmbeddingProvider) ModelName() string {
	return o.model
}
