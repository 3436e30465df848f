package vectorstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
)

// OllamaEmbeddingProvider implements EmbeddingProvider using Ollama.
// Runs embeddings locally, so food names never leave the host.
type OllamaEmbeddingProvider struct {
	client *api.Client
	model  string
	logger zerolog.Logger
}

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"

	OllamaNomicDimension  = 768
	OllamaBGEM3Dimension  = 1024
	OllamaMiniLMDimension = 384
)

// NewOllamaEmbeddingProvider creates an Ollama provider and checks that the
// model has been pulled.
func NewOllamaEmbeddingProvider(ctx context.Context, ollamaURL, model string, httpClient *http.Client, logger zerolog.Logger) (*OllamaEmbeddingProvider, error) {
	if ollamaURL == "" {
		ollamaURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama URL: %w", err)
	}

	provider := &OllamaEmbeddingProvider{
		client: api.NewClient(parsedURL, httpClient),
		model:  model,
		logger: logger,
	}

	if err := provider.verifyModel(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify ollama model: %w", err)
	}

	logger.Info().
		Str("model", model).
		Str("url", ollamaURL).
		Msg("Ollama embedding provider initialized")

	return provider, nil
}

// Embed creates an embedding using Ollama
func (o *OllamaEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{
		Model: o.model,
		Input: text,
	})
	if err != nil {
		o.logger.Warn().
			Dur("duration", time.Since(start)).
			Str("text", text).
			Err(err).
			Msg("Ollama embedding failed")
		return nil, fmt.Errorf("ollama embedding error: %w", err)
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned from ollama")
	}

	raw := resp.Embeddings[0]
	embedding := make([]float32, len(raw))
	for i, v := range raw {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// Dimensions returns the embedding dimension for known models
func (o *OllamaEmbeddingProvider) Dimensions() int {
	switch o.model {
	case "nomic-embed-text", "nomic-embed-text:latest":
		return OllamaNomicDimension
	case "bge-m3", "bge-m3:latest", "mxbai-embed-large", "mxbai-embed-large:latest":
		return OllamaBGEM3Dimension
	case "all-minilm", "all-minilm:latest":
		return OllamaMiniLMDimension
	default:
		o.logger.Warn().
			Str("model", o.model).
			Int("assumed_dimensions", OllamaBGEM3Dimension).
			Msg("Unknown model, assuming 1024 dimensions")
		return OllamaBGEM3Dimension
	}
}

// ModelName returns the model name
func (o *OllamaEmbeddingProvider) ModelName() string {
	return o.model
}

// verifyModel checks if the model is available in Ollama
func (o *OllamaEmbeddingProvider) verifyModel(ctx context.Context) error {
	listResp, err := o.client.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list ollama models: %w", err)
	}

	for _, model := range listResp.Models {
		if model.Name == o.model || model.Name == o.model+":latest" {
			return nil
		}
	}

	return fmt.Errorf("model %s not found in ollama. Run: ollama pull %s", o.model, o.model)
}
