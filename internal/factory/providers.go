// Package factory builds the runtime dependencies described by a
// config.Config: model endpoints and clients, nutrient and template stores,
// and the use case registry that ties them together.
package factory

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/First008/vcare/internal/config"
	"github.com/First008/vcare/internal/llm"
	"github.com/First008/vcare/internal/templates"
	"github.com/First008/vcare/internal/vectorstore"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaioption "github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

const endpointTimeout = 2 * time.Minute

// NewEndpoint creates the model transport selected by cfg.Endpoint. region
// only matters to Bedrock.
func NewEndpoint(ctx context.Context, cfg config.EndpointConfig, region string, logger zerolog.Logger) (llm.Endpoint, error) {
	switch cfg.Kind {
	case config.EndpointBedrock, "":
		return llm.NewBedrockEndpoint(ctx, region, logger)

	case config.EndpointAnthropic:
		var opts []anthropicoption.RequestOption
		if cfg.URL != "" {
			opts = append(opts, anthropicoption.WithBaseURL(cfg.URL))
		}
		return llm.NewAnthropicEndpoint(cfg.APIKey, logger, opts...)

	case config.EndpointHTTP:
		return llm.NewHTTPEndpoint(cfg.URL, cfg.APIKey, &http.Client{Timeout: endpointTimeout}, logger)

	default:
		return nil, fmt.Errorf("unsupported endpoint kind: %s (supported: bedrock, anthropic, http)", cfg.Kind)
	}
}

// NewEmbeddingProvider creates the embedding provider for the qdrant
// nutrient backend. An empty provider is inferred from the other fields.
func NewEmbeddingProvider(ctx context.Context, cfg config.EmbeddingConfig, logger zerolog.Logger) (vectorstore.EmbeddingProvider, error) {
	providerType := cfg.Provider
	if providerType == "" {
		switch {
		case cfg.APIKey != "":
			providerType = "openai"
		case cfg.URL != "" || cfg.Model != "":
			providerType = "ollama"
		default:
			return nil, fmt.Errorf("no embedding provider configured")
		}
	}

	switch providerType {
	case "ollama":
		return newOllamaProvider(ctx, cfg, logger)
	case "openai":
		return newOpenAIProvider(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (supported: ollama, openai)", providerType)
	}
}

func newOllamaProvider(ctx context.Context, cfg config.EmbeddingConfig, logger zerolog.Logger) (vectorstore.EmbeddingProvider, error) {
	provider, err := vectorstore.NewOllamaEmbeddingProvider(ctx, cfg.URL, cfg.Model, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("create Ollama embedding provider: %w", err)
	}

	logger.Info().
		Str("provider", "ollama").
		Str("model", provider.ModelName()).
		Msg("Created Ollama embedding provider")

	return provider, nil
}

func newOpenAIProvider(cfg config.EmbeddingConfig, logger zerolog.Logger) (vectorstore.EmbeddingProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key required for openai embedding provider")
	}

	var opts []openaioption.RequestOption
	if cfg.URL != "" {
		opts = append(opts, openaioption.WithBaseURL(cfg.URL))
	}
	provider, err := vectorstore.NewOpenAIEmbeddingProvider(cfg.APIKey, cfg.Model, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OpenAI embedding provider: %w", err)
	}

	logger.Info().
		Str("provider", "openai").
		Str("model", provider.ModelName()).
		Msg("Created OpenAI embedding provider")

	return provider, nil
}

// NewNutrientStore opens the configured nutrient catalog. It returns nil
// without error when no backend is configured.
func NewNutrientStore(ctx context.Context, cfg config.NutrientsConfig, logger zerolog.Logger) (vectorstore.NutrientStore, error) {
	switch cfg.Backend {
	case "":
		logger.Warn().Msg("No nutrient store configured, every ingredient will be estimated by the model")
		return nil, nil

	case config.BackendSQLite:
		return vectorstore.NewSQLiteStore(ctx, cfg.SQLitePath, logger)

	case config.BackendQdrant:
		embedder, err := NewEmbeddingProvider(ctx, cfg.Embedding, logger)
		if err != nil {
			return nil, err
		}
		return vectorstore.NewQdrantStore(ctx, cfg.QdrantURL, cfg.Collection, embedder, logger)

	default:
		return nil, fmt.Errorf("unsupported nutrient backend: %s (supported: qdrant, sqlite)", cfg.Backend)
	}
}

// NewTemplateStore opens the configured template store
func NewTemplateStore(ctx context.Context, cfg config.TemplatesConfig, logger zerolog.Logger) (templates.Store, error) {
	switch cfg.Backend {
	case config.TemplatesMemory:
		return templates.NewMemoryStore(), nil
	case config.TemplatesFile, "":
		return templates.NewFileStore(cfg.Path, logger)
	case config.TemplatesSQLite:
		return templates.NewSQLiteStore(ctx, cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unsupported template backend: %s (supported: memory, file, sqlite)", cfg.Backend)
	}
}
