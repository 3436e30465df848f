package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/First008/vcare/internal/config"
	"github.com/First008/vcare/internal/llm"
	"github.com/First008/vcare/internal/nutrition"
	"github.com/First008/vcare/internal/templates"
	"github.com/First008/vcare/internal/usecase"
	"github.com/First008/vcare/internal/vectorstore"
	"github.com/First008/vcare/pkg/telemetry"
	"github.com/rs/zerolog"
)

// Services is everything a vcare process needs, built once from a Config
type Services struct {
	Config    config.Config
	Client    *llm.Client
	Registry  *usecase.Registry
	Templates templates.Store
	Nutrients vectorstore.NutrientStore // nil when no backend is configured
	Metrics   *telemetry.Metrics
	Usage     *telemetry.UsageTracker

	clients *ClientBuilder
	closers []io.Closer
	once    sync.Once
	err     error
}

// Build wires the configured endpoint, stores and use cases. On error every
// resource opened so far is released.
func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Services, error) {
	s := &Services{Config: cfg}
	s.Usage = telemetry.NewUsageTracker(cfg.Usage.DailyMaxUSD, cfg.Usage.AlertThresholdUSD, logger)
	s.Metrics = telemetry.NewMetrics(s.Usage)

	fail := func(err error) (*Services, error) {
		_ = s.Close()
		return nil, err
	}

	builder, err := NewClientBuilder(ctx, cfg, s.Metrics, logger)
	if err != nil {
		return fail(err)
	}
	s.clients = builder

	s.Client, err = builder.Client(cfg.Model)
	if err != nil {
		return fail(err)
	}

	s.Templates, err = NewTemplateStore(ctx, cfg.Templates, logger)
	if err != nil {
		return fail(fmt.Errorf("open template store: %w", err))
	}
	if c, ok := s.Templates.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}

	s.Nutrients, err = NewNutrientStore(ctx, cfg.Nutrients, logger)
	if err != nil {
		return fail(fmt.Errorf("open nutrient store: %w", err))
	}
	var nutrients nutrition.Store
	if s.Nutrients != nil {
		nutrients = s.Nutrients
		s.closers = append(s.closers, s.Nutrients)
	}

	s.Registry, err = usecase.NewRegistry(usecase.Deps{
		Client:              s.Client,
		Clients:             builder.Invoker,
		Templates:           s.Templates,
		Nutrients:           nutrients,
		SimilarityThreshold: cfg.Nutrients.SimilarityThreshold,
		Logger:              logger,
	})
	if err != nil {
		return fail(err)
	}

	logger.Info().
		Str("endpoint", cfg.Endpoint.Kind).
		Str("model", cfg.Model.ModelID).
		Str("templates", cfg.Templates.Backend).
		Str("nutrients", cfg.Nutrients.Backend).
		Strs("use_cases", s.Registry.Names()).
		Msg("Services initialized")

	return s, nil
}

// Close releases template clients, the default client and the stores. It is
// safe to call more than once.
func (s *Services) Close() error {
	s.once.Do(func() {
		var errs []error
		if s.Registry != nil {
			errs = append(errs, s.Registry.Close())
		}
		if s.Client != nil {
			errs = append(errs, s.Client.Close())
		}
		for i := len(s.closers) - 1; i >= 0; i-- {
			errs = append(errs, s.closers[i].Close())
		}
		s.err = errors.Join(errs...)
	})
	return s.err
}

// ClientBuilder creates model clients that share one response cache, retrier
// and metrics recorder. Bedrock endpoints are created per region.
type ClientBuilder struct {
	ctx      context.Context
	endpoint config.EndpointConfig
	cache    *llm.ResponseCache
	retrier  *llm.Retrier
	metrics  llm.Metrics
	logger   zerolog.Logger

	mu        sync.Mutex
	endpoints map[string]llm.Endpoint
}

// NewClientBuilder prepares the shared client collaborators from cfg.
// metrics may be nil.
func NewClientBuilder(ctx context.Context, cfg config.Config, metrics llm.Metrics, logger zerolog.Logger) (*ClientBuilder, error) {
	cache, err := llm.NewResponseCache(cfg.Cache.MaxEntries)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = llm.NopMetrics{}
	}
	return &ClientBuilder{
		ctx:      ctx,
		endpoint: cfg.Endpoint,
		cache:    cache,
		retrier: llm.NewRetrier(logger,
			llm.WithRetryMaxAttempts(cfg.Retry.MaxAttempts),
			llm.WithRetryBackoff(cfg.Retry.BaseDelay(), cfg.Retry.MaxDelay()),
		),
		metrics:   metrics,
		logger:    logger,
		endpoints: make(map[string]llm.Endpoint),
	}, nil
}

// Cache returns the response cache shared by every built client
func (b *ClientBuilder) Cache() *llm.ResponseCache {
	return b.cache
}

// Client builds a client for model
func (b *ClientBuilder) Client(model llm.ModelConfig) (*llm.Client, error) {
	endpoint, err := b.endpointFor(model.Region)
	if err != nil {
		return nil, err
	}
	return llm.NewClient(model, endpoint, b.logger,
		llm.WithCache(b.cache),
		llm.WithRetrier(b.retrier),
		llm.WithMetrics(b.metrics),
	)
}

// Invoker adapts Client to usecase.ClientFactory
func (b *ClientBuilder) Invoker(model llm.ModelConfig) (llm.Invoker, error) {
	c, err := b.Client(model)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (b *ClientBuilder) endpointFor(region string) (llm.Endpoint, error) {
	key := ""
	if b.endpoint.Kind == config.EndpointBedrock || b.endpoint.Kind == "" {
		key = region
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.endpoints[key]; ok {
		return e, nil
	}
	e, err := NewEndpoint(b.ctx, b.endpoint, region, b.logger)
	if err != nil {
		return nil, fmt.Errorf("create %s endpoint: %w", b.endpoint.Kind, err)
	}
	b.endpoints[key] = e
	return e, nil
}
