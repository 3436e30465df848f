package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrClientClosed is returned by calls made after Close
var ErrClientClosed = errors.New("model client is closed")

// Invoker is what use cases need from a model client
type Invoker interface {
	Invoke(ctx context.Context, prompt string, opts ...InvokeOption) (Response, error)
	InvokeStream(ctx context.Context, prompt string, opts ...InvokeOption) (*Stream, error)
	Config() ModelConfig
}

// Client invokes one configured model through an Endpoint.
//
// A Client is safe for concurrent use. The response cache it holds is
// usually shared with other clients; the stream registry is private.
type Client struct {
	cfg      ModelConfig
	endpoint Endpoint
	parser   *ResponseParser
	cache    *ResponseCache
	retrier  *Retrier
	metrics  Metrics
	logger   zerolog.Logger
	newID    func() string

	mu      sync.Mutex
	streams map[string]*Stream
	closed  bool
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithCache shares a response cache with the client
func WithCache(cache *ResponseCache) ClientOption {
	return func(c *Client) { c.cache = cache }
}

// WithRetrier wraps synchronous invocations in r
func WithRetrier(r *Retrier) ClientOption {
	return func(c *Client) { c.retrier = r }
}

// WithMetrics routes instrumentation to m
func WithMetrics(m Metrics) ClientOption {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithIDGenerator overrides request id generation (useful for tests)
func WithIDGenerator(gen func() string) ClientOption {
	return func(c *Client) { c.newID = gen }
}

// NewClient creates a client for cfg. The configuration is validated again
// so that hand-built values cannot bypass the checks in NewModelConfig.
func NewClient(cfg ModelConfig, endpoint Endpoint, logger zerolog.Logger, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if endpoint == nil {
		return nil, fmt.Errorf("model endpoint is required")
	}

	c := &Client{
		cfg:      cfg,
		endpoint: endpoint,
		parser:   NewResponseParser(cfg.Provider, logger),
		metrics:  NopMetrics{},
		logger:   logger.With().Str("model", cfg.ModelID).Str("endpoint", endpoint.Name()).Logger(),
		newID:    func() string { return uuid.NewString() },
		streams:  make(map[string]*Stream),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger.Info().
		Str("provider", cfg.Provider.String()).
		Str("region", cfg.Region).
		Bool("cache", c.cache != nil).
		Msg("Model client initialized")

	return c, nil
}

// Config returns the client's model configuration
func (c *Client) Config() ModelConfig {
	return c.cfg
}

type invokeOptions struct {
	image    string
	useCache bool
}

// InvokeOption adjusts a single invocation
type InvokeOption func(*invokeOptions)

// WithImage attaches base64 encoded JPEG data for vision-capable models
func WithImage(image string) InvokeOption {
	return func(o *invokeOptions) { o.image = image }
}

// WithoutCache bypasses the response cache for both lookup and store
func WithoutCache() InvokeOption {
	return func(o *invokeOptions) { o.useCache = false }
}

func collectOptions(opts []InvokeOption) invokeOptions {
	o := invokeOptions{useCache: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Invoke sends prompt to the model and returns the normalized response.
// Cached responses are returned without touching the endpoint. Retried
// attempts count as one request in the status counter and the gauge.
func (c *Client) Invoke(ctx context.Context, prompt string, opts ...InvokeOption) (Response, error) {
	if c.isClosed() {
		return Response{}, ErrClientClosed
	}
	o := collectOptions(opts)

	c.metrics.RequestStarted()
	defer c.metrics.RequestFinished()

	var (
		resp    Response
		cached  bool
		latency time.Duration
	)
	call := func(ctx context.Context) error {
		var err error
		resp, cached, latency, err = c.invokeOnce(ctx, prompt, o)
		return err
	}

	var err error
	if c.retrier == nil {
		err = call(ctx)
	} else {
		err = c.retrier.Do(ctx, "invoke "+c.cfg.ModelID, call)
	}

	switch {
	case err != nil:
		c.metrics.RequestCompleted(c.cfg.ModelID, StatusFailed, latency)
		return Response{}, err
	case !cached:
		c.metrics.RequestCompleted(c.cfg.ModelID, StatusSuccess, latency)
	}
	return resp, nil
}

// invokeOnce performs a single attempt. It reports whether the response
// came from the cache and how long the endpoint took.
func (c *Client) invokeOnce(ctx context.Context, prompt string, o invokeOptions) (Response, bool, time.Duration, error) {
	useCache := o.useCache && c.cache != nil
	var key string
	if useCache {
		key = CacheKey(prompt, c.cfg.ModelID, c.cfg.Temperature, c.cfg.MaxTokens, o.image)
		if resp, ok := c.cache.Get(key); ok {
			c.metrics.CacheHit(c.cfg.ModelID)
			c.logger.Debug().Str("cache_key", key).Msg("Response served from cache")
			return resp, true, 0, nil
		}
		c.metrics.CacheMiss(c.cfg.ModelID)
	}

	requestID := c.newID()
	log := c.logger.With().Str("request_id", requestID).Logger()

	body, err := FormatRequest(c.cfg, prompt, o.image)
	if err != nil {
		log.Error().Err(err).Msg("Failed to format request")
		return Response{}, false, 0, err
	}

	c.metrics.TokensUsed(c.cfg.ModelID, TokensInput, EstimateTokens(prompt))
	log.Debug().
		Int("prompt_length", len(prompt)).
		Bool("image", o.image != "").
		Msg("Invoking model")

	start := time.Now()
	raw, err := c.endpoint.Invoke(ctx, c.cfg.ModelID, body)
	latency := time.Since(start)
	if err == nil && (raw.StatusCode < 200 || raw.StatusCode > 299) {
		err = &StatusError{StatusCode: raw.StatusCode, Body: string(raw.Body)}
	}
	if err != nil {
		err = c.classify(err)
		log.Error().Err(err).Dur("latency", latency).Msg("Model invocation failed")
		return Response{}, false, latency, err
	}

	resp, err := c.parser.Parse(raw.Body)
	if err != nil {
		log.Error().Err(err).Msg("Failed to parse model response")
		return Response{}, false, latency, err
	}

	c.metrics.TokensUsed(c.cfg.ModelID, TokensOutput, EstimateTokens(resp.Text))
	if useCache {
		c.cache.Put(key, resp)
	}

	log.Debug().
		Dur("latency", latency).
		Int("response_length", len(resp.Text)).
		Str("stop_reason", resp.StopReason).
		Msg("Model invocation completed")

	return resp, false, latency, nil
}

// classify turns endpoint failures into the client's error taxonomy
func (c *Client) classify(err error) error {
	if errors.Is(err, ErrRequestFormatting) || errors.Is(err, ErrResponseParsing) {
		return err
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusTooManyRequests {
			return &RateLimitError{ModelID: c.cfg.ModelID, RetryAfter: statusErr.RetryAfter, Err: err}
		}
		return &InvocationError{
			ModelID:    c.cfg.ModelID,
			StatusCode: statusErr.StatusCode,
			Body:       statusErr.Body,
			Err:        err,
		}
	}

	return &InvocationError{ModelID: c.cfg.ModelID, Err: err}
}

// InvokeStream opens a streaming invocation. The cache is never consulted.
// The caller must exhaust or Close the returned stream.
func (c *Client) InvokeStream(ctx context.Context, prompt string, opts ...InvokeOption) (*Stream, error) {
	o := collectOptions(opts)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.mu.Unlock()

	c.metrics.RequestStarted()

	body, err := FormatRequest(c.cfg, prompt, o.image)
	if err != nil {
		c.metrics.RequestCompleted(c.cfg.ModelID, StatusFailed, 0)
		c.metrics.RequestFinished()
		return nil, err
	}
	c.metrics.TokensUsed(c.cfg.ModelID, TokensInput, EstimateTokens(prompt))

	start := time.Now()
	events, err := c.endpoint.InvokeStream(ctx, c.cfg.ModelID, body)
	if err != nil {
		err = c.classify(err)
		c.metrics.RequestCompleted(c.cfg.ModelID, StatusFailed, time.Since(start))
		c.metrics.RequestFinished()
		c.logger.Error().Err(err).Msg("Failed to open model stream")
		return nil, err
	}

	stream := &Stream{
		id:      "stream_" + c.newID(),
		client:  c,
		events:  events,
		started: start,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = events.Close()
		c.metrics.RequestCompleted(c.cfg.ModelID, StatusCancelled, time.Since(start))
		c.metrics.RequestFinished()
		return nil, ErrClientClosed
	}
	c.streams[stream.id] = stream
	c.mu.Unlock()

	c.logger.Debug().
		Str("stream_id", stream.id).
		Int("prompt_length", len(prompt)).
		Msg("Model stream opened")

	return stream, nil
}

// ActiveStreams returns the ids of streams that have not finished yet
func (c *Client) ActiveStreams() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.streams))
	for id := range c.streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Client) deregister(id string) {
	c.mu.Lock()
	delete(c.streams, id)
	c.mu.Unlock()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close force-closes every open stream. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	open := make([]*Stream, 0, len(c.streams))
	for _, s := range c.streams {
		open = append(open, s)
	}
	c.mu.Unlock()

	for _, s := range open {
		c.logger.Warn().Str("stream_id", s.id).Msg("Closing active stream during shutdown")
		s.finish(StatusCancelled, ErrClientClosed)
	}

	c.logger.Info().Int("closed_streams", len(open)).Msg("Model client closed")
	return nil
}
