// Package usecase orchestrates model calls into the healthcare workflows the
// service offers: food analysis (store-backed and model-only), clinical
// recommendations, care-plan updates and consultation summaries.
//
// Every use case takes a JSON-like input map and returns a result map. A
// result never escapes as a Go error: pipeline failures come back as
// {"error": ..., "stage": ...} so callers always get a structured outcome.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/First008/vcare/internal/llm"
	"github.com/First008/vcare/internal/nutrition"
	"github.com/First008/vcare/internal/templates"
	"github.com/rs/zerolog"
)

// Use case names. Templates select their use case with the same values.
const (
	FoodAnalysisName  = "food_analysis"
	FoodEstimateName  = "food_estimate"
	ClinicalName      = "clinical_recommender"
	CarePlanName      = "careplan_recommender"
	SpeechToTextName  = "speech_to_text"
	speechTemplateKey = "speech_to_text"
)

// Failure stages reported in error results
const (
	StageValidation = "validation"
	StageInvocation = "invocation"
	StageStreaming  = "streaming"
	StageParsing    = "response_parsing"
	StageFood       = "food_analysis"
)

var (
	// ErrUnknownUseCase is returned by the registry for unregistered names
	ErrUnknownUseCase = errors.New("unknown use case")
	// ErrStreamingUnsupported is returned when a use case cannot stream
	ErrStreamingUnsupported = errors.New("use case does not support streaming")
)

// UseCase is one end-to-end workflow
type UseCase interface {
	Name() string
	Run(ctx context.Context, input map[string]any) map[string]any
}

// Streamer is implemented by use cases that can stream model output
type Streamer interface {
	RunStream(ctx context.Context, input map[string]any, onChunk func(string)) map[string]any
}

// ClientFactory builds a model client for a template's model settings
type ClientFactory func(cfg llm.ModelConfig) (llm.Invoker, error)

// Deps are the collaborators shared by every use case
type Deps struct {
	Client              llm.Invoker
	Clients             ClientFactory   // optional; without it templates reuse Client
	Templates           templates.Store // optional
	Nutrients           nutrition.Store // optional; without it food analysis estimates everything
	SimilarityThreshold float64
	Logger              zerolog.Logger
}

// ErrorResult builds the failure shape returned by every use case
func ErrorResult(err error, stage string) map[string]any {
	return map[string]any{"error": err.Error(), "stage": stage}
}

// IsError reports whether result is a failure result
func IsError(result map[string]any) bool {
	_, ok := result["error"]
	return ok
}

// Registry maps use case names to implementations
type Registry struct {
	mu       sync.RWMutex
	useCases map[string]UseCase
	clients  *clientPool
	logger   zerolog.Logger
}

// NewRegistry registers every built-in use case over deps
func NewRegistry(deps Deps) (*Registry, error) {
	if deps.Client == nil {
		return nil, fmt.Errorf("model client is required")
	}

	r := &Registry{
		useCases: make(map[string]UseCase),
		logger:   deps.Logger,
	}
	if deps.Clients != nil {
		r.clients = newClientPool(deps.Clients)
	}

	b := func(name, defaultTemplate string) base {
		return base{
			name:            name,
			client:          deps.Client,
			templates:       deps.Templates,
			clients:         r.clients,
			defaultTemplate: defaultTemplate,
			logger:          deps.Logger.With().Str("use_case", name).Logger(),
		}
	}

	r.Register(NewFoodAnalysis(b(FoodAnalysisName, ""), deps.Nutrients, deps.SimilarityThreshold))
	r.Register(NewFoodEstimate(b(FoodEstimateName, "")))
	r.Register(NewClinical(b(ClinicalName, "")))
	r.Register(NewCarePlan(b(CarePlanName, "")))
	r.Register(NewSpeechToText(b(SpeechToTextName, speechTemplateKey)))

	return r, nil
}

// Register adds or replaces a use case
func (r *Registry) Register(u UseCase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.useCases[u.Name()] = u
}

// Get returns the named use case
func (r *Registry) Get(name string) (UseCase, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.useCases[name]
	return u, ok
}

// Names lists registered use cases in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.useCases))
	for name := range r.useCases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the named use case
func (r *Registry) Run(ctx context.Context, name string, input map[string]any) (map[string]any, error) {
	u, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUseCase, name)
	}
	return u.Run(ctx, input), nil
}

// Stream executes the named use case, passing each text chunk to onChunk
func (r *Registry) Stream(ctx context.Context, name string, input map[string]any, onChunk func(string)) (map[string]any, error) {
	u, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUseCase, name)
	}
	s, ok := u.(Streamer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStreamingUnsupported, name)
	}
	return s.RunStream(ctx, input, onChunk), nil
}

// Close releases the clients created for templates
func (r *Registry) Close() error {
	if r.clients == nil {
		return nil
	}
	return r.clients.Close()
}

// clientPool reuses one client per distinct model configuration
type clientPool struct {
	factory ClientFactory

	mu      sync.Mutex
	clients map[llm.ModelConfig]llm.Invoker
}

func newClientPool(factory ClientFactory) *clientPool {
	return &clientPool{factory: factory, clients: make(map[llm.ModelConfig]llm.Invoker)}
}

func (p *clientPool) get(cfg llm.ModelConfig) (llm.Invoker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[cfg]; ok {
		return c, nil
	}
	c, err := p.factory(cfg)
	if err != nil {
		return nil, err
	}
	p.clients[cfg] = c
	return c, nil
}

func (p *clientPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for cfg, c := range p.clients {
		if closer, ok := c.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		delete(p.clients, cfg)
	}
	return errors.Join(errs...)
}
