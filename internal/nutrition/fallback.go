package nutrition

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/First008/vcare/internal/llm"
	"github.com/rs/zerolog"
)

// DefaultSimilarityThreshold is the minimum score a similar match needs
const DefaultSimilarityThreshold = 0.4

// Tier records which stage produced a profile
type Tier string

const (
	TierExact    Tier = "exact"
	TierSimilar  Tier = "similar"
	TierFallback Tier = "llm-fallback"
)

// Match is one similarity search hit
type Match struct {
	Name    string   `json:"name"`
	Profile *Profile `json:"profile,omitempty"`
	Score   float64  `json:"score"`
}

// Store is the nutrient catalog the resolver reads. Profiles are per 100 g.
// LookupExact returns nil, nil when the ingredient is unknown.
type Store interface {
	LookupExact(ctx context.Context, name string) (*Profile, error)
	SearchSimilar(ctx context.Context, name string, k int, threshold float64) ([]Match, error)
}

// Resolution is the profile chosen for one ingredient
type Resolution struct {
	Ingredient string
	Profile    Profile
	Tier       Tier
	Substitute string
	Score      float64
	Err        error
}

// FallbackResolutionError records a failed model estimate. The ingredient
// still resolves, with a zero profile.
type FallbackResolutionError struct {
	Ingredient string
	Err        error
}

func (e *FallbackResolutionError) Error() string {
	return fmt.Sprintf("estimate nutrients for %q: %v", e.Ingredient, e.Err)
}

func (e *FallbackResolutionError) Unwrap() error { return e.Err }

// ErrNoNutrientsFound is wrapped when a model answer names no nutrient
var ErrNoNutrientsFound = errors.New("no nutrient values in model response")

// Resolver resolves ingredient profiles through the exact, similar and
// model-estimate tiers. A Resolver belongs to one analysis run: its estimate
// cache and fallback list are never shared between runs.
type Resolver struct {
	store     Store
	model     llm.Invoker
	threshold float64
	logger    zerolog.Logger

	mu        sync.Mutex
	estimates map[string]Resolution
	fallbacks []string
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithSimilarityThreshold overrides DefaultSimilarityThreshold
func WithSimilarityThreshold(t float64) ResolverOption {
	return func(r *Resolver) {
		if t > 0 {
			r.threshold = t
		}
	}
}

// NewResolver creates a resolver for one run. store may be nil, in which case
// every ingredient goes to the model.
func NewResolver(store Store, model llm.Invoker, logger zerolog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:     store,
		model:     model,
		threshold: DefaultSimilarityThreshold,
		logger:    logger,
		estimates: make(map[string]Resolution),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the first non-empty profile found for name, trying each
// tier in order
func (r *Resolver) Resolve(ctx context.Context, name string) Resolution {
	name = NormalizeName(name)
	log := r.logger.With().Str("ingredient", name).Logger()

	if r.store != nil {
		profile, err := r.store.LookupExact(ctx, name)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("Exact nutrient lookup failed")
		case profile != nil && !profile.IsZero():
			log.Debug().Str("tier", string(TierExact)).Msg("Ingredient resolved")
			return Resolution{Ingredient: name, Profile: *profile, Tier: TierExact, Score: 1}
		}

		matches, err := r.store.SearchSimilar(ctx, name, 1, r.threshold)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("Similar nutrient search failed")
		case len(matches) > 0 && matches[0].Profile != nil && !matches[0].Profile.IsZero() && matches[0].Score >= r.threshold:
			top := matches[0]
			log.Info().
				Str("tier", string(TierSimilar)).
				Str("substitute", top.Name).
				Float64("score", top.Score).
				Msg("Using similar ingredient")
			return Resolution{
				Ingredient: name,
				Profile:    *top.Profile,
				Tier:       TierSimilar,
				Substitute: top.Name,
				Score:      top.Score,
			}
		}
	}

	return r.estimate(ctx, name, log)
}

func (r *Resolver) estimate(ctx context.Context, name string, log zerolog.Logger) Resolution {
	r.mu.Lock()
	if res, ok := r.estimates[name]; ok {
		r.mu.Unlock()
		return res
	}
	r.mu.Unlock()

	res := Resolution{Ingredient: name, Tier: TierFallback}
	if r.model == nil {
		res.Err = &FallbackResolutionError{Ingredient: name, Err: errors.New("no model configured")}
	} else if resp, err := r.model.Invoke(ctx, EstimatePrompt(name)); err != nil {
		res.Err = &FallbackResolutionError{Ingredient: name, Err: err}
	} else {
		profile, found := ParseEstimate(resp.Text)
		res.Profile = profile
		if len(found) == 0 {
			res.Err = &FallbackResolutionError{Ingredient: name, Err: ErrNoNutrientsFound}
		}
	}

	if res.Err != nil {
		log.Error().Err(res.Err).Msg("Nutrient estimate failed, using zero profile")
	} else {
		log.Warn().Str("tier", string(TierFallback)).Msg("Used model estimate for ingredient")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.estimates[name]; ok {
		return existing
	}
	r.estimates[name] = res
	r.fallbacks = append(r.fallbacks, name)
	return res
}

// ResolveAll resolves each ingredient in order
func (r *Resolver) ResolveAll(ctx context.Context, ingredients []Ingredient) []Resolution {
	out := make([]Resolution, len(ingredients))
	for i, ing := range ingredients {
		out[i] = r.Resolve(ctx, ing.Name)
	}
	return out
}

// Fallbacks lists the ingredients that reached the model tier, in first-seen order
func (r *Resolver) Fallbacks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fallbacks...)
}
