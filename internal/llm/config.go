package llm

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Defaults applied before options and environment overrides
const (
	DefaultProvider    = ProviderClaude
	DefaultModelID     = "anthropic.claude-3-sonnet-20240229-v1:0"
	DefaultRegion      = "ap-south-1"
	DefaultMaxTokens   = 2048
	DefaultTemperature = 0.0
)

// Environment variables understood by ModelConfigFromEnv
const (
	EnvProvider    = "MODEL_PROVIDER"
	EnvModelID     = "MODEL_ID"
	EnvRegion      = "AWS_REGION"
	EnvMaxTokens   = "MAX_TOKENS"
	EnvTemperature = "TEMPERATURE"
)

// ModelConfig describes which model to call and how. It is immutable once
// built; use NewModelConfig so that validation always runs.
type ModelConfig struct {
	Provider    Provider `yaml:"provider" toml:"provider" json:"provider"`
	ModelID     string   `yaml:"model_id" toml:"model_id" json:"model_id"`
	Region      string   `yaml:"region" toml:"region" json:"region"`
	MaxTokens   int      `yaml:"max_tokens" toml:"max_tokens" json:"max_tokens"`
	Temperature float64  `yaml:"temperature" toml:"temperature" json:"temperature"`
}

// ModelOption mutates a ModelConfig under construction
type ModelOption func(*ModelConfig)

// WithProvider selects the model family
func WithProvider(p Provider) ModelOption {
	return func(c *ModelConfig) { c.Provider = p }
}

// WithModelID sets the provider-specific model identifier
func WithModelID(id string) ModelOption {
	return func(c *ModelConfig) { c.ModelID = id }
}

// WithRegion sets the cloud region used by regional endpoints
func WithRegion(region string) ModelOption {
	return func(c *ModelConfig) { c.Region = region }
}

// WithMaxTokens sets the generation limit
func WithMaxTokens(n int) ModelOption {
	return func(c *ModelConfig) { c.MaxTokens = n }
}

// WithTemperature sets the sampling temperature
func WithTemperature(t float64) ModelOption {
	return func(c *ModelConfig) { c.Temperature = t }
}

// DefaultModelConfig returns the unvalidated defaults
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Provider:    DefaultProvider,
		ModelID:     DefaultModelID,
		Region:      DefaultRegion,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// NewModelConfig applies options over the defaults and validates the result
func NewModelConfig(opts ...ModelOption) (ModelConfig, error) {
	cfg := DefaultModelConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return ModelConfig{}, err
	}
	return cfg, nil
}

// With returns a validated copy of c with opts applied
func (c ModelConfig) With(opts ...ModelOption) (ModelConfig, error) {
	next := c
	for _, opt := range opts {
		opt(&next)
	}
	if err := next.Validate(); err != nil {
		return ModelConfig{}, err
	}
	return next, nil
}

// Validate checks every field and reports all problems at once
func (c ModelConfig) Validate() error {
	var problems []string

	if !c.Provider.Valid() {
		problems = append(problems, fmt.Sprintf("provider %q is not supported", c.Provider))
	}
	if strings.TrimSpace(c.ModelID) == "" {
		problems = append(problems, "model_id is required")
	}
	if c.MaxTokens <= 0 {
		problems = append(problems, fmt.Sprintf("max_tokens must be positive, got %d", c.MaxTokens))
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		problems = append(problems, fmt.Sprintf("temperature must be between 0 and 1, got %g", c.Temperature))
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

// ModelConfigFromEnv builds a config from the process environment
func ModelConfigFromEnv() (ModelConfig, error) {
	return ModelConfigFromLookup(DefaultModelConfig(), os.LookupEnv)
}

// ModelConfigFromLookup overlays values found through lookup on base.
// Values that cannot be parsed are reported as a ConfigurationError together
// with any validation problems.
func ModelConfigFromLookup(base ModelConfig, lookup func(string) (string, bool)) (ModelConfig, error) {
	cfg := base
	var problems []string

	if v, ok := lookup(EnvProvider); ok && v != "" {
		p, err := ParseProvider(v)
		if err != nil {
			problems = append(problems, err.Error())
		} else {
			cfg.Provider = p
		}
	}
	if v, ok := lookup(EnvModelID); ok && v != "" {
		cfg.ModelID = v
	}
	if v, ok := lookup(EnvRegion); ok && v != "" {
		cfg.Region = v
	}
	if v, ok := lookup(EnvMaxTokens); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s=%q is not an integer", EnvMaxTokens, v))
		} else {
			cfg.MaxTokens = n
		}
	}
	if v, ok := lookup(EnvTemperature); ok && v != "" {
		t, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s=%q is not a number", EnvTemperature, v))
		} else {
			cfg.Temperature = t
		}
	}

	if err := cfg.Validate(); err != nil {
		var cerr *ConfigurationError
		if errors.As(err, &cerr) {
			problems = append(problems, cerr.Problems...)
		}
	}
	if len(problems) > 0 {
		return ModelConfig{}, &ConfigurationError{Problems: problems}
	}
	return cfg, nil
}
