// Package config loads the service configuration from YAML or TOML files.
//
// Values may reference environment variables with ${VAR}; the model section
// is then overlaid with MODEL_PROVIDER, MODEL_ID, AWS_REGION, MAX_TOKENS and
// TEMPERATURE, and API keys fall back to their usual environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/First008/vcare/internal/llm"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Endpoint kinds
const (
	EndpointBedrock   = "bedrock"
	EndpointAnthropic = "anthropic"
	EndpointHTTP      = "http"
)

// Nutrient store backends
const (
	BackendQdrant = "qdrant"
	BackendSQLite = "sqlite"
)

// Template store backends
const (
	TemplatesMemory = "memory"
	TemplatesFile   = "file"
	TemplatesSQLite = "sqlite"
)

const (
	defaultPort          = 8080
	defaultTemplatesFile = "templates.json"
	defaultThreshold     = 0.4
)

// Config is the complete service configuration
type Config struct {
	Model     llm.ModelConfig `yaml:"model" toml:"model"`
	Endpoint  EndpointConfig  `yaml:"endpoint" toml:"endpoint"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	Retry     RetryConfig     `yaml:"retry" toml:"retry"`
	Nutrients NutrientsConfig `yaml:"nutrients" toml:"nutrients"`
	Templates TemplatesConfig `yaml:"templates" toml:"templates"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Usage     UsageConfig     `yaml:"usage" toml:"usage"`
}

// EndpointConfig selects the transport used to reach the model
type EndpointConfig struct {
	Kind   string `yaml:"kind" toml:"kind"` // "bedrock", "anthropic" or "http"
	URL    string `yaml:"url,omitempty" toml:"url,omitempty"`
	APIKey string `yaml:"api_key,omitempty" toml:"api_key,omitempty"`
}

// CacheConfig bounds the shared response cache
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries" toml:"max_entries"`
}

// RetryConfig controls the retrier wrapped around synchronous invocations
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts" toml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms" toml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms" toml:"max_delay_ms"`
}

// BaseDelay returns the first backoff step
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the backoff cap
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

// NutrientsConfig describes the nutrient store and its embeddings
type NutrientsConfig struct {
	Backend             string          `yaml:"backend" toml:"backend"` // "qdrant" or "sqlite"; empty disables store-backed analysis
	QdrantURL           string          `yaml:"qdrant_url,omitempty" toml:"qdrant_url,omitempty"`
	Collection          string          `yaml:"collection,omitempty" toml:"collection,omitempty"`
	SQLitePath          string          `yaml:"sqlite_path,omitempty" toml:"sqlite_path,omitempty"`
	SimilarityThreshold float64         `yaml:"similarity_threshold" toml:"similarity_threshold"`
	Embedding           EmbeddingConfig `yaml:"embedding" toml:"embedding"`
}

// EmbeddingConfig configures the embedding provider used by the qdrant backend
type EmbeddingConfig struct {
	Provider string `yaml:"provider" toml:"provider"` // "openai" or "ollama"
	Model    string `yaml:"model,omitempty" toml:"model,omitempty"`
	URL      string `yaml:"url,omitempty" toml:"url,omitempty"`
	APIKey   string `yaml:"api_key,omitempty" toml:"api_key,omitempty"`
}

// TemplatesConfig selects where prompt templates are kept
type TemplatesConfig struct {
	Backend string `yaml:"backend" toml:"backend"` // "memory", "file" or "sqlite"
	Path    string `yaml:"path,omitempty" toml:"path,omitempty"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port      int    `yaml:"port" toml:"port"`
	JWTSecret string `yaml:"jwt_secret,omitempty" toml:"jwt_secret,omitempty"`
}

// UsageConfig defines the spend budget enforced by the API
type UsageConfig struct {
	DailyMaxUSD       float64 `yaml:"daily_max_usd" toml:"daily_max_usd"`
	AlertThresholdUSD float64 `yaml:"alert_threshold_usd" toml:"alert_threshold_usd"`
}

// ConfigurationError lists every invalid field found during loading
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid config: %s", strings.Join(e.Problems, "; "))
}

func (e *ConfigurationError) Is(target error) bool {
	return target == llm.ErrConfiguration
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Model:    llm.DefaultModelConfig(),
		Endpoint: EndpointConfig{Kind: EndpointBedrock},
		Cache:    CacheConfig{MaxEntries: llm.DefaultCacheSize},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelayMS: 1000,
			MaxDelayMS:  10000,
		},
		Nutrients: NutrientsConfig{SimilarityThreshold: defaultThreshold},
		Templates: TemplatesConfig{Backend: TemplatesFile, Path: defaultTemplatesFile},
		Server:    ServerConfig{Port: defaultPort},
	}
}

// Load reads the file at path using the process environment. An empty path
// yields the defaults with the environment overlay applied.
func Load(path string) (*Config, error) {
	return LoadWithLookup(path, os.LookupEnv)
}

// LoadWithLookup is Load with an explicit environment lookup
func LoadWithLookup(path string, lookup func(string) (string, bool)) (*Config, error) {
	if path == "" {
		cfg := Default()
		if err := cfg.finish(lookup); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, formatFromPath(path), lookup)
}

// Parse decodes data in the given format ("yaml" or "toml")
func Parse(data []byte, format string, lookup func(string) (string, bool)) (*Config, error) {
	expanded := os.Expand(string(data), func(key string) string {
		v, _ := lookup(key)
		return v
	})

	cfg := Default()
	switch format {
	case "toml":
		if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case "yaml", "":
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s (use yaml or toml)", format)
	}

	if err := cfg.finish(lookup); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	default:
		return "yaml"
	}
}

// finish applies the environment overlay, fills derived defaults and validates
func (c *Config) finish(lookup func(string) (string, bool)) error {
	var problems []string

	model, err := llm.ModelConfigFromLookup(c.Model, lookup)
	if err != nil {
		var cerr *llm.ConfigurationError
		if errors.As(err, &cerr) {
			problems = append(problems, cerr.Problems...)
		} else {
			problems = append(problems, err.Error())
		}
	} else {
		c.Model = model
	}

	env := func(key string) string {
		v, _ := lookup(key)
		return v
	}
	if c.Endpoint.APIKey == "" && c.Endpoint.Kind == EndpointAnthropic {
		c.Endpoint.APIKey = env("ANTHROPIC_API_KEY")
	}
	if c.Nutrients.Embedding.APIKey == "" && c.Nutrients.Embedding.Provider == "openai" {
		c.Nutrients.Embedding.APIKey = env("OPENAI_API_KEY")
	}
	if c.Nutrients.QdrantURL == "" {
		c.Nutrients.QdrantURL = env("QDRANT_URL")
	}
	if c.Server.JWTSecret == "" {
		c.Server.JWTSecret = env("VCARE_JWT_SECRET")
	}

	c.applyDefaults()
	problems = append(problems, c.validate()...)

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Endpoint.Kind == "" {
		c.Endpoint.Kind = EndpointBedrock
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = llm.DefaultCacheSize
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Templates.Backend == "" {
		c.Templates.Backend = TemplatesFile
	}
	if c.Templates.Path == "" && c.Templates.Backend == TemplatesFile {
		c.Templates.Path = defaultTemplatesFile
	}
	if c.Nutrients.Backend == "" {
		switch {
		case c.Nutrients.SQLitePath != "":
			c.Nutrients.Backend = BackendSQLite
		case c.Nutrients.QdrantURL != "":
			c.Nutrients.Backend = BackendQdrant
		}
	}
	if c.Usage.AlertThresholdUSD == 0 {
		c.Usage.AlertThresholdUSD = c.Usage.DailyMaxUSD * 0.8
	}
}

// validate returns every problem instead of stopping at the first one
func (c *Config) validate() []string {
	var problems []string

	switch c.Endpoint.Kind {
	case EndpointBedrock:
	case EndpointAnthropic:
		if c.Endpoint.APIKey == "" {
			problems = append(problems, "endpoint.api_key is required for the anthropic endpoint (set it or ANTHROPIC_API_KEY)")
		}
	case EndpointHTTP:
		if c.Endpoint.URL == "" {
			problems = append(problems, "endpoint.url is required for the http endpoint")
		}
	default:
		problems = append(problems, fmt.Sprintf("endpoint.kind %q is not supported (use bedrock, anthropic or http)", c.Endpoint.Kind))
	}

	if c.Cache.MaxEntries < 0 {
		problems = append(problems, fmt.Sprintf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries))
	}
	if c.Retry.MaxAttempts < 0 {
		problems = append(problems, "retry.max_attempts must not be negative")
	}
	if c.Retry.BaseDelayMS < 0 || c.Retry.MaxDelayMS < 0 {
		problems = append(problems, "retry delays must not be negative")
	}

	n := c.Nutrients
	if n.SimilarityThreshold < 0 || n.SimilarityThreshold > 1 {
		problems = append(problems, fmt.Sprintf("nutrients.similarity_threshold must be between 0 and 1, got %g", n.SimilarityThreshold))
	}
	switch n.Backend {
	case "":
	case BackendSQLite:
		if n.SQLitePath == "" {
			problems = append(problems, "nutrients.sqlite_path is required for the sqlite backend")
		}
	case BackendQdrant:
		if n.QdrantURL == "" {
			problems = append(problems, "nutrients.qdrant_url is required for the qdrant backend")
		}
		switch n.Embedding.Provider {
		case "ollama":
		case "openai":
			if n.Embedding.APIKey == "" {
				problems = append(problems, "nutrients.embedding.api_key is required for openai embeddings (set it or OPENAI_API_KEY)")
			}
		case "":
			problems = append(problems, "nutrients.embedding.provider is required for the qdrant backend")
		default:
			problems = append(problems, fmt.Sprintf("nutrients.embedding.provider %q is not supported (use ollama or openai)", n.Embedding.Provider))
		}
	default:
		problems = append(problems, fmt.Sprintf("nutrients.backend %q is not supported (use qdrant or sqlite)", n.Backend))
	}

	switch c.Templates.Backend {
	case TemplatesMemory:
	case TemplatesFile, TemplatesSQLite:
		if c.Templates.Path == "" {
			problems = append(problems, "templates.path is required for the "+c.Templates.Backend+" backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("templates.backend %q is not supported (use memory, file or sqlite)", c.Templates.Backend))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.Usage.DailyMaxUSD < 0 {
		problems = append(problems, "usage.daily_max_usd must not be negative")
	}

	return problems
}
