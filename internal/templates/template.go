// Package templates stores prompt templates and renders them for use cases.
//
// A template carries the prompt text with ${placeholder} variables, the model
// settings the use case should run with, and an optional response_format
// skeleton whose keys (with defaults) are picked out of the model's JSON
// answer. Stores only hand out active templates.
package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/First008/vcare/internal/llm"
)

const (
	defaultMaxTokens   = 2048
	defaultTemperature = 0.5
)

// ErrNotFound is returned by Store.Get when no active template has the name
var ErrNotFound = errors.New("template not found")

// Template is a named, reusable prompt for a use case
type Template struct {
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	UseCase        string         `json:"use_case"`
	Text           string         `json:"template_text"`
	Provider       string         `json:"model_provider"`
	ModelID        string         `json:"model_id"`
	MaxTokens      int            `json:"max_tokens"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format"`
	Active         bool           `json:"is_active"`
}

// New returns a template with the default model settings, active
func New(name, useCase, text string) Template {
	return Template{
		Name:           name,
		UseCase:        useCase,
		Text:           text,
		MaxTokens:      defaultMaxTokens,
		Temperature:    defaultTemperature,
		ResponseFormat: map[string]any{},
		Active:         true,
	}
}

// UnmarshalJSON fills omitted fields with the same defaults as New
func (t *Template) UnmarshalJSON(data []byte) error {
	type plain Template
	p := plain(New("", "", ""))
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = Template(p)
	return nil
}

// Validate checks the fields every store requires
func (t Template) Validate() error {
	var problems []string
	if strings.TrimSpace(t.Name) == "" {
		problems = append(problems, "name is required")
	}
	if strings.TrimSpace(t.UseCase) == "" {
		problems = append(problems, "use_case is required")
	}
	if strings.TrimSpace(t.Text) == "" {
		problems = append(problems, "template_text is required")
	}
	if t.Provider != "" {
		if _, err := llm.ParseProvider(t.Provider); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid template %q: %s", t.Name, strings.Join(problems, "; "))
	}
	return nil
}

// ModelConfig derives the configuration a client should use for this
// template. Unset template fields keep the base values.
func (t Template) ModelConfig(base llm.ModelConfig) (llm.ModelConfig, error) {
	var opts []llm.ModelOption
	if t.Provider != "" {
		p, err := llm.ParseProvider(t.Provider)
		if err != nil {
			return llm.ModelConfig{}, &llm.ConfigurationError{Problems: []string{err.Error()}}
		}
		opts = append(opts, llm.WithProvider(p))
	}
	if t.ModelID != "" {
		opts = append(opts, llm.WithModelID(t.ModelID))
	}
	if t.MaxTokens != 0 {
		opts = append(opts, llm.WithMaxTokens(t.MaxTokens))
	}
	opts = append(opts, llm.WithTemperature(t.Temperature))
	return base.With(opts...)
}

// Store keeps templates by name
type Store interface {
	// Get returns the active template with the given name or ErrNotFound
	Get(ctx context.Context, name string) (*Template, error)
	// Put adds or replaces a template
	Put(ctx context.Context, t Template) error
	// Remove deletes a template and reports whether it existed
	Remove(ctx context.Context, name string) (bool, error)
	// List returns active templates, filtered by use case when it is not empty
	List(ctx context.Context, useCase string) ([]Template, error)
}

func filterActive(all map[string]Template, useCase string) []Template {
	out := make([]Template, 0, len(all))
	for _, t := range all {
		if !t.Active {
			continue
		}
		if useCase != "" && t.UseCase != useCase {
			continue
		}
		out = append(out, t)
	}
	sortByName(out)
	return out
}
