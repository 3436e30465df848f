package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/First008/vcare/internal/llm"
	"github.com/First008/vcare/internal/templates"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Input keys understood by every use case
const (
	keyUseTemplate  = "use_template"
	keyDisableCache = "disable_cache"
)

// base holds what every use case shares: the default client, the template
// store and the per-template client pool
type base struct {
	name            string
	client          llm.Invoker
	templates       templates.Store
	clients         *clientPool
	defaultTemplate string
	logger          zerolog.Logger
}

func (b *base) Name() string {
	return b.name
}

// runLogger tags a run with a fresh id
func (b *base) runLogger() zerolog.Logger {
	return b.logger.With().Str("run_id", uuid.NewString()).Logger()
}

// template returns the template named in the input (or the use case
// default), nil when none applies
func (b *base) template(ctx context.Context, input map[string]any, log zerolog.Logger) *templates.Template {
	if b.templates == nil {
		return nil
	}
	name := stringValue(input, keyUseTemplate)
	if name == "" {
		name = b.defaultTemplate
	}
	if name == "" {
		return nil
	}

	t, err := b.templates.Get(ctx, name)
	switch {
	case errors.Is(err, templates.ErrNotFound):
		log.Debug().Str("template", name).Msg("Template not found, using built-in prompt")
		return nil
	case err != nil:
		log.Warn().Err(err).Str("template", name).Msg("Failed to load template, using built-in prompt")
		return nil
	}
	return t
}

// invoker picks the client matching the template's model settings
func (b *base) invoker(t *templates.Template, log zerolog.Logger) llm.Invoker {
	if t == nil || b.clients == nil {
		return b.client
	}
	cfg, err := t.ModelConfig(b.client.Config())
	if err != nil {
		log.Warn().Err(err).Str("template", t.Name).Msg("Template model settings invalid, using default client")
		return b.client
	}
	if cfg == b.client.Config() {
		return b.client
	}
	c, err := b.clients.get(cfg)
	if err != nil {
		log.Warn().Err(err).Str("template", t.Name).Msg("Failed to create template client, using default client")
		return b.client
	}
	return c
}

func invokeOptions(input map[string]any) []llm.InvokeOption {
	if boolValue(input, keyDisableCache) {
		return []llm.InvokeOption{llm.WithoutCache()}
	}
	return nil
}

// textPipeline is the prompt → invoke → parse flow shared by the text
// use cases
type textPipeline struct {
	base
	validate func(input map[string]any) error
	prompt   func(input map[string]any) string
	parse    func(input map[string]any, text string, log zerolog.Logger) map[string]any
}

func (p *textPipeline) buildPrompt(ctx context.Context, input map[string]any, log zerolog.Logger) (string, *templates.Template, error) {
	if input == nil {
		input = map[string]any{}
	}
	if p.validate != nil {
		if err := p.validate(input); err != nil {
			return "", nil, err
		}
	}
	t := p.template(ctx, input, log)
	if t != nil {
		log.Debug().Str("template", t.Name).Msg("Formatting prompt with template")
		return t.Render(input), t, nil
	}
	return p.prompt(input), nil, nil
}

// interpret applies the template's response format, falling back to the
// use case parser
func (p *textPipeline) interpret(input map[string]any, text string, t *templates.Template, log zerolog.Logger) map[string]any {
	if t != nil {
		if result, ok := t.ApplyResponseFormat(text); ok {
			return result
		}
	}
	return p.parse(input, text, log)
}

func (p *textPipeline) Run(ctx context.Context, input map[string]any) map[string]any {
	log := p.runLogger()
	start := time.Now()
	log.Info().Msg("Processing request")

	prompt, t, err := p.buildPrompt(ctx, input, log)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid input")
		return ErrorResult(err, StageValidation)
	}

	resp, err := p.invoker(t, log).Invoke(ctx, prompt, invokeOptions(input)...)
	if err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Request failed")
		return ErrorResult(err, StageInvocation)
	}

	result := p.interpret(input, resp.Text, t, log)
	log.Info().Dur("elapsed", time.Since(start)).Msg("Completed request")
	return result
}

// RunStream invokes the model in streaming mode and parses the accumulated
// text once the stream ends
func (p *textPipeline) RunStream(ctx context.Context, input map[string]any, onChunk func(string)) map[string]any {
	log := p.runLogger()
	start := time.Now()
	log.Info().Msg("Processing streaming request")

	prompt, t, err := p.buildPrompt(ctx, input, log)
	if err != nil {
		return ErrorResult(err, StageValidation)
	}

	stream, err := p.invoker(t, log).InvokeStream(ctx, prompt)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open stream")
		return ErrorResult(err, StageInvocation)
	}
	defer stream.Close()

	for stream.Next() {
		if text := stream.Current().Text; text != "" && onChunk != nil {
			onChunk(text)
		}
	}
	if err := stream.Err(); err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Stream failed")
		return ErrorResult(err, StageStreaming)
	}

	result := p.interpret(input, stream.Text(), t, log)
	log.Info().Str("stream_id", stream.ID()).Dur("elapsed", time.Since(start)).Msg("Completed streaming request")
	return result
}
