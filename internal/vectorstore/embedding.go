package vectorstore

import (
	"context"
	"fmt"
)

// EmbeddingProvider turns food names into vectors for similarity search.
// Allows swapping between OpenAI and Ollama.
type EmbeddingProvider interface {
	// Embed creates an embedding vector from text
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the dimensionality of the embedding vectors
	Dimensions() int
}

// BatchEmbedder is implemented by providers that embed many names in one
// request. Vectors come back in input order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// embedAll embeds texts in one request when the provider supports it
func embedAll(ctx context.Context, p EmbeddingProvider, texts []string) ([][]float32, error) {
	if batcher, ok := p.(BatchEmbedder); ok {
		vectors, err := batcher.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embedded %d of %d names", len(vectors), len(texts))
		}
		return vectors, nil
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := p.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed %q: %w", text, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

// ModelNamer is implemented by providers that can report their model
type ModelNamer interface {
	ModelName() string
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
