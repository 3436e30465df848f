package vectorstore

import (
	"context"

	"github.com/First008/vcare/internal/nutrition"
)

// NutrientStore is the interface for nutrient catalog backends.
// Implementations: QdrantStore, SQLiteStore.
type NutrientStore interface {
	// LookupExact returns the profile stored under name, or nil when absent
	LookupExact(ctx context.Context, name string) (*nutrition.Profile, error)

	// SearchSimilar returns up to k matches scoring at least threshold,
	// best first. Scores are in [0, 1], higher is closer.
	SearchSimilar(ctx context.Context, name string, k int, threshold float64) ([]nutrition.Match, error)

	// Upsert writes items, replacing entries with the same normalized name
	Upsert(ctx context.Context, items []nutrition.Item) error

	// GetStats returns statistics about the store
	GetStats(ctx context.Context) (*Stats, error)

	// Close releases the backend connection
	Close() error
}

// Stats holds statistics about a nutrient store
type Stats struct {
	// Backend is "qdrant" or "sqlite"
	Backend string `json:"backend"`

	// Collection is the Qdrant collection or SQLite file
	Collection string `json:"collection"`

	// Items is the number of stored foods
	Items int64 `json:"items"`
}
