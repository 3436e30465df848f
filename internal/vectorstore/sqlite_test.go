package vectorstore

import (
	"context"
	"io"
	"testing"

	"github.com/First008/vcare/internal/nutrition"
	vtesting "github.com/First008/vcare/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), ":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var items []nutrition.Item
	for name, p := range vtesting.SampleCatalog() {
		items = append(items, nutrition.Item{Name: name, Profile: p, Source: "test"})
	}
	require.NoError(t, store.Upsert(context.Background(), items))
	return store
}

func TestSQLiteStore_LookupExact(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	p, err := store.LookupExact(ctx, "  Rice ")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 28.0, p.Carbohydrates)
	assert.Equal(t, 130.0, p.Calories)

	missing, err := store.LookupExact(ctx, "dragon fruit")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStore_MappingResolvesVariants(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddMapping(ctx, "Wheat Flour", []string{"atta", "Maida"}, "grain"))

	p, err := store.LookupExact(ctx, "maida")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 76.0, p.Carbohydrates)
}

func TestSQLiteStore_UpsertReplaces(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []nutrition.Item{
		{Name: "RICE", Profile: nutrition.Profile{Carbohydrates: 30}},
	}))

	p, err := store.LookupExact(ctx, "rice")
	require.NoError(t, err)
	assert.Equal(t, 30.0, p.Carbohydrates)
	assert.Zero(t, p.Calories)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Items)
	assert.Equal(t, "sqlite", stats.Backend)
}

func TestSQLiteStore_SearchSimilar(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	matches, err := store.SearchSimilar(ctx, "chicken breast", 3, 0.3)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "chicken", matches[0].Name)
	assert.Equal(t, 27.0, matches[0].Profile.Proteins)
	assert.GreaterOrEqual(t, matches[0].Score, 0.3)

	none, err := store.SearchSimilar(ctx, "xyz", 3, 0.4)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_SearchSimilarRespectsK(t *testing.T) {
	store := newSQLiteStore(t)

	matches, err := store.SearchSimilar(context.Background(), "rice", 1, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "rice", matches[0].Name)
	assert.Equal(t, 1.0, matches[0].Score)
}

func TestTrigramSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, jaccard(trigrams("Rice"), trigrams("rice")))
	assert.Zero(t, jaccard(trigrams(""), trigrams("rice")))

	near := jaccard(trigrams("chicken breast"), trigrams("chicken"))
	far := jaccard(trigrams("chicken breast"), trigrams("rice"))
	assert.Greater(t, near, far)

	// "  a", " ab", "ab " for a two letter word
	assert.Len(t, trigrams("ab"), 3)
}
