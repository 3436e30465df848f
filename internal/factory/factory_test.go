package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/First008/vcare/internal/config"
	"github.com/First008/vcare/internal/templates"
	vtesting "github.com/First008/vcare/internal/testing"
	"github.com/First008/vcare/internal/usecase"
	"github.com/First008/vcare/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Endpoint = config.EndpointConfig{Kind: config.EndpointHTTP, URL: "http://127.0.0.1:1"}
	cfg.Templates = config.TemplatesConfig{Backend: config.TemplatesMemory}
	return cfg
}

func TestBuild_WiresUseCases(t *testing.T) {
	cfg := testConfig(t)
	cfg.Nutrients.Backend = config.BackendSQLite
	cfg.Nutrients.SQLitePath = filepath.Join(t.TempDir(), "nutrients.db")

	s, err := Build(context.Background(), cfg, vtesting.NewTestLogger())
	require.NoError(t, err)

	assert.Contains(t, s.Registry.Names(), usecase.FoodAnalysisName)
	assert.IsType(t, &templates.MemoryStore{}, s.Templates)
	assert.IsType(t, &vectorstore.SQLiteStore{}, s.Nutrients)
	assert.Equal(t, cfg.Model, s.Client.Config())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")
}

func TestBuild_WithoutNutrientStore(t *testing.T) {
	s, err := Build(context.Background(), testConfig(t), vtesting.NewTestLogger())
	require.NoError(t, err)
	defer s.Close()

	assert.Nil(t, s.Nutrients)
}

func TestBuild_FailsOnBadTemplateBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Templates.Backend = "etcd"

	_, err := Build(context.Background(), cfg, vtesting.NewTestLogger())
	assert.ErrorContains(t, err, "unsupported template backend")
}

func TestClientBuilder_SharesCacheAndEndpoint(t *testing.T) {
	cfg := testConfig(t)
	b, err := NewClientBuilder(context.Background(), cfg, nil, vtesting.NewTestLogger())
	require.NoError(t, err)

	first, err := b.Client(cfg.Model)
	require.NoError(t, err)
	other, err := cfg.Model.With()
	require.NoError(t, err)
	other.Temperature = 0.1
	second, err := b.Invoker(other)
	require.NoError(t, err)

	assert.Equal(t, 0.1, second.Config().Temperature)
	assert.Len(t, b.endpoints, 1, "http endpoints are shared across regions")
	assert.NotNil(t, b.Cache())
	_ = first.Close()
}

func TestNewTemplateStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	logger := vtesting.NewTestLogger()

	fileStore, err := NewTemplateStore(ctx, config.TemplatesConfig{Backend: config.TemplatesFile, Path: filepath.Join(dir, "t.json")}, logger)
	require.NoError(t, err)
	assert.IsType(t, &templates.FileStore{}, fileStore)

	sqliteStore, err := NewTemplateStore(ctx, config.TemplatesConfig{Backend: config.TemplatesSQLite, Path: filepath.Join(dir, "t.db")}, logger)
	require.NoError(t, err)
	assert.IsType(t, &templates.SQLiteStore{}, sqliteStore)
	require.NoError(t, sqliteStore.(*templates.SQLiteStore).Close())
}

func TestNewNutrientStore_UnknownBackend(t *testing.T) {
	_, err := NewNutrientStore(context.Background(), config.NutrientsConfig{Backend: "redis"}, vtesting.NewTestLogger())
	assert.ErrorContains(t, err, "unsupported nutrient backend")
}

func TestNewEmbeddingProvider(t *testing.T) {
	ctx := context.Background()
	logger := vtesting.NewTestLogger()

	p, err := NewEmbeddingProvider(ctx, config.EmbeddingConfig{APIKey: "sk-test"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &vectorstore.OpenAIEmbeddingProvider{}, p, "api key selects openai")

	_, err = NewEmbeddingProvider(ctx, config.EmbeddingConfig{}, logger)
	assert.ErrorContains(t, err, "no embedding provider configured")

	_, err = NewEmbeddingProvider(ctx, config.EmbeddingConfig{Provider: "cohere"}, logger)
	assert.ErrorContains(t, err, "unsupported embedding provider")

	_, err = NewEmbeddingProvider(ctx, config.EmbeddingConfig{Provider: "openai"}, logger)
	assert.ErrorContains(t, err, "API key required")
}

func TestNewEndpoint_Unsupported(t *testing.T) {
	_, err := NewEndpoint(context.Background(), config.EndpointConfig{Kind: "grpc"}, "", vtesting.NewTestLogger())
	assert.ErrorContains(t, err, "unsupported endpoint kind")
}
