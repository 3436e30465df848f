package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/First008/vcare/internal/nutrition"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"
)

// DefaultCollection is the Qdrant collection holding nutrient points
const DefaultCollection = "vcare-food-nutrients-v1"

// pointNamespace seeds deterministic point ids derived from food names
var pointNamespace = uuid.MustParse("6f1c3e9a-2d4b-4f7e-9a51-0c8d2b7e4a10")

// qdrantAPI is the subset of *qdrant.Client the store uses
type qdrantAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	Close() error
}

// QdrantStore implements NutrientStore on a Qdrant collection. Each food is
// one point: its name embedding plus the per-100g profile as payload.
type QdrantStore struct {
	client         qdrantAPI
	embedder       EmbeddingProvider
	collectionName string
	logger         zerolog.Logger
}

// NewQdrantStore connects to Qdrant (gRPC, "host:port") and ensures the
// collection exists.
func NewQdrantStore(ctx context.Context, qdrantURL, collection string, embedder EmbeddingProvider, logger zerolog.Logger) (*QdrantStore, error) {
	if qdrantURL == "" {
		return nil, fmt.Errorf("qdrant URL is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	if collection == "" {
		collection = DefaultCollection
	}

	host, port := parseQdrantURL(qdrantURL)
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	store := &QdrantStore{
		client:         client,
		embedder:       embedder,
		collectionName: collection,
		logger:         logger,
	}

	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	logger.Info().
		Str("collection", collection).
		Str("qdrant_url", qdrantURL).
		Msg("Qdrant nutrient store initialized")

	return store, nil
}

// ensureCollection creates the collection and its name index if missing
func (qs *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := qs.client.CollectionExists(ctx, qs.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = qs.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: qs.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(qs.embedder.Dimensions()),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// Exact lookups filter on the name payload
	_, err = qs.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: qs.collectionName,
		FieldName:      "name",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to index name payload: %w", err)
	}

	qs.logger.Info().Str("collection", qs.collectionName).Msg("Collection created")
	return nil
}

// LookupExact scrolls for a point whose name payload equals name
func (qs *QdrantStore) LookupExact(ctx context.Context, name string) (*nutrition.Profile, error) {
	name = nutrition.NormalizeName(name)
	points, err := qs.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: qs.collectionName,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("name", name)},
		},
		WithPayload: qdrant.NewWithPayload(true),
		Limit:       uint32Ptr(1),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant scroll failed: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	profile := profileFromPayload(points[0].Payload)
	return &profile, nil
}

// SearchSimilar embeds name and queries the nearest foods above threshold
func (qs *QdrantStore) SearchSimilar(ctx context.Context, name string, k int, threshold float64) ([]nutrition.Match, error) {
	if k <= 0 {
		k = 3
	}

	embedding, err := qs.embedder.Embed(ctx, nutrition.NormalizeName(name))
	if err != nil {
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}

	scoreThreshold := float32(threshold)
	points, err := qs.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: qs.collectionName,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          uintPtr(uint64(k)),
		ScoreThreshold: &scoreThreshold,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	matches := make([]nutrition.Match, 0, len(points))
	for _, point := range points {
		profile := profileFromPayload(point.Payload)
		matches = append(matches, nutrition.Match{
			Name:    getStringValue(point.Payload, "name"),
			Profile: &profile,
			Score:   float64(point.Score),
		})
	}

	qs.logger.Debug().
		Str("query", name).
		Int("results", len(matches)).
		Msg("Nutrient similarity search completed")

	return matches, nil
}

// Upsert embeds the item names (in one request when the provider batches)
// and writes one point per item
func (qs *QdrantStore) Upsert(ctx context.Context, items []nutrition.Item) error {
	if len(items) == 0 {
		return nil
	}

	names := make([]string, len(items))
	for i, item := range items {
		names[i] = nutrition.NormalizeName(item.Name)
	}
	embeddings, err := embedAll(ctx, qs.embedder, names)
	if err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(items))
	for i, item := range items {
		name := names[i]
		embedding := embeddings[i]

		payload := map[string]any{
			"name":   name,
			"source": item.Source,
		}
		for n, v := range item.Profile.Map() {
			payload[n] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(name)),
			Vectors: qdrant.NewVectors(embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	wait := true
	_, err = qs.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: qs.collectionName,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	qs.logger.Debug().Int("points", len(points)).Msg("Nutrient points upserted")
	return nil
}

// GetStats returns point counts for the collection
func (qs *QdrantStore) GetStats(ctx context.Context) (*Stats, error) {
	info, err := qs.client.GetCollectionInfo(ctx, qs.collectionName)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection info: %w", err)
	}

	return &Stats{
		Backend:    "qdrant",
		Collection: qs.collectionName,
		Items:      int64(info.GetPointsCount()),
	}, nil
}

// Close closes the Qdrant connection
func (qs *QdrantStore) Close() error {
	return qs.client.Close()
}

// pointID derives a stable UUID from the normalized food name so that
// re-ingesting a food replaces its point.
func pointID(name string) string {
	return uuid.NewSHA1(pointNamespace, []byte(name)).String()
}

func profileFromPayload(payload map[string]*qdrant.Value) nutrition.Profile {
	var p nutrition.Profile
	for _, n := range nutrition.Nutrients {
		p.Set(n, getFloatValue(payload, n))
	}
	return p
}

func getStringValue(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok && v != nil {
		return v.GetStringValue()
	}
	return ""
}

func getFloatValue(payload map[string]*qdrant.Value, key string) float64 {
	v, ok := payload[key]
	if !ok || v == nil {
		return 0
	}
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_IntegerValue:
		return float64(kind.IntegerValue)
	}
	return 0
}

func uintPtr(u uint64) *uint64 {
	return &u
}

func uint32Ptr(u uint32) *uint32 {
	return &u
}

// parseQdrantURL splits "host:port" (gRPC). A bare host gets port 6334.
func parseQdrantURL(url string) (host string, port int) {
	port = 6334

	url = strings.TrimPrefix(strings.TrimPrefix(url, "http://"), "https://")
	parts := strings.Split(url, ":")
	if len(parts) == 2 {
		host = parts[0]
		if _, err := fmt.Sscanf(parts[1], "%d", &port); err != nil {
			port = 6334
		}
	} else {
		host = url
	}

	if host == "" {
		host = "localhost"
	}

	return host, port
}
