package nutrition_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/First008/vcare/internal/llm"
	"github.com/First008/vcare/internal/nutrition"
	vtesting "github.com/First008/vcare/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T, store nutrition.Store, endpoint *vtesting.MockEndpoint) *nutrition.Resolver {
	t.Helper()
	client, err := vtesting.NewTestClient(endpoint)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return nutrition.NewResolver(store, client, vtesting.NewTestLogger())
}

func TestResolver_ExactShortCircuits(t *testing.T) {
	store := vtesting.NewMockNutrientStore()
	store.Exact["rice"] = vtesting.SampleCatalog()["rice"]
	endpoint := &vtesting.MockEndpoint{}

	res := newResolver(t, store, endpoint).Resolve(context.Background(), " Rice ")

	assert.Equal(t, nutrition.TierExact, res.Tier)
	assert.Equal(t, 28.0, res.Profile.Carbohydrates)
	assert.Equal(t, 1, store.ExactCalls)
	assert.Equal(t, 0, store.SimilarCalls)
	assert.Equal(t, 0, endpoint.Calls())
}

func TestResolver_EmptyProfilesFallThrough(t *testing.T) {
	store := vtesting.NewMockNutrientStore()
	store.Exact["tofu"] = nutrition.Profile{}
	chicken := vtesting.SampleCatalog()["chicken"]
	store.Similar["tofu"] = []nutrition.Match{{Name: "chicken", Profile: &chicken, Score: 0.9}}
	endpoint := &vtesting.MockEndpoint{}

	res := newResolver(t, store, endpoint).Resolve(context.Background(), "tofu")

	assert.Equal(t, nutrition.TierSimilar, res.Tier)
	assert.Equal(t, "chicken", res.Substitute)
	assert.Equal(t, 1, store.SimilarCalls)
	assert.Equal(t, 0, endpoint.Calls())

	empty := nutrition.Profile{}
	store.Exact["seitan"] = empty
	store.Similar["seitan"] = []nutrition.Match{{Name: "gluten", Profile: &empty, Score: 0.95}}
	endpoint = &vtesting.MockEndpoint{Responses: []string{vtesting.ClaudeBody(vtesting.SampleEstimateAnswer)}}
	resolver := newResolver(t, store, endpoint)

	res = resolver.Resolve(context.Background(), "seitan")

	assert.Equal(t, nutrition.TierFallback, res.Tier)
	assert.NoError(t, res.Err)
	assert.False(t, res.Profile.IsZero())
	assert.Equal(t, 1, endpoint.Calls())
	assert.Equal(t, []string{"seitan"}, resolver.Fallbacks())
}

func TestResolver_SimilarSubstitutes(t *testing.T) {
	store := vtesting.NewMockNutrientStore()
	chicken := vtesting.SampleCatalog()["chicken"]
	store.Similar["chicken thigh"] = []nutrition.Match{
		{Name: "chicken", Profile: &chicken, Score: 0.82},
		{Name: "turkey", Profile: &chicken, Score: 0.5},
	}
	endpoint := &vtesting.MockEndpoint{}
	resolver := newResolver(t, store, endpoint)

	res := resolver.Resolve(context.Background(), "chicken thigh")

	assert.Equal(t, nutrition.TierSimilar, res.Tier)
	assert.Equal(t, "chicken", res.Substitute)
	assert.Equal(t, 27.0, res.Profile.Proteins)
	assert.Equal(t, 0, endpoint.Calls())
	assert.Empty(t, resolver.Fallbacks())
}

func TestResolver_SimilarBelowThresholdFallsThrough(t *testing.T) {
	store := vtesting.NewMockNutrientStore()
	rice := vtesting.SampleCatalog()["rice"]
	store.Similar["quinoa"] = []nutrition.Match{{Name: "rice", Profile: &rice, Score: 0.3}}
	endpoint := &vtesting.MockEndpoint{Responses: []string{vtesting.ClaudeBody(vtesting.SampleEstimateAnswer)}}
	resolver := newResolver(t, store, endpoint)

	res := resolver.Resolve(context.Background(), "quinoa")

	assert.Equal(t, nutrition.TierFallback, res.Tier)
	assert.NoError(t, res.Err)
	assert.Equal(t, nutrition.Profile{Carbohydrates: 13.5, Proteins: 1.2, Fats: 0.4, Fibre: 3, Calories: 60}, res.Profile)
	assert.Equal(t, []string{"quinoa"}, resolver.Fallbacks())
}

func TestResolver_EstimateCachedPerRun(t *testing.T) {
	endpoint := &vtesting.MockEndpoint{Responses: []string{vtesting.ClaudeBody(`{"proteins": 4}`)}}
	client, err := vtesting.NewTestClient(endpoint)
	require.NoError(t, err)
	defer client.Close()

	first := nutrition.NewResolver(nil, client, vtesting.NewTestLogger())
	first.Resolve(context.Background(), "tempeh")
	res := first.Resolve(context.Background(), "tempeh")

	assert.Equal(t, 4.0, res.Profile.Proteins)
	assert.Zero(t, res.Profile.Calories)
	assert.Equal(t, []string{"tempeh"}, first.Fallbacks())
	assert.Equal(t, 1, endpoint.Calls())

	// A new run starts with an empty estimate cache; the shared response
	// cache still spares the endpoint.
	second := nutrition.NewResolver(nil, client, vtesting.NewTestLogger())
	second.Resolve(context.Background(), "tempeh")
	assert.Equal(t, []string{"tempeh"}, second.Fallbacks())
	assert.Equal(t, 1, endpoint.Calls())
}

func TestResolver_ModelFailureZeroFills(t *testing.T) {
	endpoint := &vtesting.MockEndpoint{
		InvokeFunc: func(context.Context, string, []byte) (*llm.EndpointResponse, error) {
			return &llm.EndpointResponse{StatusCode: http.StatusBadRequest, Body: []byte("bad")}, nil
		},
	}
	resolver := newResolver(t, nil, endpoint)

	res := resolver.Resolve(context.Background(), "mystery")

	assert.Equal(t, nutrition.TierFallback, res.Tier)
	assert.True(t, res.Profile.IsZero())
	var fbErr *nutrition.FallbackResolutionError
	require.True(t, errors.As(res.Err, &fbErr))
	assert.Equal(t, "mystery", fbErr.Ingredient)
	assert.ErrorIs(t, res.Err, llm.ErrInvocation)
	assert.Equal(t, []string{"mystery"}, resolver.Fallbacks())
}

func TestResolver_StoreErrorsFallThrough(t *testing.T) {
	store := vtesting.NewMockNutrientStore()
	store.LookupExactFunc = func(context.Context, string) (*nutrition.Profile, error) {
		return nil, errors.New("connection refused")
	}
	store.SearchSimilarFunc = func(context.Context, string, int, float64) ([]nutrition.Match, error) {
		return nil, errors.New("connection refused")
	}
	endpoint := &vtesting.MockEndpoint{Responses: []string{vtesting.ClaudeBody("calories: 52")}}

	res := newResolver(t, store, endpoint).Resolve(context.Background(), "apple")

	assert.Equal(t, nutrition.TierFallback, res.Tier)
	assert.Equal(t, 52.0, res.Profile.Calories)
	assert.Equal(t, 1, store.ExactCalls)
	assert.Equal(t, 1, store.SimilarCalls)
}

func TestResolver_UnparseableEstimateRecordsError(t *testing.T) {
	endpoint := &vtesting.MockEndpoint{Responses: []string{vtesting.ClaudeBody("no idea")}}

	res := newResolver(t, nil, endpoint).Resolve(context.Background(), "unobtainium")

	assert.True(t, res.Profile.IsZero())
	assert.ErrorIs(t, res.Err, nutrition.ErrNoNutrientsFound)
}

func TestResolver_ResolveAllKeepsOrder(t *testing.T) {
	store := vtesting.NewMockNutrientStore()
	for name, p := range vtesting.SampleCatalog() {
		store.Exact[name] = p
	}
	resolver := newResolver(t, store, &vtesting.MockEndpoint{})

	out := resolver.ResolveAll(context.Background(), []nutrition.Ingredient{
		nutrition.NewIngredient("rice", 100),
		nutrition.NewIngredient("chicken", 100),
	})

	require.Len(t, out, 2)
	assert.Equal(t, "rice", out[0].Ingredient)
	assert.Equal(t, "chicken", out[1].Ingredient)
}
