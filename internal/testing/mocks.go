// Package testing provides test utilities, mocks, and fixtures for testing vcare components.
package testing

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/First008/vcare/internal/llm"
	"github.com/First008/vcare/internal/nutrition"
)

// MockEndpoint is a mock implementation of llm.Endpoint for testing
// without making real model calls. Plug it into llm.NewClient.
type MockEndpoint struct {
	mu sync.Mutex

	// InvokeFunc is called when Invoke() is invoked. If nil, Responses are
	// replayed in order (the last one repeats) or a default Claude body is returned.
	InvokeFunc func(ctx context.Context, modelID string, body []byte) (*llm.EndpointResponse, error)

	// InvokeStreamFunc is called when InvokeStream() is invoked. If nil,
	// StreamEvents are served from a SliceStream.
	InvokeStreamFunc func(ctx context.Context, modelID string, body []byte) (llm.EventStream, error)

	// Responses are raw response bodies returned by the default Invoke
	Responses []string

	// StreamEvents are raw events returned by the default InvokeStream
	StreamEvents []string

	// CallCount tracks how many times Invoke was called
	CallCount int

	// StreamCallCount tracks how many times InvokeStream was called
	StreamCallCount int

	// Bodies stores every request body received, in order
	Bodies [][]byte
}

// Name implements llm.Endpoint.Name
func (m *MockEndpoint) Name() string { return "mock" }

// Invoke implements llm.Endpoint.Invoke
func (m *MockEndpoint) Invoke(ctx context.Context, modelID string, body []byte) (*llm.EndpointResponse, error) {
	m.mu.Lock()
	m.CallCount++
	m.Bodies = append(m.Bodies, body)
	call := m.CallCount
	fn := m.InvokeFunc
	responses := m.Responses
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, modelID, body)
	}
	if len(responses) == 0 {
		return &llm.EndpointResponse{StatusCode: 200, Body: []byte(ClaudeBody("Mock response"))}, nil
	}
	idx := call - 1
	if idx >= len(responses) {
		idx = len(responses) - 1
	}
	return &llm.EndpointResponse{StatusCode: 200, Body: []byte(responses[idx])}, nil
}

// InvokeStream implements llm.Endpoint.InvokeStream
func (m *MockEndpoint) InvokeStream(ctx context.Context, modelID string, body []byte) (llm.EventStream, error) {
	m.mu.Lock()
	m.StreamCallCount++
	m.Bodies = append(m.Bodies, body)
	fn := m.InvokeStreamFunc
	events := m.StreamEvents
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, modelID, body)
	}
	return NewSliceStream(events...), nil
}

// Calls returns Invoke's call count under the lock
func (m *MockEndpoint) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// LastBody returns the most recent request body
func (m *MockEndpoint) LastBody() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Bodies) == 0 {
		return nil
	}
	return m.Bodies[len(m.Bodies)-1]
}

// SliceStream is an llm.EventStream over fixed events. Err, when set, is
// returned after the events instead of io.EOF.
type SliceStream struct {
	mu     sync.Mutex
	events []string
	pos    int
	Err    error
	closed int
}

// NewSliceStream creates a stream over events
func NewSliceStream(events ...string) *SliceStream {
	return &SliceStream{events: events}
}

// Recv implements llm.EventStream.Recv
func (s *SliceStream) Recv() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed > 0 {
		return nil, io.EOF
	}
	if s.pos >= len(s.events) {
		if s.Err != nil {
			return nil, s.Err
		}
		return nil, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return []byte(ev), nil
}

// Close implements llm.EventStream.Close
func (s *SliceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Closed returns how many times Close was called
func (s *SliceStream) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// MockNutrientStore is a mock implementation of nutrition.Store.
// Similar matches are computed from Similar, keyed by query name.
type MockNutrientStore struct {
	mu sync.Mutex

	// LookupExactFunc is called when LookupExact() is invoked. If nil, Exact is consulted.
	LookupExactFunc func(ctx context.Context, name string) (*nutrition.Profile, error)

	// SearchSimilarFunc is called when SearchSimilar() is invoked. If nil, Similar is consulted.
	SearchSimilarFunc func(ctx context.Context, name string, k int, threshold float64) ([]nutrition.Match, error)

	// Exact maps normalized ingredient names to per-100g profiles
	Exact map[string]nutrition.Profile

	// Similar maps query names to candidate matches
	Similar map[string][]nutrition.Match

	// ExactCalls and SimilarCalls count lookups per tier
	ExactCalls   int
	SimilarCalls int

	// Upserted stores items written through Upsert
	Upserted []nutrition.Item
}

// NewMockNutrientStore creates a MockNutrientStore with initialized maps
func NewMockNutrientStore() *MockNutrientStore {
	return &MockNutrientStore{
		Exact:   make(map[string]nutrition.Profile),
		Similar: make(map[string][]nutrition.Match),
	}
}

// LookupExact implements nutrition.Store.LookupExact
func (m *MockNutrientStore) LookupExact(ctx context.Context, name string) (*nutrition.Profile, error) {
	m.mu.Lock()
	m.ExactCalls++
	fn := m.LookupExactFunc
	p, ok := m.Exact[name]
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, name)
	}
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// SearchSimilar implements nutrition.Store.SearchSimilar
func (m *MockNutrientStore) SearchSimilar(ctx context.Context, name string, k int, threshold float64) ([]nutrition.Match, error) {
	m.mu.Lock()
	m.SimilarCalls++
	fn := m.SearchSimilarFunc
	candidates := append([]nutrition.Match(nil), m.Similar[name]...)
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, name, k, threshold)
	}

	var out []nutrition.Match
	for _, c := range candidates {
		if c.Score >= threshold {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Upsert records items and makes them available to LookupExact
func (m *MockNutrientStore) Upsert(_ context.Context, items []nutrition.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		m.Exact[nutrition.NormalizeName(it.Name)] = it.Profile
	}
	m.Upserted = append(m.Upserted, items...)
	return nil
}

// MockEmbeddingProvider is a mock embedding provider that produces
// deterministic vectors from text.
type MockEmbeddingProvider struct {
	// EmbedFunc overrides the default deterministic embedding
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)

	// Dim is the vector size (default 8)
	Dim int

	// CallCount tracks how many times Embed was called
	CallCount int
}

// Embed implements vectorstore.EmbeddingProvider.Embed
func (m *MockEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	m.CallCount++
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty text")
	}

	vec := make([]float32, m.Dimensions())
	for i, r := range strings.ToLower(text) {
		vec[(i+int(r))%len(vec)] += float32(r%17) / 17
	}
	return vec, nil
}

// Dimensions implements vectorstore.EmbeddingProvider.Dimensions
func (m *MockEmbeddingProvider) Dimensions() int {
	if m.Dim <= 0 {
		return 8
	}
	return m.Dim
}
