package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEndpoint scripts endpoint answers and records calls
type fakeEndpoint struct {
	mu          sync.Mutex
	invokeFunc  func(modelID string, body []byte) (*EndpointResponse, error)
	streamFunc  func(modelID string, body []byte) (EventStream, error)
	invokeCalls int
	streamCalls int
	lastBody    []byte
}

func (f *fakeEndpoint) Name() string { return "fake" }

func (f *fakeEndpoint) Invoke(_ context.Context, modelID string, body []byte) (*EndpointResponse, error) {
	f.mu.Lock()
	f.invokeCalls++
	f.lastBody = body
	f.mu.Unlock()
	if f.invokeFunc != nil {
		return f.invokeFunc(modelID, body)
	}
	return &EndpointResponse{StatusCode: http.StatusOK, Body: []byte(`{"content":[{"type":"text","text":"ok"}]}`)}, nil
}

func (f *fakeEndpoint) InvokeStream(_ context.Context, modelID string, body []byte) (EventStream, error) {
	f.mu.Lock()
	f.streamCalls++
	f.mu.Unlock()
	if f.streamFunc != nil {
		return f.streamFunc(modelID, body)
	}
	return &sliceStream{}, nil
}

func (f *fakeEndpoint) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invokeCalls
}

// sliceStream replays canned events
type sliceStream struct {
	mu     sync.Mutex
	events []string
	pos    int
	err    error
	closes int
	block  chan struct{}
}

func (s *sliceStream) Recv() ([]byte, error) {
	s.mu.Lock()
	if s.pos < len(s.events) {
		ev := s.events[s.pos]
		s.pos++
		s.mu.Unlock()
		return []byte(ev), nil
	}
	block := s.block
	err := s.err
	s.mu.Unlock()

	if block != nil {
		<-block
		return nil, io.ErrClosedPipe
	}
	if err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (s *sliceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.block != nil {
		close(s.block)
		s.block = nil
	}
	return nil
}

func (s *sliceStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// recordingMetrics counts every instrumentation call
type recordingMetrics struct {
	mu        sync.Mutex
	statuses  map[string]int
	tokens    map[string]int
	hits      int
	misses    int
	inFlight  int
	maxFlight int
	started   int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{statuses: map[string]int{}, tokens: map[string]int{}}
}

func (m *recordingMetrics) RequestStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
	m.inFlight++
	if m.inFlight > m.maxFlight {
		m.maxFlight = m.inFlight
	}
}

func (m *recordingMetrics) RequestFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
}

func (m *recordingMetrics) RequestCompleted(_, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[status]++
}

func (m *recordingMetrics) TokensUsed(_, direction string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[direction] += n
}

func (m *recordingMetrics) CacheHit(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *recordingMetrics) CacheMiss(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

func (m *recordingMetrics) resetPeak() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxFlight = 0
}

func (m *recordingMetrics) peak() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxFlight
}

func (m *recordingMetrics) status(s string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[s]
}

func newTestClient(t *testing.T, endpoint Endpoint, opts ...ClientOption) (*Client, *recordingMetrics) {
	t.Helper()
	cfg, err := NewModelConfig()
	require.NoError(t, err)

	metrics := newRecordingMetrics()
	counter := 0
	var mu sync.Mutex
	opts = append([]ClientOption{
		WithMetrics(metrics),
		WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			counter++
			return fmt.Sprintf("id-%d", counter)
		}),
	}, opts...)

	client, err := NewClient(cfg, endpoint, testLogger(), opts...)
	require.NoError(t, err)
	return client, metrics
}

func TestNewClient_RejectsInvalidConfig(t *testing.T) {
	_, err := NewClient(ModelConfig{Provider: ProviderClaude, ModelID: "m", MaxTokens: 0}, &fakeEndpoint{}, testLogger())
	assert.ErrorIs(t, err, ErrConfiguration)

	cfg, _ := NewModelConfig()
	_, err = NewClient(cfg, nil, testLogger())
	assert.Error(t, err)
}

func TestClient_InvokeCachesResponses(t *testing.T) {
	cache, err := NewResponseCache(10)
	require.NoError(t, err)
	endpoint := &fakeEndpoint{}
	client, metrics := newTestClient(t, endpoint, WithCache(cache))

	first, err := client.Invoke(context.Background(), "same prompt")
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.peak())

	metrics.resetPeak()
	second, err := client.Invoke(context.Background(), "same prompt")
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.peak(), "cached calls still move the in-flight gauge")

	assert.Equal(t, first, second)
	assert.Equal(t, "ok", second.Text)
	assert.Equal(t, 1, endpoint.calls(), "second call must be served from cache")
	assert.Equal(t, 1, metrics.hits)
	assert.Equal(t, 1, metrics.misses)
	assert.Equal(t, 1, metrics.status(StatusSuccess))
	assert.Equal(t, 2, metrics.started)
	assert.Equal(t, 0, metrics.inFlight)
}

func TestClient_InvokeWithoutCacheBypasses(t *testing.T) {
	cache, err := NewResponseCache(10)
	require.NoError(t, err)
	endpoint := &fakeEndpoint{}
	client, _ := newTestClient(t, endpoint, WithCache(cache))

	_, err = client.Invoke(context.Background(), "p", WithoutCache())
	require.NoError(t, err)
	_, err = client.Invoke(context.Background(), "p", WithoutCache())
	require.NoError(t, err)

	assert.Equal(t, 2, endpoint.calls())
	assert.Equal(t, 0, cache.Len(), "bypassed calls must not populate the cache")
}

func TestClient_CacheSharedAcrossClients(t *testing.T) {
	cache, err := NewResponseCache(10)
	require.NoError(t, err)
	endpoint := &fakeEndpoint{}
	a, _ := newTestClient(t, endpoint, WithCache(cache))
	b, _ := newTestClient(t, endpoint, WithCache(cache))

	_, err = a.Invoke(context.Background(), "shared")
	require.NoError(t, err)
	_, err = b.Invoke(context.Background(), "shared")
	require.NoError(t, err)

	assert.Equal(t, 1, endpoint.calls())
}

func TestClient_InvokeRateLimited(t *testing.T) {
	endpoint := &fakeEndpoint{
		invokeFunc: func(string, []byte) (*EndpointResponse, error) {
			return &EndpointResponse{StatusCode: http.StatusTooManyRequests, Body: []byte("slow down")}, nil
		},
	}
	client, metrics := newTestClient(t, endpoint)

	_, err := client.Invoke(context.Background(), "p")
	require.Error(t, err)

	var rateErr *RateLimitError
	assert.True(t, errors.As(err, &rateErr))
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, metrics.status(StatusFailed))
	assert.Equal(t, 0, metrics.status(StatusSuccess))
	assert.Equal(t, 0, metrics.inFlight)
}

func TestClient_InvokeClassifiesFailures(t *testing.T) {
	tests := []struct {
		name          string
		resp          *EndpointResponse
		err           error
		wantStatus    int
		wantTransient bool
	}{
		{"server error", &EndpointResponse{StatusCode: 503, Body: []byte("unavailable")}, nil, 503, true},
		{"bad request", &EndpointResponse{StatusCode: 400, Body: []byte("bad")}, nil, 400, false},
		{"status error", nil, &StatusError{StatusCode: 500, Err: errors.New("boom")}, 500, true},
		{"transport", nil, errors.New("connection reset"), 0, true},
		{"cancelled", nil, context.Canceled, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint := &fakeEndpoint{
				invokeFunc: func(string, []byte) (*EndpointResponse, error) { return tt.resp, tt.err },
			}
			client, metrics := newTestClient(t, endpoint)

			_, err := client.Invoke(context.Background(), "p")
			var invErr *InvocationError
			require.True(t, errors.As(err, &invErr), "got %v", err)
			assert.Equal(t, tt.wantStatus, invErr.StatusCode)
			assert.Equal(t, tt.wantTransient, invErr.Transient())
			assert.Equal(t, 1, metrics.status(StatusFailed))
		})
	}
}

func TestClient_InvokeParsingErrorNotCached(t *testing.T) {
	cache, err := NewResponseCache(10)
	require.NoError(t, err)
	endpoint := &fakeEndpoint{
		invokeFunc: func(string, []byte) (*EndpointResponse, error) {
			return &EndpointResponse{StatusCode: 200, Body: []byte(`{"content":42}`)}, nil
		},
	}
	client, metrics := newTestClient(t, endpoint, WithCache(cache))

	_, err = client.Invoke(context.Background(), "p")
	assert.ErrorIs(t, err, ErrResponseParsing)
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, 1, metrics.status(StatusFailed))
}

func TestClient_InvokeWithImageSendsVisionBody(t *testing.T) {
	endpoint := &fakeEndpoint{}
	client, _ := newTestClient(t, endpoint)

	_, err := client.Invoke(context.Background(), "what dish", WithImage("QUJD"))
	require.NoError(t, err)
	assert.Contains(t, string(endpoint.lastBody), `"type":"image"`)
	assert.Contains(t, string(endpoint.lastBody), `"data":"QUJD"`)
}

func TestClient_InvokeRetriesRateLimits(t *testing.T) {
	attempts := 0
	endpoint := &fakeEndpoint{
		invokeFunc: func(string, []byte) (*EndpointResponse, error) {
			attempts++
			if attempts < 3 {
				return &EndpointResponse{StatusCode: http.StatusTooManyRequests}, nil
			}
			return &EndpointResponse{StatusCode: 200, Body: []byte(`{"content":[{"type":"text","text":"finally"}]}`)}, nil
		},
	}
	var sleeps []time.Duration
	retrier := NewRetrier(testLogger(),
		WithRetryMaxAttempts(4),
		WithRetryBackoff(10*time.Millisecond, 100*time.Millisecond),
		WithSleeper(func(d time.Duration) { sleeps = append(sleeps, d) }),
	)
	client, metrics := newTestClient(t, endpoint, WithRetrier(retrier))

	resp, err := client.Invoke(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "finally", resp.Text)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, sleeps)
	assert.Equal(t, 0, metrics.status(StatusFailed), "retried attempts are one request")
	assert.Equal(t, 1, metrics.status(StatusSuccess))
	assert.Equal(t, 1, metrics.started)
	assert.Equal(t, 0, metrics.inFlight)
}

func TestClient_InvokeRetriesExhausted(t *testing.T) {
	endpoint := &fakeEndpoint{
		invokeFunc: func(string, []byte) (*EndpointResponse, error) {
			return &EndpointResponse{StatusCode: http.StatusTooManyRequests}, nil
		},
	}
	retrier := NewRetrier(testLogger(),
		WithRetryMaxAttempts(3),
		WithSleeper(func(time.Duration) {}),
	)
	client, metrics := newTestClient(t, endpoint, WithRetrier(retrier))

	_, err := client.Invoke(context.Background(), "p")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 3, endpoint.calls())
	assert.Equal(t, 1, metrics.status(StatusFailed))
	assert.Equal(t, 1, metrics.started)
	assert.Equal(t, 1, metrics.peak())
	assert.Equal(t, 0, metrics.inFlight)
}

func TestClient_InvokeAfterClose(t *testing.T) {
	client, _ := newTestClient(t, &fakeEndpoint{})
	require.NoError(t, client.Close())

	_, err := client.Invoke(context.Background(), "p")
	assert.ErrorIs(t, err, ErrClientClosed)
	_, err = client.InvokeStream(context.Background(), "p")
	assert.ErrorIs(t, err, ErrClientClosed)
}

func claudeDelta(text string) string {
	return fmt.Sprintf(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":%q}}`, text)
}

func TestClient_InvokeStreamAccumulates(t *testing.T) {
	upstream := &sliceStream{events: []string{
		`{"type":"message_start","message":{"id":"m1"}}`,
		claudeDelta("one "),
		claudeDelta("two "),
		claudeDelta("three "),
		claudeDelta("four "),
		claudeDelta("five"),
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`,
		`{"type":"message_stop"}`,
	}}
	endpoint := &fakeEndpoint{
		streamFunc: func(string, []byte) (EventStream, error) { return upstream, nil },
	}
	client, metrics := newTestClient(t, endpoint)

	stream, err := client.InvokeStream(context.Background(), "count to five")
	require.NoError(t, err)
	assert.Equal(t, []string{stream.ID()}, client.ActiveStreams())

	var texts []string
	var stopReason string
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Text != "" {
			texts = append(texts, chunk.Text)
		}
		if chunk.StopReason != "" {
			stopReason = chunk.StopReason
		}
	}
	require.NoError(t, stream.Err())

	assert.Equal(t, []string{"one ", "two ", "three ", "four ", "five"}, texts)
	assert.Equal(t, "one two three four five", stream.Text())
	assert.Equal(t, "end_turn", stopReason)
	assert.Empty(t, client.ActiveStreams())
	assert.Equal(t, 1, upstream.closeCount())
	assert.Equal(t, 1, metrics.status(StatusSuccess))
	assert.Equal(t, 0, metrics.inFlight)
	assert.Equal(t, 0, metrics.hits+metrics.misses, "streams never touch the cache")
}

func TestClient_InvokeStreamUpstreamError(t *testing.T) {
	upstream := &sliceStream{
		events: []string{`{"generation":"partial"}`},
		err:    &StatusError{StatusCode: http.StatusTooManyRequests},
	}
	cfg, err := NewModelConfig(WithProvider(ProviderLlama), WithModelID("meta.llama3-70b-instruct-v1:0"))
	require.NoError(t, err)
	metrics := newRecordingMetrics()
	client, err := NewClient(cfg, &fakeEndpoint{
		streamFunc: func(string, []byte) (EventStream, error) { return upstream, nil },
	}, testLogger(), WithMetrics(metrics))
	require.NoError(t, err)

	stream, err := client.InvokeStream(context.Background(), "p")
	require.NoError(t, err)

	require.True(t, stream.Next())
	assert.Equal(t, "partial", stream.Current().Text)
	assert.False(t, stream.Next())
	assert.ErrorIs(t, stream.Err(), ErrRateLimited)
	assert.Empty(t, client.ActiveStreams())
	assert.Equal(t, 1, metrics.status(StatusFailed))
}

func TestClient_InvokeStreamOpenFailure(t *testing.T) {
	endpoint := &fakeEndpoint{
		streamFunc: func(string, []byte) (EventStream, error) {
			return nil, &StatusError{StatusCode: 500}
		},
	}
	client, metrics := newTestClient(t, endpoint)

	_, err := client.InvokeStream(context.Background(), "p")
	assert.ErrorIs(t, err, ErrInvocation)
	assert.Empty(t, client.ActiveStreams())
	assert.Equal(t, 1, metrics.status(StatusFailed))
	assert.Equal(t, 0, metrics.inFlight)
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	upstream := &sliceStream{events: []string{claudeDelta("a"), claudeDelta("b")}}
	endpoint := &fakeEndpoint{
		streamFunc: func(string, []byte) (EventStream, error) { return upstream, nil },
	}
	client, metrics := newTestClient(t, endpoint)

	stream, err := client.InvokeStream(context.Background(), "p")
	require.NoError(t, err)
	require.True(t, stream.Next())

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())

	assert.False(t, stream.Next())
	assert.Equal(t, 1, upstream.closeCount())
	assert.Empty(t, client.ActiveStreams())
	assert.Equal(t, 1, metrics.status(StatusCancelled))
}

func TestClient_CloseForceClosesStreams(t *testing.T) {
	upstreams := []*sliceStream{
		{block: make(chan struct{})},
		{block: make(chan struct{})},
	}
	next := 0
	endpoint := &fakeEndpoint{
		streamFunc: func(string, []byte) (EventStream, error) {
			s := upstreams[next]
			next++
			return s, nil
		},
	}
	client, metrics := newTestClient(t, endpoint)

	s1, err := client.InvokeStream(context.Background(), "a")
	require.NoError(t, err)
	s2, err := client.InvokeStream(context.Background(), "b")
	require.NoError(t, err)
	assert.Len(t, client.ActiveStreams(), 2)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	assert.Empty(t, client.ActiveStreams())
	for _, up := range upstreams {
		assert.Equal(t, 1, up.closeCount())
	}
	assert.ErrorIs(t, s1.Err(), ErrClientClosed)
	assert.ErrorIs(t, s2.Err(), ErrClientClosed)
	assert.False(t, s1.Next())
	assert.Equal(t, 2, metrics.status(StatusCancelled))
	assert.Equal(t, 0, metrics.inFlight)
}
