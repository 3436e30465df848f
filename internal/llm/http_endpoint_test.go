package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPEndpoint_Invoke(t *testing.T) {
	var gotPath, gotAuth, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"generation":"hello"}`))
	}))
	defer server.Close()

	endpoint, err := NewHTTPEndpoint(server.URL+"/", "secret", nil, testLogger())
	require.NoError(t, err)

	resp, err := endpoint.Invoke(context.Background(), "meta.llama3-70b", []byte(`{"prompt":"hi"}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"generation":"hello"}`, string(resp.Body))
	assert.Equal(t, "/model/meta.llama3-70b/invoke", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, `{"prompt":"hi"}`, gotBody)
}

func TestHTTPEndpoint_InvokeStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("throttled"))
	}))
	defer server.Close()

	endpoint, err := NewHTTPEndpoint(server.URL, "", nil, testLogger())
	require.NoError(t, err)

	_, err = endpoint.Invoke(context.Background(), "m", []byte(`{}`))
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, 7*time.Second, statusErr.RetryAfter)
	assert.Equal(t, "throttled", statusErr.Body)
}

func TestHTTPEndpoint_InvokeStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/model/m/invoke-with-response-stream", r.URL.Path)
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "{\"generation\":\"part%d\"}\n\n", i)
		}
	}))
	defer server.Close()

	endpoint, err := NewHTTPEndpoint(server.URL, "", nil, testLogger())
	require.NoError(t, err)

	stream, err := endpoint.InvokeStream(context.Background(), "m", []byte(`{}`))
	require.NoError(t, err)
	defer stream.Close()

	var events []string
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		events = append(events, string(ev))
	}
	assert.Equal(t, []string{
		`{"generation":"part0"}`,
		`{"generation":"part1"}`,
		`{"generation":"part2"}`,
	}, events)
}

func TestHTTPEndpoint_WithClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"outputs":[{"text":"ok"}]}`))
	}))
	defer server.Close()

	cfg, err := NewModelConfig(WithProvider(ProviderMistral), WithModelID("mistral.mistral-7b-instruct-v0:2"))
	require.NoError(t, err)
	endpoint, err := NewHTTPEndpoint(server.URL, "", server.Client(), testLogger())
	require.NoError(t, err)
	client, err := NewClient(cfg, endpoint, testLogger())
	require.NoError(t, err)

	resp, err := client.Invoke(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
}

func TestNewHTTPEndpoint_RequiresURL(t *testing.T) {
	_, err := NewHTTPEndpoint("", "", nil, testLogger())
	assert.Error(t, err)
}

func TestParseRetryAfter(t *testing.T) {
	d, ok := parseRetryAfter("3")
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	_, ok = parseRetryAfter("")
	assert.False(t, ok)
	_, ok = parseRetryAfter("-1")
	assert.False(t, ok)
	_, ok = parseRetryAfter("soon")
	assert.False(t, ok)
}
