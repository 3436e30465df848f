package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HTTPEndpoint talks to a model gateway that mirrors the Bedrock runtime
// REST layout:
//
//	POST {base}/model/{modelID}/invoke
//	POST {base}/model/{modelID}/invoke-with-response-stream  (newline-delimited JSON events)
type HTTPEndpoint struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPEndpoint creates an endpoint for a gateway at baseURL
func NewHTTPEndpoint(baseURL, apiKey string, client *http.Client, logger zerolog.Logger) (*HTTPEndpoint, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("http endpoint base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid http endpoint URL: %w", err)
	}
	if client == nil {
		client = &http.Client{}
	}

	return &HTTPEndpoint{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
		logger:  logger,
	}, nil
}

// Name implements Endpoint
func (e *HTTPEndpoint) Name() string { return "http" }

// Invoke implements Endpoint
func (e *HTTPEndpoint) Invoke(ctx context.Context, modelID string, body []byte) (*EndpointResponse, error) {
	resp, err := e.post(ctx, modelID, "invoke", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &StatusError{StatusCode: resp.StatusCode, RetryAfter: retryAfter, Body: string(data)}
	}

	e.logger.Debug().
		Str("model", modelID).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Msg("HTTP model invocation completed")

	return &EndpointResponse{StatusCode: resp.StatusCode, Body: data}, nil
}

// InvokeStream implements Endpoint
func (e *HTTPEndpoint) InvokeStream(ctx context.Context, modelID string, body []byte) (EventStream, error) {
	resp, err := e.post(ctx, modelID, "invoke-with-response-stream", body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &StatusError{StatusCode: resp.StatusCode, RetryAfter: retryAfter, Body: string(data)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &lineStream{body: resp.Body, scanner: scanner}, nil
}

func (e *HTTPEndpoint) post(ctx context.Context, modelID, action string, body []byte) (*http.Response, error) {
	endpoint := fmt.Sprintf("%s/model/%s/%s", e.baseURL, url.PathEscape(modelID), action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http endpoint error: %w", err)
	}
	return resp, nil
}

// lineStream yields one event per non-blank line
type lineStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func (s *lineStream) Recv() ([]byte, error) {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		event := make([]byte, len(line))
		copy(event, line)
		return event, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return nil, io.EOF
}

func (s *lineStream) Close() error {
	return s.body.Close()
}

// parseRetryAfter understands both delta-seconds and HTTP-date values
func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
