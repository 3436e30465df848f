package llm

import (
	"context"
)

// Endpoint submits formatted request bodies to a hosted model.
//
// Implementations report HTTP failures either through a non-2xx
// EndpointResponse.StatusCode or by returning a *StatusError; the client
// classifies both the same way. Any other error is treated as a transport
// failure.
type Endpoint interface {
	// Invoke performs a single synchronous call
	Invoke(ctx context.Context, modelID string, body []byte) (*EndpointResponse, error)

	// InvokeStream opens a streaming call. Each element received from the
	// returned stream is one provider event encoded as JSON.
	InvokeStream(ctx context.Context, modelID string, body []byte) (EventStream, error)

	// Name identifies the endpoint in logs
	Name() string
}

// EndpointResponse is the raw answer of a synchronous call
type EndpointResponse struct {
	StatusCode int
	Body       []byte
}

// EventStream yields raw provider events in arrival order.
// Recv returns io.EOF once the upstream has finished.
type EventStream interface {
	Recv() ([]byte, error)
	Close() error
}
