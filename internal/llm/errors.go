package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Sentinel kinds. Typed errors below match them through errors.Is.
var (
	ErrConfiguration     = errors.New("invalid model configuration")
	ErrRequestFormatting = errors.New("request formatting failed")
	ErrResponseParsing   = errors.New("response parsing failed")
	ErrRateLimited       = errors.New("model endpoint rate limited")
	ErrInvocation        = errors.New("model invocation failed")
)

// ConfigurationError lists every problem found while building a ModelConfig
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid model configuration: %s", strings.Join(e.Problems, "; "))
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// RequestFormattingError is raised when a body cannot be built for the
// configured provider. It is never retried.
type RequestFormattingError struct {
	Provider Provider
	ModelID  string
	Reason   string
}

func (e *RequestFormattingError) Error() string {
	return fmt.Sprintf("format request for provider %q (model %s): %s", e.Provider, e.ModelID, e.Reason)
}

func (e *RequestFormattingError) Is(target error) bool {
	return target == ErrRequestFormatting
}

// ResponseParsingError is raised when a response body is structurally invalid
type ResponseParsingError struct {
	Provider Provider
	Reason   string
	Err      error
}

func (e *ResponseParsingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s response: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s response: %s", e.Provider, e.Reason)
}

func (e *ResponseParsingError) Unwrap() error { return e.Err }

func (e *ResponseParsingError) Is(target error) bool {
	return target == ErrResponseParsing
}

// RateLimitError is raised when the endpoint answers 429
type RateLimitError struct {
	ModelID    string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model %s rate limited: %v", e.ModelID, e.Err)
	}
	return fmt.Sprintf("model %s rate limited", e.ModelID)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// InvocationError wraps any other non-2xx answer or transport failure.
// StatusCode is zero when the request never got an HTTP answer.
type InvocationError struct {
	ModelID    string
	StatusCode int
	Body       string
	Err        error
}

func (e *InvocationError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("invoke model %s: status %d: %v", e.ModelID, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("invoke model %s: status %d: %s", e.ModelID, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("invoke model %s: %v", e.ModelID, e.Err)
	default:
		return fmt.Sprintf("invoke model %s failed", e.ModelID)
	}
}

func (e *InvocationError) Unwrap() error { return e.Err }

func (e *InvocationError) Is(target error) bool {
	return target == ErrInvocation
}

// Transient reports whether retrying the same request may succeed
func (e *InvocationError) Transient() bool {
	switch {
	case e.StatusCode == 0:
		return !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, context.DeadlineExceeded)
	case e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}

// StatusError is returned by endpoints that know the HTTP status of a
// failed call. The client classifies it into RateLimitError or InvocationError.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
	Err        error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("endpoint returned status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("endpoint returned status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return e.Err }
