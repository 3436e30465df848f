package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrier_BackoffDelay(t *testing.T) {
	r := NewRetrier(testLogger(), WithRetryBackoff(100*time.Millisecond, 350*time.Millisecond))

	assert.Equal(t, 100*time.Millisecond, r.backoffDelay(1))
	assert.Equal(t, 200*time.Millisecond, r.backoffDelay(2))
	assert.Equal(t, 350*time.Millisecond, r.backoffDelay(3))
	assert.Equal(t, 350*time.Millisecond, r.backoffDelay(10))
}

func TestRetrier_StopsOnNonRetryable(t *testing.T) {
	r := NewRetrier(testLogger(), WithSleeper(func(time.Duration) {}))

	calls := 0
	err := r.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return &RequestFormattingError{Provider: "x", Reason: "bad"}
	})

	assert.ErrorIs(t, err, ErrRequestFormatting)
	assert.Equal(t, 1, calls)
}

func TestRetrier_ExhaustsAttempts(t *testing.T) {
	var sleeps int
	r := NewRetrier(testLogger(),
		WithRetryMaxAttempts(3),
		WithSleeper(func(time.Duration) { sleeps++ }),
	)

	calls := 0
	err := r.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return &InvocationError{ModelID: "m", StatusCode: 502}
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvocation)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, sleeps)
}

func TestRetrier_HonorsRetryAfter(t *testing.T) {
	var slept []time.Duration
	r := NewRetrier(testLogger(),
		WithRetryBackoff(time.Second, 5*time.Second),
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)

	calls := 0
	err := r.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls == 1 {
			return &RateLimitError{ModelID: "m", RetryAfter: 30 * time.Second}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second}, slept, "retry-after is capped by max delay")
}

func TestRetrier_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetrier(testLogger(), WithSleeper(func(time.Duration) { cancel() }))

	calls := 0
	err := r.Do(ctx, "op", func(context.Context) error {
		calls++
		return &RateLimitError{ModelID: "m"}
	})

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&RateLimitError{}))
	assert.True(t, Retryable(&InvocationError{StatusCode: 500}))
	assert.True(t, Retryable(&InvocationError{StatusCode: 408}))
	assert.True(t, Retryable(&InvocationError{Err: errors.New("reset")}))
	assert.False(t, Retryable(&InvocationError{StatusCode: 400}))
	assert.False(t, Retryable(&InvocationError{Err: context.DeadlineExceeded}))
	assert.False(t, Retryable(&ResponseParsingError{}))
	assert.False(t, Retryable(errors.New("plain")))
}
