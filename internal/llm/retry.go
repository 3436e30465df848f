package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

// Retrier re-runs an operation with exponential backoff. Only rate-limit
// errors and transient invocation failures are retried; formatting and
// parsing errors are returned immediately.
type Retrier struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleeper     func(time.Duration)
	logger      zerolog.Logger
}

// RetryOption configures a Retrier
type RetryOption func(*Retrier)

// WithRetryMaxAttempts overrides the attempt count (defaults to 3)
func WithRetryMaxAttempts(attempts int) RetryOption {
	return func(r *Retrier) { r.maxAttempts = attempts }
}

// WithRetryBackoff overrides the backoff delays
func WithRetryBackoff(baseDelay, maxDelay time.Duration) RetryOption {
	return func(r *Retrier) {
		r.baseDelay = baseDelay
		r.maxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests)
func WithSleeper(sleeper func(time.Duration)) RetryOption {
	return func(r *Retrier) { r.sleeper = sleeper }
}

// NewRetrier creates a retrier with the given options
func NewRetrier(logger zerolog.Logger, opts ...RetryOption) *Retrier {
	r := &Retrier{
		maxAttempts: defaultRetryAttempts,
		baseDelay:   defaultRetryBaseDelay,
		maxDelay:    defaultRetryMaxDelay,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs fn until it succeeds, returns a non-retryable error or the
// attempts are exhausted
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := r.attempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		delay, retry := r.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			if attempt > 1 {
				return fmt.Errorf("%s: failed after %d attempts: %w", op, attempt, err)
			}
			return err
		}

		r.logger.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Retrying model call")

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

func (r *Retrier) attempts() int {
	if r.maxAttempts <= 0 {
		return 1
	}
	return r.maxAttempts
}

// Retryable reports whether err is worth another attempt
func Retryable(err error) bool {
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) {
		return invErr.Transient()
	}
	return false
}

func (r *Retrier) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts {
		return 0, false
	}
	if ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	if !Retryable(err) {
		return 0, false
	}

	var rateErr *RateLimitError
	if errors.As(err, &rateErr) && rateErr.RetryAfter > 0 {
		return r.capDelay(rateErr.RetryAfter), true
	}
	return r.backoffDelay(attempt), true
}

func (r *Retrier) backoffDelay(attempt int) time.Duration {
	if r.baseDelay <= 0 {
		return 0
	}
	if attempt <= 0 {
		attempt = 1
	}

	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := r.baseDelay
	for i := 1; i < attempt; i++ {
		if r.maxDelay > 0 && delay > r.maxDelay/2 {
			delay = r.maxDelay
			break
		}
		delay *= 2
	}
	return r.capDelay(delay)
}

func (r *Retrier) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if r.maxDelay > 0 && delay > r.maxDelay {
		return r.maxDelay
	}
	return delay
}

func (r *Retrier) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if r.sleeper != nil {
		r.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
