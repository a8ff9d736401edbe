package errors

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryConfig configures retries of calls to an external system, such as a
// broker or a remote adapter.
type RetryConfig struct {
	// MaxAttempts counts the first call. Values below 1 mean a single call.
	MaxAttempts int

	// InitialBackoff is the wait after the first failure. Each later wait is
	// BackoffFactor times the previous one, capped at MaxBackoff when set.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64

	// Jitter spreads each wait by up to this fraction either way.
	Jitter float64

	// RetryableFunc replaces IsRetryable when set.
	RetryableFunc func(error) bool
}

// DefaultRetry makes three attempts starting at a 500ms backoff.
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry makes a single attempt.
var NoRetry = RetryConfig{
	MaxAttempts: 1,
}

// RetryResult is the outcome of WithRetryContext.
type RetryResult[T any] struct {
	Value    T
	Err      error
	Attempts int
	Duration time.Duration
}

// IsRetryable reports whether an error is worth another attempt.
// Only runtime faults are retried; configuration, validation and not-found
// errors will fail the same way again, and cancellation is final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return Categorize(err) == CategoryRuntime
}

// WithRetryContext calls fn until it succeeds, returns an error that is not
// retryable, or runs out of attempts. Cancellation of ctx stops it between
// attempts and during backoff.
func WithRetryContext[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) RetryResult[T] {
	start := time.Now()
	var zero T
	done := func(v T, err error, attempts int) RetryResult[T] {
		return RetryResult[T]{Value: v, Err: err, Attempts: attempts, Duration: time.Since(start)}
	}

	attempts := max(cfg.MaxAttempts, 1)
	retryable := cfg.RetryableFunc
	if retryable == nil {
		retryable = IsRetryable
	}

	backoff := cfg.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return done(zero, Runtime("retry", err, "context cancelled"), attempt-1)
		}
		v, err := fn(ctx)
		if err == nil {
			return done(v, nil, attempt)
		}
		if !retryable(err) {
			return done(zero, err, attempt)
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return done(zero, Runtime("retry", ctx.Err(), "context cancelled during backoff"), attempt)
		case <-time.After(jittered(backoff, cfg.Jitter)):
		}
		backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
		if cfg.MaxBackoff > 0 {
			backoff = min(backoff, cfg.MaxBackoff)
		}
	}
	return done(zero, Runtime("retry", lastErr, "max retries exceeded"), attempts)
}

func jittered(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	return time.Duration(float64(d) * (1 + jitter*(rand.Float64()*2-1)))
}
