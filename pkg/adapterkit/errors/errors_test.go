package errors

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryString(t *testing.T) {
	tests := []struct {
		category Category
		want     string
	}{
		{CategoryRuntime, "runtime"},
		{CategoryConfiguration, "configuration"},
		{CategoryValidation, "validation"},
		{CategoryNotFound, "not_found"},
		{Category(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.category.String())
		})
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"duplicate feature", ErrDuplicateFeature, CategoryConfiguration},
		{"wrapped invalid feature", fmt.Errorf("add: %w", ErrInvalidFeature), CategoryConfiguration},
		{"already bound", ErrOperationAlreadyBound, CategoryConfiguration},
		{"time range", ErrInvalidTimeRange, CategoryValidation},
		{"interval", ErrInvalidSampleInterval, CategoryValidation},
		{"unknown tag", ErrUnknownTag, CategoryValidation},
		{"cursor", ErrInvalidCursor, CategoryValidation},
		{"operation not found", ErrOperationNotFound, CategoryNotFound},
		{"plain error", errors.New("boom"), CategoryRuntime},
		{"nil", nil, CategoryRuntime},
		{
			"explicit category wins",
			Runtime("pump", ErrUnknownTag, "odd but explicit"),
			CategoryRuntime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.err))
		})
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	err := Validation("aggregation.query", ErrInvalidTimeRange, "start %s is after end", "10:00")

	assert.Equal(t, "aggregation.query: start 10:00 is after end: invalid time range", err.Error())
	assert.ErrorIs(t, err, ErrInvalidTimeRange)
	assert.True(t, IsValidation(err))
	assert.False(t, IsNotFound(err))
	assert.False(t, IsConfiguration(err))

	bare := &Error{Err: ErrClosed}
	assert.Equal(t, "closed", bare.Error())
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 200, HTTPStatus(nil))
	assert.Equal(t, 400, HTTPStatus(ErrInvalidSampleInterval))
	assert.Equal(t, 404, HTTPStatus(NotFound("invoke", ErrOperationNotFound, "op %q", "x")))
	assert.Equal(t, 500, HTTPStatus(errors.New("fault")))
	assert.Equal(t, 500, HTTPStatus(ErrDuplicateFeature))
	assert.Equal(t, 499, HTTPStatus(context.Canceled))
	assert.Equal(t, 504, HTTPStatus(fmt.Errorf("read: %w", context.DeadlineExceeded)))
}

func TestWithRetryContext_SucceedsAfterRuntimeFaults(t *testing.T) {
	var calls atomic.Int32
	cfg := RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, BackoffFactor: 1}

	result := WithRetryContext(context.Background(), cfg, func(context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("connection reset")
		}
		return "ok", nil
	})

	require.NoError(t, result.Err)
	assert.Equal(t, "ok", result.Value)
	assert.Equal(t, 3, result.Attempts)
}

func TestWithRetryContext_DoesNotRetryValidation(t *testing.T) {
	var calls atomic.Int32
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Millisecond}

	result := WithRetryContext(context.Background(), cfg, func(context.Context) (int, error) {
		calls.Add(1)
		return 0, ErrInvalidRequest
	})

	assert.ErrorIs(t, result.Err, ErrInvalidRequest)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWithRetryContext_Exhausted(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}
	fault := errors.New("unavailable")

	result := WithRetryContext(context.Background(), cfg, func(context.Context) (int, error) {
		return 0, fault
	})

	assert.ErrorIs(t, result.Err, fault)
	assert.Equal(t, 2, result.Attempts)
}

func TestWithRetryContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := WithRetryContext(ctx, DefaultRetry, func(context.Context) (int, error) {
		t.Fatal("fn must not run after cancellation")
		return 0, nil
	})

	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Equal(t, 0, result.Attempts)
}

func TestJittered(t *testing.T) {
	assert.Equal(t, time.Second, jittered(time.Second, 0))

	for i := 0; i < 100; i++ {
		d := jittered(time.Second, 0.5)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}
