// Package errors provides the error taxonomy shared by every adapterkit package.
//
// Errors fall into four categories:
//   - Configuration: programmer mistakes at registration time (duplicate or invalid
//     features, operations bound twice). Fix the code, do not retry.
//   - Validation: malformed query parameters, rejected before any streaming starts.
//   - NotFound: dispatch against an identifier that is not bound.
//   - Runtime: faults raised while a stream or handler is running.
//
// Transport shims use Categorize or HTTPStatus to map an error onto their own
// client-facing status codes.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how an error should be surfaced.
type Category int

const (
	// CategoryRuntime indicates a fault during execution.
	// Examples: a handler panicked, a publisher failed mid-stream.
	CategoryRuntime Category = iota

	// CategoryConfiguration indicates a registration-time programming error.
	// Examples: duplicate feature key, operation already bound.
	CategoryConfiguration

	// CategoryValidation indicates the caller supplied bad parameters.
	// Examples: start time after end time, non-positive sample interval.
	CategoryValidation

	// CategoryNotFound indicates the addressed operation or item does not exist.
	CategoryNotFound
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryRuntime:
		return "runtime"
	case CategoryConfiguration:
		return "configuration"
	case CategoryValidation:
		return "validation"
	case CategoryNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Sentinel errors for feature and operation registration.
var (
	// ErrDuplicateFeature indicates a feature key is already registered.
	ErrDuplicateFeature = errors.New("feature already registered")

	// ErrInvalidFeature indicates an implementation does not satisfy the contract its key denotes.
	ErrInvalidFeature = errors.New("implementation does not satisfy feature contract")

	// ErrInvalidFeatureKey indicates a malformed feature URI.
	ErrInvalidFeatureKey = errors.New("invalid feature key")

	// ErrOperationAlreadyBound indicates an extension operation ID is already bound.
	ErrOperationAlreadyBound = errors.New("operation already bound")

	// ErrDuplicateDataFunction indicates a data function ID is already registered.
	ErrDuplicateDataFunction = errors.New("data function already registered")
)

// Sentinel errors for query validation.
var (
	// ErrInvalidTimeRange indicates start >= end, or a target time that cannot be resolved.
	ErrInvalidTimeRange = errors.New("invalid time range")

	// ErrInvalidSampleInterval indicates a non-positive sample interval.
	ErrInvalidSampleInterval = errors.New("sample interval must be positive")

	// ErrUnknownTag indicates a tag name or ID could not be resolved.
	ErrUnknownTag = errors.New("unknown tag")

	// ErrUnsupportedDataFunction indicates an aggregation function name is not registered.
	ErrUnsupportedDataFunction = errors.New("unsupported data function")

	// ErrInvalidRequest indicates a request failed validation for another reason.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidCursor indicates a cursor token could not be decoded.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// Sentinel errors for dispatch and lifecycle.
var (
	// ErrOperationNotFound indicates dispatch against an unbound operation ID.
	ErrOperationNotFound = errors.New("operation not found")

	// ErrFeatureNotFound indicates a feature the caller requires is not registered.
	ErrFeatureNotFound = errors.New("feature not found")

	// ErrClosed indicates the component has been disposed.
	ErrClosed = errors.New("closed")

	// ErrNotRunning indicates the adapter has not been started.
	ErrNotRunning = errors.New("adapter not running")
)

// Error wraps an error with its category and the operation that produced it.
type Error struct {
	// Err is the underlying error, usually one of the sentinels above.
	Err error

	// Category indicates how this error should be surfaced.
	Category Category

	// Op describes what was being attempted (e.g. "features.add").
	Op string

	// Message is a human-readable detail.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Err.Error()
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a categorized error.
func New(category Category, op string, err error, message string) *Error {
	return &Error{Err: err, Category: category, Op: op, Message: message}
}

// Configuration creates a configuration error.
func Configuration(op string, err error, format string, args ...any) *Error {
	return New(CategoryConfiguration, op, err, fmt.Sprintf(format, args...))
}

// Validation creates a validation error.
func Validation(op string, err error, format string, args ...any) *Error {
	return New(CategoryValidation, op, err, fmt.Sprintf(format, args...))
}

// NotFound creates a not-found error.
func NotFound(op string, err error, format string, args ...any) *Error {
	return New(CategoryNotFound, op, err, fmt.Sprintf(format, args...))
}

// Runtime creates a runtime fault.
func Runtime(op string, err error, format string, args ...any) *Error {
	return New(CategoryRuntime, op, err, fmt.Sprintf(format, args...))
}

// Categorize determines how an error should be surfaced.
func Categorize(err error) Category {
	if err == nil {
		return CategoryRuntime
	}

	var catErr *Error
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	switch {
	case errors.Is(err, ErrDuplicateFeature),
		errors.Is(err, ErrInvalidFeature),
		errors.Is(err, ErrInvalidFeatureKey),
		errors.Is(err, ErrOperationAlreadyBound),
		errors.Is(err, ErrDuplicateDataFunction):
		return CategoryConfiguration
	case errors.Is(err, ErrInvalidTimeRange),
		errors.Is(err, ErrInvalidSampleInterval),
		errors.Is(err, ErrUnknownTag),
		errors.Is(err, ErrUnsupportedDataFunction),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidCursor):
		return CategoryValidation
	case errors.Is(err, ErrOperationNotFound),
		errors.Is(err, ErrFeatureNotFound):
		return CategoryNotFound
	}

	return CategoryRuntime
}

// IsValidation reports whether the error is a caller parameter error.
func IsValidation(err error) bool {
	return err != nil && Categorize(err) == CategoryValidation
}

// IsNotFound reports whether the error is a lookup miss on dispatch.
func IsNotFound(err error) bool {
	return err != nil && Categorize(err) == CategoryNotFound
}

// IsConfiguration reports whether the error is a registration-time mistake.
func IsConfiguration(err error) bool {
	return err != nil && Categorize(err) == CategoryConfiguration
}

// HTTPStatus maps an error onto the closest HTTP status code.
// Cancellation maps to 499 (client closed request), deadline to 504.
func HTTPStatus(err error) int {
	if err == nil {
		return 200
	}
	if errors.Is(err, context.Canceled) {
		return 499
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return 504
	}

	switch Categorize(err) {
	case CategoryValidation:
		return 400
	case CategoryNotFound:
		return 404
	default:
		return 500
	}
}
