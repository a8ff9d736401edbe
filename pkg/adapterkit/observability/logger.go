// Package observability provides structured logging, metrics and tracing for
// adapterkit components.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// Every Log helper accepts a nil logger.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds adapter context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "sim-1", "asc:features/real-time-data/read-snapshot/")
//	enriched.Info("reading") // includes adapter_id and feature
func EnrichLogger(logger *slog.Logger, adapterID, feature string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("adapter_id", adapterID),
		slog.String("feature", feature),
	)
}

// LogAdapterStart logs adapter start-up.
func LogAdapterStart(logger *slog.Logger, adapterID string, featureCount int) {
	if logger == nil {
		return
	}
	logger.Info("adapter started",
		slog.String("adapter_id", adapterID),
		slog.Int("features", featureCount),
	)
}

// LogAdapterStop logs adapter shutdown.
func LogAdapterStop(logger *slog.Logger, adapterID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("adapter stopped",
		slog.String("adapter_id", adapterID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogFeatureAdded logs a feature registration.
func LogFeatureAdded(logger *slog.Logger, key string) {
	if logger == nil {
		return
	}
	logger.Debug("feature registered",
		slog.String("feature", key),
	)
}

// LogFeatureSkipped logs a registration skipped because the key was taken.
func LogFeatureSkipped(logger *slog.Logger, key string) {
	if logger == nil {
		return
	}
	logger.Debug("feature already registered, skipping",
		slog.String("feature", key),
	)
}

// LogDisposeError logs a failure to release a feature (non-fatal).
func LogDisposeError(logger *slog.Logger, key string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("feature dispose failed",
		slog.String("feature", key),
		slog.String("error", err.Error()),
	)
}

// LogSubscriptionAdded logs a new push subscription.
func LogSubscriptionAdded(logger *slog.Logger, subscriptionID, caller, mode string) {
	if logger == nil {
		return
	}
	logger.Debug("subscription added",
		slog.String("subscription_id", subscriptionID),
		slog.String("caller", caller),
		slog.String("mode", mode),
	)
}

// LogSubscriptionRemoved logs a closed push subscription.
func LogSubscriptionRemoved(logger *slog.Logger, subscriptionID string) {
	if logger == nil {
		return
	}
	logger.Debug("subscription removed",
		slog.String("subscription_id", subscriptionID),
	)
}

// LogValueDropped logs a value discarded by a subscription's overflow policy.
func LogValueDropped(logger *slog.Logger, subscriptionID, policy string) {
	if logger == nil {
		return
	}
	logger.Debug("subscription queue full, value dropped",
		slog.String("subscription_id", subscriptionID),
		slog.String("policy", policy),
	)
}

// LogHookPanic logs a recovered panic from a lifecycle hook.
func LogHookPanic(logger *slog.Logger, hook string, recovered any) {
	if logger == nil {
		return
	}
	logger.Error("hook panicked",
		slog.String("hook", hook),
		slog.Any("panic", recovered),
	)
}

// LogOperationBound logs an extension operation binding.
func LogOperationBound(logger *slog.Logger, operationID, kind string) {
	if logger == nil {
		return
	}
	logger.Debug("extension operation bound",
		slog.String("operation_id", operationID),
		slog.String("kind", kind),
	)
}

// LogOperationError logs a failed extension operation.
func LogOperationError(logger *slog.Logger, operationID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("extension operation failed",
		slog.String("operation_id", operationID),
		slog.String("error", err.Error()),
	)
}

// LogQueryError logs a failed historical query.
func LogQueryError(logger *slog.Logger, op string, tag string, err error) {
	if logger == nil {
		return
	}
	logger.Error("query failed",
		slog.String("operation", op),
		slog.String("tag", tag),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
