package adapterkit

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
)

// Hook runs during Start or Stop.
type Hook func(ctx context.Context) error

type keyedFeature struct {
	key  features.FeatureKey
	impl any
}

type options struct {
	logger    *slog.Logger
	features  []keyedFeature
	providers []any
	onStart   []Hook
	onStop    []Hook
}

// Option configures an Adapter.
type Option func(*options)

// WithLogger sets the adapter logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFeature registers impl under key when the adapter is created.
func WithFeature(key features.FeatureKey, impl any) Option {
	return func(o *options) {
		o.features = append(o.features, keyedFeature{key: key, impl: impl})
	}
}

// WithProvider registers every standard and extension feature provider
// implements. Keys already registered are skipped.
func WithProvider(provider any) Option {
	return func(o *options) {
		o.providers = append(o.providers, provider)
	}
}

// OnStart adds a hook run by Start, in the order added.
func OnStart(h Hook) Option {
	return func(o *options) {
		o.onStart = append(o.onStart, h)
	}
}

// OnStop adds a hook run by Stop, in reverse order, before features are
// disposed.
func OnStop(h Hook) Option {
	return func(o *options) {
		o.onStop = append(o.onStop, h)
	}
}
