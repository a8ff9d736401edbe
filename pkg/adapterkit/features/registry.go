package features

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"slices"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/observability"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/registry"
)

// Provider declares the features an object offers explicitly.
// AddFromProvider uses this set instead of probing the object's contracts.
type Provider interface {
	Features() map[FeatureKey]any
}

// Registry maps feature keys to the objects implementing them.
// One object may be registered under several keys.
type Registry struct {
	entries *registry.Registry[FeatureKey, any]
	logger  *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used for registration and disposal messages.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty feature registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: registry.New[FeatureKey, any](),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type addConfig struct {
	ignoreDuplicate bool
}

// AddOption configures a single Add call.
type AddOption func(*addConfig)

// IgnoreDuplicate makes Add skip silently when the key is already registered.
// Used for built-in defaults that an adapter may already have supplied.
func IgnoreDuplicate() AddOption {
	return func(c *addConfig) {
		c.ignoreDuplicate = true
	}
}

// Add registers impl under key.
//
// Returns ErrInvalidFeatureKey for a malformed or unknown standard key,
// ErrInvalidFeature when impl does not implement the key's contract, and
// ErrDuplicateFeature when the key is taken (unless IgnoreDuplicate is given).
func (r *Registry) Add(key FeatureKey, impl any, opts ...AddOption) error {
	var cfg addConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := key.Validate(); err != nil {
		return err
	}
	if key.IsStandard() {
		if _, known := contractsByKey[key]; !known {
			return akerrors.Configuration("features.add", akerrors.ErrInvalidFeatureKey, "unknown standard feature %q", key)
		}
	}
	if !Satisfies(key, impl) {
		return akerrors.Configuration("features.add", akerrors.ErrInvalidFeature, "%T does not implement %s", impl, key)
	}

	if !r.entries.Add(key, impl) {
		if cfg.ignoreDuplicate {
			observability.LogFeatureSkipped(r.logger, string(key))
			return nil
		}
		return akerrors.Configuration("features.add", akerrors.ErrDuplicateFeature, "%s", key)
	}

	observability.LogFeatureAdded(r.logger, string(key))
	return nil
}

// AddFromProvider registers every feature provider offers.
//
// If provider implements Provider its declared set is used. Otherwise provider
// is checked against every standard contract, and registered under its
// descriptor URI if it is an ExtensionFeature. Keys that are already
// registered are skipped. A provider with no features is not an error.
func (r *Registry) AddFromProvider(provider any, includeStandard, includeExtension bool) error {
	if provider == nil {
		return nil
	}

	candidates := make(map[FeatureKey]any)
	if p, ok := provider.(Provider); ok {
		for key, impl := range p.Features() {
			candidates[key] = impl
		}
	} else {
		for _, c := range standardContracts {
			if c.satisfies(provider) {
				candidates[c.key] = provider
			}
		}
		if ext, ok := provider.(ExtensionFeature); ok {
			candidates[ext.Descriptor().URI] = ext
		}
	}

	keys := make([]FeatureKey, 0, len(candidates))
	for key := range candidates {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var errs []error
	for _, key := range keys {
		if key.IsExtension() && !includeExtension {
			continue
		}
		if !key.IsExtension() && !includeStandard {
			continue
		}
		if err := r.Add(key, candidates[key], IgnoreDuplicate()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get returns the feature registered under key, or nil.
func (r *Registry) Get(key FeatureKey) any {
	impl, _ := r.entries.Get(key)
	return impl
}

// Has reports whether key is registered.
func (r *Registry) Has(key FeatureKey) bool {
	return r.entries.Has(key)
}

// Lookup returns the feature registered under key as a T.
func Lookup[T any](r *Registry, key FeatureKey) (T, bool) {
	impl, ok := r.Get(key).(T)
	return impl, ok
}

// Remove unregisters key without disposing the feature.
func (r *Registry) Remove(key FeatureKey) bool {
	return r.entries.Remove(key)
}

// Clear unregisters every feature without disposing them.
func (r *Registry) Clear() {
	r.entries.Clear()
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []FeatureKey {
	keys := r.entries.Keys()
	slices.Sort(keys)
	return keys
}

// Len returns the number of registered keys.
func (r *Registry) Len() int {
	return r.entries.Len()
}

// Descriptors returns the descriptor of every registered feature, sorted by URI.
func (r *Registry) Descriptors() []FeatureDescriptor {
	keys := r.Keys()
	out := make([]FeatureDescriptor, 0, len(keys))
	for _, key := range keys {
		if d, ok := StandardDescriptor(key); ok {
			out = append(out, d)
			continue
		}
		if ext, ok := r.Get(key).(ExtensionFeature); ok {
			d := ext.Descriptor()
			d.URI = key
			out = append(out, d)
		}
	}
	return out
}

// DisposeAll unregisters every feature and releases each distinct object
// once. io.Closer is preferred over Shutdowner. Failures and panics are
// logged and do not stop the remaining objects from being released.
func (r *Registry) DisposeAll(ctx context.Context) {
	entries := r.entries.Clear()

	keys := make([]FeatureKey, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	seen := make(map[any]struct{}, len(entries))
	for _, key := range keys {
		impl := entries[key]
		if id, ok := identityOf(impl); ok {
			if _, done := seen[id]; done {
				continue
			}
			seen[id] = struct{}{}
		}
		if err := dispose(ctx, impl); err != nil {
			observability.LogDisposeError(r.logger, string(key), err)
		}
	}
}

func dispose(ctx context.Context, impl any) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic during dispose: %v", rec)
		}
	}()

	switch v := impl.(type) {
	case io.Closer:
		return v.Close()
	case Shutdowner:
		return v.Shutdown(ctx)
	default:
		return nil
	}
}

type pointerIdentity struct {
	typ reflect.Type
	ptr uintptr
}

// identityOf returns a map key that is equal for the same object.
// Values that cannot be compared are never deduplicated.
func identityOf(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return pointerIdentity{typ: rv.Type(), ptr: rv.Pointer()}, true
	}
	if rv.Comparable() {
		return v, true
	}
	return nil, false
}
