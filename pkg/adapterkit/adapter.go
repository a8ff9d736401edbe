package adapterkit

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"
	"time"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/observability"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// State is the lifecycle state of an Adapter.
type State int

// Adapter states.
const (
	StateCreated State = iota
	StateRunning
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "created"
	}
}

// Descriptor identifies an adapter.
type Descriptor struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// Adapter is a data-source connector exposing its capabilities through a
// feature registry.
type Adapter struct {
	descriptor Descriptor
	features   *features.Registry
	logger     *slog.Logger
	onStart    []Hook
	onStop     []Hook

	// lifecycle serializes Start and Stop; mu guards state so hooks may
	// query it.
	lifecycle sync.Mutex
	mu        sync.Mutex
	state     State
	started   time.Time
}

// New creates an adapter and registers the features given as options.
// Registration errors are returned here rather than at Start.
func New(descriptor Descriptor, opts ...Option) (*Adapter, error) {
	if descriptor.ID == "" {
		return nil, akerrors.Configuration("adapter.new", akerrors.ErrInvalidRequest, "adapter ID is required")
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger != nil {
		logger = logger.With(slog.String("adapter_id", descriptor.ID))
	}

	descriptor.Properties = maps.Clone(descriptor.Properties)
	a := &Adapter{
		descriptor: descriptor,
		features:   features.NewRegistry(features.WithLogger(logger)),
		logger:     logger,
		onStart:    o.onStart,
		onStop:     o.onStop,
	}

	for _, f := range o.features {
		if err := a.features.Add(f.key, f.impl); err != nil {
			return nil, err
		}
	}
	for _, p := range o.providers {
		if err := a.features.AddFromProvider(p, true, true); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Descriptor returns the adapter's identity.
func (a *Adapter) Descriptor() Descriptor {
	d := a.descriptor
	d.Properties = maps.Clone(d.Properties)
	return d
}

// Features returns the adapter's feature registry.
func (a *Adapter) Features() *features.Registry {
	return a.features
}

// State returns the lifecycle state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Start runs the start hooks and marks the adapter running. Starting a
// running adapter is a no-op; a stopped adapter cannot be restarted.
func (a *Adapter) Start(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	switch a.State() {
	case StateRunning:
		return nil
	case StateStopped:
		return akerrors.Runtime("adapter.start", akerrors.ErrClosed, "adapter %s was stopped", a.descriptor.ID)
	}

	if err := a.features.Add(features.KeyHealthCheck, &healthCheck{adapter: a}, features.IgnoreDuplicate()); err != nil {
		return err
	}
	for _, h := range a.onStart {
		if err := h(ctx); err != nil {
			return akerrors.Runtime("adapter.start", err, "start hook failed")
		}
	}

	a.mu.Lock()
	a.state = StateRunning
	a.started = time.Now()
	a.mu.Unlock()
	observability.LogAdapterStart(a.logger, a.descriptor.ID, a.features.Len())
	return nil
}

// Stop runs the stop hooks in reverse order and disposes every feature.
// Hook errors are joined and returned after disposal; they do not stop it.
func (a *Adapter) Stop(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.mu.Lock()
	prev, started := a.state, a.started
	a.state = StateStopped
	a.mu.Unlock()
	if prev == StateStopped {
		return nil
	}

	var errs []error
	if prev == StateRunning {
		for i := len(a.onStop) - 1; i >= 0; i-- {
			if err := a.onStop[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	a.features.DisposeAll(ctx)

	if prev == StateRunning {
		observability.LogAdapterStop(a.logger, a.descriptor.ID, float64(time.Since(started).Microseconds())/1000)
	}
	return errors.Join(errs...)
}

// Feature returns the feature registered under key as a T.
func Feature[T any](a *Adapter, key features.FeatureKey) (T, bool) {
	return features.Lookup[T](a.features, key)
}

// RequireFeature is like Feature but fails with ErrNotRunning before Start
// and ErrFeatureNotFound when the adapter lacks the feature.
func RequireFeature[T any](a *Adapter, key features.FeatureKey) (T, error) {
	var zero T
	if a.State() != StateRunning {
		return zero, akerrors.Runtime("adapter.feature", akerrors.ErrNotRunning, "%s", a.descriptor.ID)
	}
	impl, ok := Feature[T](a, key)
	if !ok {
		return zero, akerrors.NotFound("adapter.feature", akerrors.ErrFeatureNotFound, "%s", key)
	}
	return impl, nil
}

// healthCheck is registered at Start when the adapter has no health check
// of its own.
type healthCheck struct {
	adapter *Adapter
}

func (h *healthCheck) CheckHealth(context.Context) (types.HealthCheckResult, error) {
	if state := h.adapter.State(); state != StateRunning {
		return types.HealthCheckResult{
			Status:      types.HealthUnhealthy,
			Description: "adapter is " + state.String(),
			Error:       akerrors.ErrNotRunning.Error(),
		}, nil
	}
	return types.HealthCheckResult{
		Status:      types.HealthHealthy,
		Description: "adapter is running",
	}, nil
}
