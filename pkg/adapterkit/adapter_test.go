package adapterkit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type snapshotFeature struct {
	closed atomic.Int32
}

func (s *snapshotFeature) ReadSnapshotTagValues(context.Context, types.ReadSnapshotTagValuesRequest) (*stream.Channel[types.TagValueQueryResult], error) {
	return stream.FromSlice[types.TagValueQueryResult](nil), nil
}

func (s *snapshotFeature) CheckHealth(context.Context) (types.HealthCheckResult, error) {
	return types.HealthCheckResult{Status: types.HealthDegraded, Description: "custom"}, nil
}

func (s *snapshotFeature) Close() error {
	s.closed.Add(1)
	return nil
}

func TestNew_RequiresID(t *testing.T) {
	_, err := New(Descriptor{})
	require.Error(t, err)
	assert.True(t, akerrors.IsConfiguration(err))
}

func TestNew_DuplicateFeature(t *testing.T) {
	f := &snapshotFeature{}
	_, err := New(Descriptor{ID: "a"},
		WithLogger(quietLogger()),
		WithFeature(features.KeyReadSnapshotTagValues, f),
		WithFeature(features.KeyReadSnapshotTagValues, f),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, akerrors.ErrDuplicateFeature)
}

func TestAdapter_BuiltinHealthCheck(t *testing.T) {
	ctx := context.Background()
	a, err := New(Descriptor{ID: "a"}, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, StateCreated, a.State())
	assert.False(t, a.Features().Has(features.KeyHealthCheck))

	require.NoError(t, a.Start(ctx))
	assert.Equal(t, StateRunning, a.State())

	hc, err := RequireFeature[features.HealthCheck](a, features.KeyHealthCheck)
	require.NoError(t, err)
	result, err := hc.CheckHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.HealthHealthy, result.Status)

	require.NoError(t, a.Stop(ctx))
	result, err = hc.CheckHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.HealthUnhealthy, result.Status)
	assert.Equal(t, "adapter is stopped", result.Description)
}

func TestAdapter_ProviderHealthCheckKept(t *testing.T) {
	ctx := context.Background()
	f := &snapshotFeature{}
	a, err := New(Descriptor{ID: "a"}, WithLogger(quietLogger()), WithProvider(f))
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	hc, ok := Feature[features.HealthCheck](a, features.KeyHealthCheck)
	require.True(t, ok)
	result, err := hc.CheckHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, "custom", result.Description)

	_, ok = Feature[features.ReadSnapshotTagValues](a, features.KeyReadSnapshotTagValues)
	assert.True(t, ok)
}

func TestAdapter_HookOrder(t *testing.T) {
	ctx := context.Background()
	var calls []string
	hook := func(name string) Hook {
		return func(context.Context) error {
			calls = append(calls, name)
			return nil
		}
	}

	a, err := New(Descriptor{ID: "a"},
		WithLogger(quietLogger()),
		OnStart(hook("start1")),
		OnStart(hook("start2")),
		OnStop(hook("stop1")),
		OnStop(hook("stop2")),
	)
	require.NoError(t, err)

	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.Stop(ctx))
	require.NoError(t, a.Stop(ctx))

	assert.Equal(t, []string{"start1", "start2", "stop2", "stop1"}, calls)
}

func TestAdapter_HookCanReadState(t *testing.T) {
	ctx := context.Background()
	var seen State
	var a *Adapter
	a, err := New(Descriptor{ID: "a"},
		WithLogger(quietLogger()),
		OnStart(func(context.Context) error {
			seen = a.State()
			return nil
		}),
	)
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	assert.Equal(t, StateCreated, seen)
}

func TestAdapter_StartHookFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	stopped := false
	a, err := New(Descriptor{ID: "a"},
		WithLogger(quietLogger()),
		OnStart(func(context.Context) error { return boom }),
		OnStop(func(context.Context) error {
			stopped = true
			return nil
		}),
	)
	require.NoError(t, err)

	err = a.Start(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, akerrors.CategoryRuntime, akerrors.Categorize(err))
	assert.Equal(t, StateCreated, a.State())

	require.NoError(t, a.Stop(ctx))
	assert.False(t, stopped, "stop hooks only run for a started adapter")
}

func TestAdapter_StopDisposesOnce(t *testing.T) {
	ctx := context.Background()
	f := &snapshotFeature{}
	stopErr := errors.New("flush failed")
	a, err := New(Descriptor{ID: "a"},
		WithLogger(quietLogger()),
		WithProvider(f),
		OnStop(func(context.Context) error { return stopErr }),
	)
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))

	err = a.Stop(ctx)
	assert.ErrorIs(t, err, stopErr)
	assert.Equal(t, int32(1), f.closed.Load())
	assert.Equal(t, 0, a.Features().Len())

	require.NoError(t, a.Stop(ctx))
	assert.Equal(t, int32(1), f.closed.Load())

	err = a.Start(ctx)
	assert.ErrorIs(t, err, akerrors.ErrClosed)
	assert.Equal(t, StateStopped, a.State())
}

func TestRequireFeature(t *testing.T) {
	ctx := context.Background()
	a, err := New(Descriptor{ID: "a"}, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = RequireFeature[features.HealthCheck](a, features.KeyHealthCheck)
	assert.ErrorIs(t, err, akerrors.ErrNotRunning)

	require.NoError(t, a.Start(ctx))
	_, err = RequireFeature[features.TagSearch](a, features.KeyTagSearch)
	assert.ErrorIs(t, err, akerrors.ErrFeatureNotFound)
	assert.True(t, akerrors.IsNotFound(err))
}

func TestAdapter_DescriptorIsCopied(t *testing.T) {
	props := map[string]string{"site": "north"}
	a, err := New(Descriptor{ID: "a", Name: "Alpha", Properties: props}, WithLogger(quietLogger()))
	require.NoError(t, err)

	props["site"] = "south"
	d := a.Descriptor()
	assert.Equal(t, "north", d.Properties["site"])

	d.Properties["site"] = "east"
	assert.Equal(t, "north", a.Descriptor().Properties["site"])
	assert.Equal(t, "Alpha", a.Descriptor().Name)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopped", StateStopped.String())
}
