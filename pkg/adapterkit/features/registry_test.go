package features

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

type healthFeature struct {
	name   string
	closed atomic.Int32
}

func (h *healthFeature) CheckHealth(context.Context) (types.HealthCheckResult, error) {
	return types.HealthCheckResult{Status: types.HealthHealthy, Description: h.name}, nil
}

func (h *healthFeature) Close() error {
	h.closed.Add(1)
	return nil
}

// multiFeature implements two standard contracts and both release styles.
type multiFeature struct {
	healthFeature
	shutdowns atomic.Int32
}

func (m *multiFeature) ReadSnapshotTagValues(context.Context, types.ReadSnapshotTagValuesRequest) (*stream.Channel[types.TagValueQueryResult], error) {
	return stream.FromSlice[types.TagValueQueryResult](nil), nil
}

func (m *multiFeature) Shutdown(context.Context) error {
	m.shutdowns.Add(1)
	return nil
}

type shutdownFeature struct {
	calls atomic.Int32
	err   error
}

func (s *shutdownFeature) CheckHealth(context.Context) (types.HealthCheckResult, error) {
	return types.HealthCheckResult{}, nil
}

func (s *shutdownFeature) Shutdown(context.Context) error {
	s.calls.Add(1)
	return s.err
}

type panickyFeature struct{}

func (panickyFeature) CheckHealth(context.Context) (types.HealthCheckResult, error) {
	return types.HealthCheckResult{}, nil
}

func (panickyFeature) Close() error { panic("close exploded") }

type fakeExtension struct {
	healthFeature
	uri FeatureKey
}

func (f *fakeExtension) Descriptor() FeatureDescriptor {
	return FeatureDescriptor{URI: f.uri, DisplayName: "Fake"}
}

func (f *fakeExtension) GetOperations(context.Context) ([]ExtensionOperationDescriptor, error) {
	return nil, nil
}

func (f *fakeExtension) Invoke(context.Context, string, []byte) ([]byte, error) {
	return nil, akerrors.ErrOperationNotFound
}

func (f *fakeExtension) Stream(context.Context, string, []byte) (*stream.Channel[[]byte], error) {
	return nil, akerrors.ErrOperationNotFound
}

func (f *fakeExtension) DuplexStream(context.Context, string, *stream.Channel[[]byte]) (*stream.Channel[[]byte], error) {
	return nil, akerrors.ErrOperationNotFound
}

type declaredProvider struct {
	set map[FeatureKey]any
}

func (p declaredProvider) Features() map[FeatureKey]any { return p.set }

func quietRegistry() (*Registry, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewRegistry(WithLogger(logger)), buf
}

func TestAddAndGet(t *testing.T) {
	r, _ := quietRegistry()
	h := &healthFeature{name: "one"}

	require.NoError(t, r.Add(KeyHealthCheck, h))

	assert.Same(t, h, r.Get(KeyHealthCheck))
	assert.Nil(t, r.Get(KeyReadRawTagValues))

	got, ok := Lookup[HealthCheck](r, KeyHealthCheck)
	require.True(t, ok)
	res, err := got.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "one", res.Description)

	_, ok = Lookup[ReadRawTagValues](r, KeyHealthCheck)
	assert.False(t, ok)
}

func TestAddDuplicateKeepsFirst(t *testing.T) {
	r, _ := quietRegistry()
	first := &healthFeature{name: "first"}
	second := &healthFeature{name: "second"}

	require.NoError(t, r.Add(KeyHealthCheck, first))

	err := r.Add(KeyHealthCheck, second)
	assert.ErrorIs(t, err, akerrors.ErrDuplicateFeature)
	assert.True(t, akerrors.IsConfiguration(err))
	assert.Same(t, first, r.Get(KeyHealthCheck))

	assert.NoError(t, r.Add(KeyHealthCheck, second, IgnoreDuplicate()))
	assert.Same(t, first, r.Get(KeyHealthCheck))
}

func TestAddInvalidFeature(t *testing.T) {
	r, _ := quietRegistry()

	assert.ErrorIs(t, r.Add(KeyHealthCheck, struct{}{}), akerrors.ErrInvalidFeature)
	assert.ErrorIs(t, r.Add(KeyHealthCheck, nil), akerrors.ErrInvalidFeature)
	assert.ErrorIs(t, r.Add(KeyReadRawTagValues, &healthFeature{}), akerrors.ErrInvalidFeature)
	assert.ErrorIs(t, r.Add(ExtensionKey("acme", "ping"), &healthFeature{}), akerrors.ErrInvalidFeature)
	assert.Equal(t, 0, r.Len())
}

func TestAddInvalidKey(t *testing.T) {
	r, _ := quietRegistry()
	h := &healthFeature{}

	for _, key := range []FeatureKey{
		"",
		"http://example.com/health/",
		"asc:features/diagnostics/health-check",
		"asc:features/diagnostics/unknown/",
		"asc:extensions/acme/",
		"asc:extensions/acme//ping/",
	} {
		t.Run(string(key), func(t *testing.T) {
			assert.ErrorIs(t, r.Add(key, h), akerrors.ErrInvalidFeatureKey)
		})
	}
}

func TestRemoveAndClear(t *testing.T) {
	r, _ := quietRegistry()
	h := &healthFeature{}
	require.NoError(t, r.Add(KeyHealthCheck, h))

	assert.True(t, r.Remove(KeyHealthCheck))
	assert.False(t, r.Remove(KeyHealthCheck))
	assert.Nil(t, r.Get(KeyHealthCheck))

	require.NoError(t, r.Add(KeyHealthCheck, h))
	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, int32(0), h.closed.Load(), "Clear must not dispose")
}

func TestAddFromProviderProbesContracts(t *testing.T) {
	r, _ := quietRegistry()
	m := &multiFeature{}

	require.NoError(t, r.AddFromProvider(m, true, true))

	assert.Equal(t, []FeatureKey{KeyHealthCheck, KeyReadSnapshotTagValues}, r.Keys())
	assert.Same(t, m, r.Get(KeyReadSnapshotTagValues))
}

func TestAddFromProviderIncludeFlags(t *testing.T) {
	r, _ := quietRegistry()
	ext := &fakeExtension{uri: ExtensionKey("acme", "fake")}

	require.NoError(t, r.AddFromProvider(ext, false, true))
	assert.Equal(t, []FeatureKey{ExtensionKey("acme", "fake")}, r.Keys())

	require.NoError(t, r.AddFromProvider(ext, true, false))
	assert.Equal(t, []FeatureKey{ExtensionKey("acme", "fake"), KeyHealthCheck}, r.Keys())
}

func TestAddFromProviderNoCapabilities(t *testing.T) {
	r, _ := quietRegistry()

	assert.NoError(t, r.AddFromProvider(struct{ Name string }{"inert"}, true, true))
	assert.NoError(t, r.AddFromProvider(nil, true, true))
	assert.Equal(t, 0, r.Len())
}

func TestAddFromProviderSkipsExisting(t *testing.T) {
	r, _ := quietRegistry()
	first := &healthFeature{name: "first"}
	require.NoError(t, r.Add(KeyHealthCheck, first))

	require.NoError(t, r.AddFromProvider(&multiFeature{}, true, true))
	assert.Same(t, first, r.Get(KeyHealthCheck))
	assert.True(t, r.Has(KeyReadSnapshotTagValues))
}

func TestAddFromDeclaredProvider(t *testing.T) {
	r, _ := quietRegistry()
	h := &healthFeature{}

	err := r.AddFromProvider(declaredProvider{set: map[FeatureKey]any{
		KeyHealthCheck:      h,
		KeyReadRawTagValues: h, // does not implement the contract
	}}, true, true)

	assert.ErrorIs(t, err, akerrors.ErrInvalidFeature)
	assert.Same(t, h, r.Get(KeyHealthCheck))
	assert.False(t, r.Has(KeyReadRawTagValues))
}

func TestDisposeAllDeduplicatesAndIsolatesFailures(t *testing.T) {
	r, logs := quietRegistry()
	m := &multiFeature{}
	failing := &shutdownFeature{err: errors.New("shutdown failed")}
	ext := &fakeExtension{uri: ExtensionKey("acme", "fake")}

	require.NoError(t, r.Add(KeyHealthCheck, panickyFeature{}))
	require.NoError(t, r.Add(KeyReadSnapshotTagValues, m))
	require.NoError(t, r.Add(ExtensionKey("acme", "multi"), ext))
	require.NoError(t, r.Add(ExtensionKey("acme", "again"), ext))

	second, _ := quietRegistry()
	require.NoError(t, second.Add(KeyHealthCheck, failing))

	r.DisposeAll(context.Background())
	second.DisposeAll(context.Background())

	assert.Equal(t, int32(1), m.closed.Load(), "closer preferred and called once")
	assert.Equal(t, int32(0), m.shutdowns.Load())
	assert.Equal(t, int32(1), ext.closed.Load(), "same object under two keys disposed once")
	assert.Equal(t, int32(1), failing.calls.Load())
	assert.Equal(t, 0, r.Len())
	assert.Contains(t, logs.String(), "close exploded")
}

func TestDescriptors(t *testing.T) {
	r, _ := quietRegistry()
	require.NoError(t, r.Add(KeyHealthCheck, &healthFeature{}))
	require.NoError(t, r.AddFromProvider(&fakeExtension{uri: ExtensionKey("acme", "fake")}, false, true))

	descs := r.Descriptors()
	require.Len(t, descs, 2)
	assert.Equal(t, ExtensionKey("acme", "fake"), descs[0].URI)
	assert.Equal(t, "Fake", descs[0].DisplayName)
	assert.Equal(t, "Health Check", descs[1].DisplayName)
}

func TestStandardKeysHaveDescriptors(t *testing.T) {
	for _, key := range StandardKeys() {
		d, ok := StandardDescriptor(key)
		require.True(t, ok, key)
		assert.Equal(t, key, d.URI)
		assert.NoError(t, key.Validate())
	}
}
