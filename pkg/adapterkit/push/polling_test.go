package push

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// fakeSnapshotReader returns the configured value for every requested tag.
type fakeSnapshotReader struct {
	mu     sync.Mutex
	values map[string]float64
	reads  int
}

func (f *fakeSnapshotReader) set(tag string, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[tag] = v
}

func (f *fakeSnapshotReader) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeSnapshotReader) ReadSnapshotTagValues(_ context.Context, req types.ReadSnapshotTagValuesRequest) (*stream.Channel[types.TagValueQueryResult], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	out := make([]types.TagValueQueryResult, 0, len(req.Tags))
	for _, tag := range req.Tags {
		v, ok := f.values[tag]
		if !ok {
			continue
		}
		out = append(out, types.TagValueQueryResult{
			TagID:   tag,
			TagName: tag,
			Value:   types.NewTagValue(time.Unix(int64(v), 0), v, types.StatusGood, ""),
		})
	}
	return stream.FromSlice(out), nil
}

func TestPollingPublishesChanges(t *testing.T) {
	reader := &fakeSnapshotReader{values: map[string]float64{"t1": 1}}
	p := NewPollingSnapshotTagValuePush(reader, 5*time.Millisecond, Config{})
	defer p.Close()
	assert.False(t, p.IsPolling())

	sub, err := p.Subscribe(context.Background(), types.SubscriptionActive, "t1")
	require.NoError(t, err)
	assert.True(t, p.IsPolling())

	first := recv(t, sub.Values())
	assert.Equal(t, types.Float64Variant(1), first.Value.Value)

	// unchanged values are not republished
	assert.Eventually(t, func() bool { return reader.readCount() >= 3 }, 2*time.Second, time.Millisecond)
	assert.Len(t, sub.Values(), 0)

	reader.set("t1", 2)
	second := recv(t, sub.Values())
	assert.Equal(t, types.Float64Variant(2), second.Value.Value)
}

func TestPollingStopsWithLastTag(t *testing.T) {
	reader := &fakeSnapshotReader{values: map[string]float64{"t1": 1}}
	p := NewPollingSnapshotTagValuePush(reader, 5*time.Millisecond, Config{})
	defer p.Close()

	sub, err := p.Subscribe(context.Background(), types.SubscriptionActive, "t1")
	require.NoError(t, err)
	require.True(t, p.IsPolling())

	require.NoError(t, sub.Close())
	assert.False(t, p.IsPolling())

	again, err := p.Subscribe(context.Background(), types.SubscriptionActive, "t1")
	require.NoError(t, err)
	assert.True(t, p.IsPolling())

	// a fresh subscriber sees the current value even though it did not change
	got := recv(t, again.Values())
	assert.Equal(t, "t1", got.TagID)
}

func TestPollingCloseStopsLoop(t *testing.T) {
	reader := &fakeSnapshotReader{values: map[string]float64{}}
	p := NewPollingSnapshotTagValuePush(reader, time.Millisecond, Config{})

	_, err := p.Subscribe(context.Background(), types.SubscriptionActive, "t1")
	require.NoError(t, err)
	require.NoError(t, p.Close())
	assert.False(t, p.IsPolling())

	reads := reader.readCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, reads, reader.readCount())
}
