package push

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

func tagValue(id, name string, v float64) types.TagValueQueryResult {
	return types.TagValueQueryResult{
		TagID:   id,
		TagName: name,
		Value:   types.NewTagValue(time.Unix(int64(v), 0), v, types.StatusGood, ""),
	}
}

type hookLog struct {
	mu      sync.Mutex
	added   [][]string
	removed [][]string
}

func (h *hookLog) hooks() SnapshotHooks {
	return SnapshotHooks{
		OnTagsAdded: func(tags []string) {
			h.mu.Lock()
			h.added = append(h.added, tags)
			h.mu.Unlock()
		},
		OnTagsRemoved: func(tags []string) {
			h.mu.Lock()
			h.removed = append(h.removed, tags)
			h.mu.Unlock()
		},
	}
}

func TestSnapshotFiltersByTag(t *testing.T) {
	s := NewSnapshotTagValueManager(Config{}, SnapshotHooks{})
	defer s.Close()
	ctx := context.Background()

	a, err := s.Subscribe(ctx, types.SubscriptionActive, "t1")
	require.NoError(t, err)
	b, err := s.Subscribe(ctx, types.SubscriptionActive, "t2")
	require.NoError(t, err)

	require.True(t, s.Publish(tagValue("t1", "t1", 1)))
	require.True(t, s.Publish(tagValue("t2", "t2", 2)))
	require.True(t, s.Publish(tagValue("t1", "t1", 3)))

	first := recv(t, a.Values())
	second := recv(t, a.Values())
	assert.Equal(t, "t1", first.TagID)
	assert.Equal(t, "t1", second.TagID)
	assert.Equal(t, types.Float64Variant(3), second.Value.Value)

	got := recv(t, b.Values())
	assert.Equal(t, "t2", got.TagID)
}

func TestSnapshotMatchesByName(t *testing.T) {
	s := NewSnapshotTagValueManager(Config{}, SnapshotHooks{})
	defer s.Close()

	sub, err := s.Subscribe(context.Background(), types.SubscriptionPassive, "Temperature")
	require.NoError(t, err)

	s.Publish(tagValue("id-7", "Temperature", 21))
	got := recv(t, sub.Values())
	assert.Equal(t, "id-7", got.TagID)
}

func TestSnapshotTagHooksFireOnFirstAndLast(t *testing.T) {
	var log hookLog
	s := NewSnapshotTagValueManager(Config{}, log.hooks())
	defer s.Close()
	ctx := context.Background()

	a, err := s.Subscribe(ctx, types.SubscriptionActive, "t1", "t2")
	require.NoError(t, err)
	b, err := s.Subscribe(ctx, types.SubscriptionActive, "t1")
	require.NoError(t, err)

	log.mu.Lock()
	assert.Equal(t, [][]string{{"t1", "t2"}}, log.added)
	log.mu.Unlock()
	assert.Equal(t, []string{"t1", "t2"}, s.SubscribedTags())

	require.NoError(t, a.Close())
	log.mu.Lock()
	assert.Equal(t, [][]string{{"t2"}}, log.removed)
	log.mu.Unlock()

	require.NoError(t, b.Close())
	log.mu.Lock()
	assert.Equal(t, [][]string{{"t2"}, {"t1"}}, log.removed)
	log.mu.Unlock()
	assert.Empty(t, s.SubscribedTags())
}

func TestSnapshotReplaysCachedValue(t *testing.T) {
	s := NewSnapshotTagValueManager(Config{}, SnapshotHooks{})
	defer s.Close()
	ctx := context.Background()

	first, err := s.Subscribe(ctx, types.SubscriptionActive, "t1")
	require.NoError(t, err)
	s.Publish(tagValue("t1", "t1", 5))
	recv(t, first.Values())

	late, err := s.Subscribe(ctx, types.SubscriptionActive)
	require.NoError(t, err)
	require.NoError(t, late.AddTags(ctx, "t1"))

	got := recv(t, late.Values())
	assert.Equal(t, types.Float64Variant(5), got.Value.Value)
}

func TestSnapshotUncachedAfterLastSubscriberLeaves(t *testing.T) {
	s := NewSnapshotTagValueManager(Config{}, SnapshotHooks{})
	defer s.Close()
	ctx := context.Background()

	first, err := s.Subscribe(ctx, types.SubscriptionActive, "t1")
	require.NoError(t, err)
	s.Publish(tagValue("t1", "t1", 5))
	recv(t, first.Values())
	require.NoError(t, first.Close())

	late, err := s.Subscribe(ctx, types.SubscriptionActive, "t1")
	require.NoError(t, err)
	assert.Len(t, late.Values(), 0)
}

func TestSnapshotRemoveTags(t *testing.T) {
	var log hookLog
	s := NewSnapshotTagValueManager(Config{}, log.hooks())
	defer s.Close()
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, types.SubscriptionActive, "t1", "t2")
	require.NoError(t, err)

	require.NoError(t, sub.RemoveTags(ctx, "t2", "missing"))
	assert.Equal(t, []string{"t1"}, sub.Tags())
	assert.Equal(t, []string{"t1"}, s.SubscribedTags())

	log.mu.Lock()
	assert.Equal(t, [][]string{{"t2"}}, log.removed)
	log.mu.Unlock()

	s.Publish(tagValue("t2", "t2", 1))
	s.Publish(tagValue("t1", "t1", 2))
	got := recv(t, sub.Values())
	assert.Equal(t, "t1", got.TagID)
}

func TestSnapshotHookPanicIsContained(t *testing.T) {
	s := NewSnapshotTagValueManager(Config{}, SnapshotHooks{
		OnTagsAdded: func([]string) { panic("source offline") },
	})
	defer s.Close()

	sub, err := s.Subscribe(context.Background(), types.SubscriptionActive, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, sub.Tags())
}

func TestSubscribeSnapshotTagValuesRequest(t *testing.T) {
	s := NewSnapshotTagValueManager(Config{}, SnapshotHooks{})
	defer s.Close()

	sub, err := s.SubscribeSnapshotTagValues(context.Background(), types.CreateSnapshotTagValueSubscriptionRequest{
		Tags: []string{"b", "a"},
		Mode: types.SubscriptionPassive,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, sub.Tags())
	assert.False(t, s.HasActiveSubscriptions())
	assert.True(t, s.HasSubscriptions())

	require.NoError(t, sub.Close())
	assert.False(t, s.HasSubscriptions())
}
