package redis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/eventstore"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/extensions"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/push"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, mr *miniredis.Miniredis) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testMessage(id string) types.EventMessage {
	return types.EventMessage{
		ID:        id,
		Timestamp: time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC),
		Category:  "alarm",
		Priority:  types.PriorityHigh,
		Message:   "boiler pressure high",
	}
}

// asyncReceive reads one message from sub on another goroutine. It must be
// started before publishing; miniredis delivers synchronously.
func asyncReceive(sub *miniredis.Subscriber) <-chan miniredis.PubsubMessage {
	ch := make(chan miniredis.PubsubMessage, 1)
	go func() {
		ch <- <-sub.Messages()
	}()
	return ch
}

func waitMessage(t *testing.T, ch <-chan miniredis.PubsubMessage) miniredis.PubsubMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pub/sub message")
		return miniredis.PubsubMessage{}
	}
}

func TestPublish(t *testing.T) {
	mr := miniredis.RunT(t)
	p := NewPublisher(newClient(t, mr), WithOrigin("north"), WithRetry(akerrors.NoRetry))

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	require.NoError(t, p.Publish(t.Context(), testMessage("m1")))

	msg := waitMessage(t, ch)
	assert.Equal(t, DefaultChannel, msg.Channel)

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(msg.Message), &env))
	assert.Equal(t, "north", env.Origin)
	assert.Equal(t, "m1", env.Message.ID)
	assert.Equal(t, types.PriorityHigh, env.Message.Priority)
	assert.True(t, env.Message.Timestamp.Equal(testMessage("m1").Timestamp))
}

func TestPublish_CustomChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	p := NewPublisher(newClient(t, mr), WithChannel("plant:events"), WithRetry(akerrors.NoRetry))

	sub := mr.NewSubscriber()
	sub.Subscribe("plant:events")
	ch := asyncReceive(sub)

	require.NoError(t, p.Publish(t.Context(), testMessage("m1")))
	assert.Equal(t, "plant:events", waitMessage(t, ch).Channel)
}

func TestPublish_RetriesThenFails(t *testing.T) {
	mr := miniredis.RunT(t)
	client := newClient(t, mr)
	mr.Close()

	p := NewPublisher(client,
		WithTimeout(200*time.Millisecond),
		WithRetry(akerrors.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: 10 * time.Millisecond,
			BackoffFactor:  1,
		}),
	)

	err := p.Publish(t.Context(), testMessage("m1"))
	require.Error(t, err)
	assert.Equal(t, akerrors.CategoryRuntime, akerrors.Categorize(err))
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestPublish_CancelledContext(t *testing.T) {
	mr := miniredis.RunT(t)
	p := NewPublisher(newClient(t, mr))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := p.Publish(ctx, testMessage("m1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRelay(t *testing.T) {
	mr := miniredis.RunT(t)
	p := NewPublisher(newClient(t, mr), WithRetry(akerrors.NoRetry), WithLogger(quietLogger()))

	events := push.NewEventMessageManager(push.Config{}, push.Hooks[types.EventMessage]{})
	defer events.Close()

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	ctx, cancel := context.WithCancel(t.Context())
	relayed := make(chan error, 1)
	go func() { relayed <- p.Relay(ctx, events) }()

	require.Eventually(t, events.HasSubscriptions, 5*time.Second, 10*time.Millisecond)
	assert.False(t, events.HasActiveSubscriptions(), "relay observes passively")

	require.True(t, events.Publish(testMessage("m1")))

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(waitMessage(t, ch).Message), &env))
	assert.Equal(t, "m1", env.Message.ID)

	cancel()
	select {
	case err := <-relayed:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}
	assert.Eventually(t, func() bool { return !events.HasSubscriptions() }, 5*time.Second, 10*time.Millisecond)
}

func TestRelay_EndsWhenSourceCloses(t *testing.T) {
	mr := miniredis.RunT(t)
	p := NewPublisher(newClient(t, mr))
	events := push.NewEventMessageManager(push.Config{}, push.Hooks[types.EventMessage]{})

	relayed := make(chan error, 1)
	go func() { relayed <- p.Relay(t.Context(), events) }()
	require.Eventually(t, events.HasSubscriptions, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, events.Close())
	select {
	case err := <-relayed:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestSubscriber_ToStore(t *testing.T) {
	mr := miniredis.RunT(t)
	store := eventstore.NewMemoryStore()
	defer store.Close()

	s := NewSubscriber(newClient(t, mr), WithOrigin("south"), WithLogger(quietLogger()))
	require.NoError(t, s.Listen(t.Context(), ToStore(store)))
	defer s.Close()

	body, err := json.Marshal(envelope{Origin: "north", Message: testMessage("m1")})
	require.NoError(t, err)
	own, err := json.Marshal(envelope{Origin: "south", Message: testMessage("m2")})
	require.NoError(t, err)

	assert.Equal(t, 1, mr.Publish(DefaultChannel, "not json"))
	assert.Equal(t, 1, mr.Publish(DefaultChannel, string(own)))
	assert.Equal(t, 1, mr.Publish(DefaultChannel, string(body)))

	require.Eventually(t, func() bool {
		n, err := store.Len(t.Context())
		return err == nil && n == 1
	}, 5*time.Second, 10*time.Millisecond)

	got, err := stream.Collect(t.Context(), mustRead(t, store))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "boiler pressure high", got[0].Message)

	origin, ok := relayedFrom(got[0])
	assert.True(t, ok)
	assert.Equal(t, "north", origin)
}

func mustRead(t *testing.T, store *eventstore.MemoryStore) *stream.Channel[types.EventMessage] {
	t.Helper()
	ts := testMessage("").Timestamp
	out, err := store.ReadEventMessagesForTimeRange(t.Context(), types.ReadEventMessagesForTimeRangeRequest{
		Start: ts.Add(-time.Hour),
		End:   ts.Add(time.Hour),
	})
	require.NoError(t, err)
	return out
}

func TestSubscriber_ListenTwice(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewSubscriber(newClient(t, mr))
	sink := func(context.Context, types.EventMessage) error { return nil }

	require.NoError(t, s.Listen(t.Context(), sink))
	defer s.Close()

	err := s.Listen(t.Context(), sink)
	assert.True(t, akerrors.IsConfiguration(err))
	assert.True(t, akerrors.IsConfiguration(s.Listen(t.Context(), nil)))
}

func TestSubscriber_CloseStopsLoop(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewSubscriber(newClient(t, mr))
	assert.Nil(t, s.Done())
	require.NoError(t, s.Close())

	require.NoError(t, s.Listen(t.Context(), func(context.Context, types.EventMessage) error { return nil }))
	done := s.Done()
	require.NoError(t, s.Close())

	select {
	case <-done:
	default:
		t.Fatal("listen loop still running after Close")
	}
	require.NoError(t, s.Close())
}

func TestPublisherToSubscriber_Msgpack(t *testing.T) {
	mr := miniredis.RunT(t)
	events := push.NewEventMessageManager(push.Config{}, push.Hooks[types.EventMessage]{})
	defer events.Close()

	local, err := events.Subscribe(t.Context(), types.SubscriptionActive)
	require.NoError(t, err)

	s := NewSubscriber(newClient(t, mr), WithCodec(extensions.MsgpackCodec{}), WithOrigin("south"))
	require.NoError(t, s.Listen(t.Context(), ToPush(events)))
	defer s.Close()

	p := NewPublisher(newClient(t, mr), WithCodec(extensions.MsgpackCodec{}), WithOrigin("north"), WithRetry(akerrors.NoRetry))
	require.NoError(t, p.Publish(t.Context(), testMessage("m1")))

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	got, err := local.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, "alarm", got.Category)
	assert.True(t, got.Timestamp.Equal(testMessage("m1").Timestamp))
}

func TestRelay_SkipsReceivedMessages(t *testing.T) {
	mr := miniredis.RunT(t)
	p := NewPublisher(newClient(t, mr), WithRetry(akerrors.NoRetry))
	events := push.NewEventMessageManager(push.Config{}, push.Hooks[types.EventMessage]{})
	defer events.Close()

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	go func() { _ = p.Relay(t.Context(), events) }()
	require.Eventually(t, events.HasSubscriptions, 5*time.Second, 10*time.Millisecond)

	received := testMessage("from-redis")
	received.Properties = []types.Property{{Name: OriginProperty, Value: types.StringVariant("north")}}
	require.True(t, events.Publish(received))
	require.True(t, events.Publish(testMessage("local")))

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(waitMessage(t, ch).Message), &env))
	assert.Equal(t, "local", env.Message.ID)
}
