package redis

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/push"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// Sink receives relayed messages.
type Sink func(ctx context.Context, msg types.EventMessage) error

// ToStore writes relayed messages to w, so they are stored and forwarded to
// the store's subscribers.
func ToStore(w features.WriteEventMessages) Sink {
	return func(ctx context.Context, msg types.EventMessage) error {
		results, err := w.WriteEventMessages(ctx, []types.WriteEventMessageItem{{Message: msg}})
		if err != nil {
			return err
		}
		written, err := stream.Collect(ctx, results)
		if err != nil {
			return err
		}
		for _, r := range written {
			if r.Status != types.WriteStatusSuccess {
				return akerrors.Runtime("redis.sink", akerrors.ErrInvalidRequest, "message %s not stored: %s", msg.ID, r.Notes)
			}
		}
		return nil
	}
}

// ToPush publishes relayed messages to m's subscribers without storing them.
func ToPush(m *push.EventMessageManager) Sink {
	return func(_ context.Context, msg types.EventMessage) error {
		if !m.Publish(msg) {
			return akerrors.Runtime("redis.sink", akerrors.ErrClosed, "message %s not queued", msg.ID)
		}
		return nil
	}
}

// Subscriber receives event messages from a Redis channel.
type Subscriber struct {
	client goredis.UniversalClient
	opts   options

	mu     sync.Mutex
	pubsub *goredis.PubSub
	done   chan struct{}
}

// NewSubscriber creates a subscriber over client. The client is not closed
// by the subscriber.
func NewSubscriber(client goredis.UniversalClient, opts ...Option) *Subscriber {
	return &Subscriber{client: client, opts: buildOptions(opts)}
}

// Listen subscribes to the channel and returns once Redis has confirmed the
// subscription. Messages are then handed to sink until ctx is cancelled or
// Close is called. Undecodable messages and sink failures are logged.
func (s *Subscriber) Listen(ctx context.Context, sink Sink) error {
	if sink == nil {
		return akerrors.Configuration("redis.listen", akerrors.ErrInvalidRequest, "nil sink")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pubsub != nil {
		return akerrors.Configuration("redis.listen", akerrors.ErrInvalidRequest, "already listening on %s", s.opts.channel)
	}

	ps := s.client.Subscribe(ctx, s.opts.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return akerrors.Runtime("redis.listen", err, "subscribe %s", s.opts.channel)
	}

	s.pubsub = ps
	s.done = make(chan struct{})
	go s.loop(ctx, ps, sink, s.done)
	return nil
}

func (s *Subscriber) loop(ctx context.Context, ps *goredis.PubSub, sink Sink, done chan struct{}) {
	defer close(done)
	messages := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = ps.Close()
			return
		case m, ok := <-messages:
			if !ok {
				return
			}
			s.handle(ctx, m.Payload, sink)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, payload string, sink Sink) {
	var env envelope
	if err := s.opts.codec.Unmarshal([]byte(payload), &env); err != nil {
		s.warn("undecodable event message dropped", "", err)
		return
	}
	if s.opts.origin != "" && env.Origin == s.opts.origin {
		return
	}
	msg := env.Message
	if _, tagged := relayedFrom(msg); !tagged {
		msg.Properties = append(slices.Clone(msg.Properties), types.Property{
			Name:  OriginProperty,
			Value: types.StringVariant(env.Origin),
		})
	}
	if err := sink(ctx, msg); err != nil && ctx.Err() == nil {
		s.warn("relayed event message not delivered", msg.ID, err)
	}
}

func (s *Subscriber) warn(msg, messageID string, err error) {
	if s.opts.logger == nil {
		return
	}
	s.opts.logger.Warn(msg,
		slog.String("channel", s.opts.channel),
		slog.String("message_id", messageID),
		slog.String("error", err.Error()),
	)
}

// Done is closed when the listen loop has exited. It is nil before Listen.
func (s *Subscriber) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Close unsubscribes and waits for the listen loop to exit. It is safe to
// call more than once.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	ps, done := s.pubsub, s.done
	s.mu.Unlock()
	if ps == nil {
		return nil
	}
	_ = ps.Close()
	<-done
	return nil
}
