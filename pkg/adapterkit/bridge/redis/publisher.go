package redis

import (
	"context"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// Publisher sends event messages to a Redis channel.
type Publisher struct {
	client goredis.UniversalClient
	opts   options
}

// NewPublisher creates a publisher over client. The client is not closed by
// the publisher.
func NewPublisher(client goredis.UniversalClient, opts ...Option) *Publisher {
	return &Publisher{client: client, opts: buildOptions(opts)}
}

// Publish sends msg, retrying failed attempts per the retry policy.
func (p *Publisher) Publish(ctx context.Context, msg types.EventMessage) error {
	body, err := p.opts.codec.Marshal(envelope{Origin: p.opts.origin, Message: msg})
	if err != nil {
		return akerrors.Validation("redis.publish", akerrors.ErrInvalidRequest, "encode %s: %v", p.opts.codec.Name(), err)
	}

	cfg := p.opts.retry
	if cfg.RetryableFunc == nil {
		// Per-attempt timeouts are retried; cancellation of ctx is not.
		cfg.RetryableFunc = func(err error) bool {
			return ctx.Err() == nil && akerrors.Categorize(err) == akerrors.CategoryRuntime
		}
	}

	result := akerrors.WithRetryContext(ctx, cfg, func(ctx context.Context) (int64, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, p.opts.timeout)
		defer cancel()
		n, err := p.client.Publish(attemptCtx, p.opts.channel, body).Result()
		if err != nil {
			return 0, akerrors.Runtime("redis.publish", err, "channel %s", p.opts.channel)
		}
		return n, nil
	})
	return result.Err
}

// Relay subscribes passively to source and publishes every message it
// delivers until ctx is cancelled or the subscription closes. Messages
// received from Redis are not relayed; messages that cannot be published
// are logged and skipped.
func (p *Publisher) Relay(ctx context.Context, source features.EventMessagePush) error {
	sub, err := source.SubscribeEventMessages(ctx, types.CreateEventMessageSubscriptionRequest{
		Mode: types.SubscriptionPassive,
	})
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Values():
			if !ok {
				return nil
			}
			if _, relayed := relayedFrom(msg); relayed {
				continue
			}
			if err := p.Publish(ctx, msg); err != nil && ctx.Err() == nil && p.opts.logger != nil {
				p.opts.logger.Warn("event message not relayed",
					slog.String("message_id", msg.ID),
					slog.String("channel", p.opts.channel),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
