package push

import (
	"context"

	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// EventMessageManager implements features.EventMessagePush.
type EventMessageManager struct {
	manager *Manager[types.EventMessage]
}

var _ features.EventMessagePush = (*EventMessageManager)(nil)

// NewEventMessageManager creates a running event message push manager.
func NewEventMessageManager(cfg Config, hooks Hooks[types.EventMessage]) *EventMessageManager {
	if cfg.Name == "" {
		cfg.Name = "events"
	}
	return &EventMessageManager{manager: NewManager(cfg, hooks)}
}

// SubscribeEventMessages opens an event message subscription.
func (e *EventMessageManager) SubscribeEventMessages(ctx context.Context, req types.CreateEventMessageSubscriptionRequest) (features.EventMessageSubscription, error) {
	sub, err := e.manager.Subscribe(ctx, req.Mode)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Subscribe opens an event message subscription with per-subscription options.
func (e *EventMessageManager) Subscribe(ctx context.Context, mode types.SubscriptionMode, opts ...SubscribeOption) (*Subscription[types.EventMessage], error) {
	return e.manager.Subscribe(ctx, mode, opts...)
}

// Publish enqueues msg for every subscriber.
func (e *EventMessageManager) Publish(msg types.EventMessage) bool {
	return e.manager.Publish(msg)
}

// HasSubscriptions reports whether any subscription is live.
func (e *EventMessageManager) HasSubscriptions() bool {
	return e.manager.HasSubscriptions()
}

// HasActiveSubscriptions reports whether any Active subscription is live.
// Sources that advance a shared read cursor only do so while this is true.
func (e *EventMessageManager) HasActiveSubscriptions() bool {
	return e.manager.HasActiveSubscriptions()
}

// Close closes every subscription and stops the dispatcher.
func (e *EventMessageManager) Close() error {
	return e.manager.Close()
}
