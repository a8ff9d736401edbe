package types

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventPriority is the priority of an event message.
type EventPriority int

// Event priorities.
const (
	PriorityUnknown EventPriority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the priority name.
func (p EventPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// EventMessage is a discrete, timestamped domain event.
type EventMessage struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Category   string        `json:"category,omitempty"`
	Priority   EventPriority `json:"priority"`
	Message    string        `json:"message"`
	Properties []Property    `json:"properties,omitempty"`
}

// NewEventMessage creates an event message with a generated ID and UTC timestamp.
func NewEventMessage(ts time.Time, category string, priority EventPriority, message string) EventMessage {
	return EventMessage{
		ID:        uuid.New().String(),
		Timestamp: ts.UTC(),
		Category:  category,
		Priority:  priority,
		Message:   message,
	}
}

// EventMessageWithCursor is a stored event message with its resume token.
type EventMessageWithCursor struct {
	EventMessage
	CursorPosition string `json:"cursor_position"`
}

// SubscriptionMode controls whether a subscription may drive a forward cursor.
type SubscriptionMode int

const (
	// SubscriptionActive subscriptions may advance a shared read cursor
	// even when no other listeners exist.
	SubscriptionActive SubscriptionMode = iota

	// SubscriptionPassive subscriptions observe without advancing it.
	SubscriptionPassive
)

// String returns the mode name.
func (m SubscriptionMode) String() string {
	if m == SubscriptionPassive {
		return "passive"
	}
	return "active"
}

// Caller identifies who is invoking a feature.
type Caller struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Anonymous is the caller used when none is attached to a context.
var Anonymous = Caller{ID: "anonymous"}

type callerKey struct{}

// WithCaller attaches a caller identity to ctx.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the caller attached to ctx, or Anonymous.
func CallerFrom(ctx context.Context) Caller {
	if ctx == nil {
		return Anonymous
	}
	if c, ok := ctx.Value(callerKey{}).(Caller); ok {
		return c
	}
	return Anonymous
}
