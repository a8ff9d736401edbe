// Package eventstore keeps event messages for historical reads.
//
// A store serves the three stored-event features: writing messages, reading
// them for a time range, and reading them page by page from a resume cursor.
// Written messages can also be forwarded to an event message push manager so
// live subscribers see them as they are stored.
package eventstore

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/push"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// DefaultCapacity is the number of messages a store retains by default.
const DefaultCapacity = 10000

// Store persists event messages.
// Implementations must be safe for concurrent use.
type Store interface {
	features.WriteEventMessages
	features.ReadEventMessagesForTimeRange
	features.ReadEventMessagesUsingCursor

	// Len returns the number of retained messages.
	Len(ctx context.Context) (int, error)

	// Close releases any resources. Further calls fail with ErrClosed.
	Close() error
}

type options struct {
	capacity int
	push     *push.EventMessageManager
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a store.
type Option func(*options)

// WithCapacity bounds the number of retained messages. Writing beyond it
// evicts the oldest. A non-positive n keeps everything.
func WithCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithPush forwards every stored message to m.
func WithPush(m *push.EventMessageManager) Option {
	return func(o *options) {
		o.push = m
	}
}

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock overrides the clock used for cursor positions and to stamp
// messages without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{
		capacity: DefaultCapacity,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// normalize fills in the ID and timestamp of a message about to be stored.
func (o options) normalize(msg types.EventMessage) types.EventMessage {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = o.now()
	}
	msg.Timestamp = msg.Timestamp.UTC()
	msg.Properties = slices.Clone(msg.Properties)
	return msg
}

// writeTime returns the cursor time of the next write. It never sorts
// before last.
func (o options) writeTime(last time.Time) time.Time {
	t := o.now().UTC()
	if t.Before(last) {
		return last
	}
	return t
}

func (o options) forward(msg types.EventMessage) {
	if o.push == nil {
		return
	}
	if !o.push.Publish(msg) && o.logger != nil {
		o.logger.Warn("event message not forwarded to subscribers",
			slog.String("message_id", msg.ID))
	}
}

// page returns the slice of items on the 1-based page.
func page[T any](items []T, pageNum, pageSize int) []T {
	start := (pageNum - 1) * pageSize
	if start >= len(items) {
		return nil
	}
	end := min(start+pageSize, len(items))
	return items[start:end]
}
