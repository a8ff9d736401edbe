package eventstore

import (
	"context"
	"slices"
	"sync"
	"time"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

type entry struct {
	cursor CursorPosition
	msg    types.EventMessage
}

// MemoryStore keeps event messages in memory, in write order.
// It is suitable for adapters that only need recent history and for tests.
type MemoryStore struct {
	opts options

	mu      sync.RWMutex
	entries []entry
	seq     uint64
	last    time.Time
	closed  bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{opts: buildOptions(opts)}
}

// WriteEventMessages implements features.WriteEventMessages.
// Messages without an ID or timestamp are given one. Every stored message is
// forwarded to the push manager, if any.
func (s *MemoryStore) WriteEventMessages(ctx context.Context, items []types.WriteEventMessageItem) (*stream.Channel[types.WriteEventMessageResult], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]types.WriteEventMessageResult, 0, len(items))
	stored := make([]types.EventMessage, 0, len(items))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, akerrors.Runtime("write_events", akerrors.ErrClosed, "event store is closed")
	}
	for _, item := range items {
		msg := s.opts.normalize(item.Message)
		s.seq++
		s.last = s.opts.writeTime(s.last)
		cur := CursorPosition{Time: s.last, Sequence: s.seq}
		s.entries = append(s.entries, entry{cursor: cur, msg: msg})

		stored = append(stored, msg)
		results = append(results, types.WriteEventMessageResult{
			CorrelationID:  item.CorrelationID,
			Status:         types.WriteStatusSuccess,
			CursorPosition: cur.Encode(),
		})
	}
	s.evict()
	s.mu.Unlock()

	for _, msg := range stored {
		s.opts.forward(msg)
	}
	return stream.FromSlice(results), nil
}

// evict drops the earliest written entries beyond capacity. Callers hold s.mu.
func (s *MemoryStore) evict() {
	if s.opts.capacity <= 0 || len(s.entries) <= s.opts.capacity {
		return
	}
	over := len(s.entries) - s.opts.capacity
	s.entries = slices.Delete(s.entries, 0, over)
}

// ReadEventMessagesForTimeRange implements features.ReadEventMessagesForTimeRange.
// Both bounds are inclusive. Messages come in timestamp order, with equal
// timestamps in write order.
func (s *MemoryStore) ReadEventMessagesForTimeRange(ctx context.Context, req types.ReadEventMessagesForTimeRangeRequest) (*stream.Channel[types.EventMessage], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, akerrors.Runtime("read_events", akerrors.ErrClosed, "event store is closed")
	}
	var matched []types.EventMessage
	for _, e := range s.entries {
		ts := e.msg.Timestamp
		if ts.Before(req.Start) || ts.After(req.End) {
			continue
		}
		matched = append(matched, e.msg)
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b types.EventMessage) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	if req.Direction == types.Backwards {
		slices.Reverse(matched)
	}
	return emit(ctx, page(matched, req.Page, req.PageSize)), nil
}

// ReadEventMessagesUsingCursor implements features.ReadEventMessagesUsingCursor.
// The message at the cursor itself is not returned.
func (s *MemoryStore) ReadEventMessagesUsingCursor(ctx context.Context, req types.ReadEventMessagesUsingCursorRequest) (*stream.Channel[types.EventMessageWithCursor], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var from *CursorPosition
	if req.CursorPosition != "" {
		cur, err := ParseCursor(req.CursorPosition)
		if err != nil {
			return nil, err
		}
		from = &cur
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, akerrors.Runtime("read_events_cursor", akerrors.ErrClosed, "event store is closed")
	}
	out := make([]types.EventMessageWithCursor, 0, req.PageSize)
	if req.Direction == types.Backwards {
		for i := len(s.entries) - 1; i >= 0 && len(out) < req.PageSize; i-- {
			e := s.entries[i]
			if from != nil && e.cursor.Compare(*from) >= 0 {
				continue
			}
			out = append(out, withCursor(e))
		}
	} else {
		for _, e := range s.entries {
			if len(out) == req.PageSize {
				break
			}
			if from != nil && e.cursor.Compare(*from) <= 0 {
				continue
			}
			out = append(out, withCursor(e))
		}
	}
	s.mu.RUnlock()

	return emit(ctx, out), nil
}

// Len implements Store.
func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, akerrors.Runtime("event_store_len", akerrors.ErrClosed, "event store is closed")
	}
	return len(s.entries), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

func withCursor(e entry) types.EventMessageWithCursor {
	return types.EventMessageWithCursor{EventMessage: e.msg, CursorPosition: e.cursor.Encode()}
}

// emit streams items, stopping early if ctx is cancelled.
func emit[T any](ctx context.Context, items []T) *stream.Channel[T] {
	return stream.Run(ctx, len(items), func(ctx context.Context, w stream.Writer[T]) error {
		for _, item := range items {
			if err := w.Write(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
}
