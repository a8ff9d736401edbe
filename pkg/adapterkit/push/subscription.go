package push

import (
	"context"
	"sync"
	"time"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// Subscription is one caller's live feed from a Manager.
type Subscription[T any] struct {
	id     string
	caller types.Caller
	mode   types.SubscriptionMode

	policy  OverflowPolicy
	timeout time.Duration
	filter  func(T) bool

	// pending feeds pump under the Wait policy; nil otherwise.
	pending chan T

	// mu serializes sends against closing ch.
	mu     sync.Mutex
	ch     chan T
	closed bool

	done      chan struct{}
	closeOnce sync.Once

	manager *Manager[T]
}

// ID returns the subscription ID.
func (s *Subscription[T]) ID() string {
	return s.id
}

// Caller returns the identity that subscribed.
func (s *Subscription[T]) Caller() types.Caller {
	return s.caller
}

// Mode returns whether the subscription is active or passive.
func (s *Subscription[T]) Mode() types.SubscriptionMode {
	return s.mode
}

// Values returns the delivery channel. It is closed when the subscription closes.
func (s *Subscription[T]) Values() <-chan T {
	return s.ch
}

// Done is closed when the subscription has been closed.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Read returns the next value, ErrClosed once the subscription is closed and
// drained, or ctx.Err().
func (s *Subscription[T]) Read(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-s.ch:
		if !ok {
			return zero, akerrors.ErrClosed
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close removes the subscription from its manager and closes its channel.
// Values already queued can still be read. Close is idempotent.
func (s *Subscription[T]) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.manager.remove(s)

		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
	return nil
}

// pump moves pending values into ch in order, waiting on each for up to
// the write timeout. It runs until the subscription or ctx is done.
func (s *Subscription[T]) pump(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case v := <-s.pending:
			s.manager.recordDelivery(s, s.deliver(ctx, v))
		}
	}
}

// deliver queues v according to the overflow policy and reports whether it
// was queued.
func (s *Subscription[T]) deliver(ctx context.Context, v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	switch s.policy {
	case DropNewest:
		select {
		case s.ch <- v:
			return true
		default:
			return false
		}

	case Wait:
		select {
		case s.ch <- v:
			return true
		default:
		}
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		select {
		case s.ch <- v:
			return true
		case <-timer.C:
			return false
		case <-s.done:
			return false
		case <-ctx.Done():
			return false
		}

	default:
		for {
			select {
			case s.ch <- v:
				return true
			default:
			}
			select {
			case <-s.ch:
			default:
			}
		}
	}
}
