// Package stream provides a bounded, completable channel used for every
// result stream in adapterkit: raw and processed reads, extension streams and
// subscription feeds.
//
// A Channel has exactly one producer. The producer writes values with
// backpressure and finishes the stream with Complete, optionally attaching a
// terminal error. Consumers range over Values and then check Err, or call Read
// until it returns io.EOF.
//
//	ch := stream.Run(ctx, 16, func(ctx context.Context, w stream.Writer[int]) error {
//		for i := 0; i < 3; i++ {
//			if err := w.Write(ctx, i); err != nil {
//				return err
//			}
//		}
//		return nil
//	})
//	values, err := stream.Collect(ctx, ch)
package stream

import (
	"context"
	"fmt"
	"io"
	"sync"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
)

// DefaultCapacity is the buffer size used when a non-positive capacity is given.
const DefaultCapacity = 64

// Writer is the producer side of a stream.
type Writer[T any] interface {
	// Write blocks until the value is buffered or ctx is done.
	Write(ctx context.Context, v T) error
}

// Channel is a bounded stream of values with a terminal error.
type Channel[T any] struct {
	ch   chan T
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	err error
}

// New creates an open stream with the given buffer capacity.
func New[T any](capacity int) *Channel[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// Write buffers v, waiting for capacity. It returns ctx.Err() if ctx is done
// first, and ErrClosed if the stream has already been completed.
func (c *Channel[T]) Write(ctx context.Context, v T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return akerrors.ErrClosed
	default:
	}

	select {
	case c.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryWrite buffers v if there is room, without blocking.
func (c *Channel[T]) TryWrite(v T) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.ch <- v:
		return true
	default:
		return false
	}
}

// Complete closes the stream. A non-nil err is reported to consumers after
// the buffered values. Only the first call has any effect.
// Complete must be called by the producer, never concurrently with Write.
func (c *Channel[T]) Complete(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
		close(c.ch)
	})
}

// Values returns the receive side. It is closed when the stream completes.
func (c *Channel[T]) Values() <-chan T {
	return c.ch
}

// Done is closed when the stream has been completed.
func (c *Channel[T]) Done() <-chan struct{} {
	return c.done
}

// Err returns the terminal error, or nil if the stream is still open or
// completed successfully.
func (c *Channel[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Read returns the next value. After the last value it returns io.EOF on
// success or the terminal error on a fault.
func (c *Channel[T]) Read(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-c.ch:
		if !ok {
			if err := c.Err(); err != nil {
				return zero, err
			}
			return zero, io.EOF
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Collect reads the whole stream into a slice.
// Values read before a fault are returned along with the error.
func Collect[T any](ctx context.Context, c *Channel[T]) ([]T, error) {
	var out []T
	for {
		v, err := c.Read(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

// Run starts fn in a goroutine writing to a new stream and returns it.
// The stream is always completed with fn's result; a panic in fn is captured
// as a runtime fault.
func Run[T any](ctx context.Context, capacity int, fn func(ctx context.Context, w Writer[T]) error) *Channel[T] {
	out := New[T](capacity)
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = akerrors.Runtime("stream", fmt.Errorf("panic: %v", r), "producer panicked")
			}
			out.Complete(err)
		}()
		err = fn(ctx, out)
	}()
	return out
}

// Pipe maps every value of src through fn into a new stream.
// A fault on src, a failing fn, or cancellation faults the destination.
func Pipe[In, Out any](ctx context.Context, src *Channel[In], capacity int, fn func(context.Context, In) (Out, error)) *Channel[Out] {
	return Run(ctx, capacity, func(ctx context.Context, w Writer[Out]) error {
		for {
			v, err := src.Read(ctx)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			mapped, err := fn(ctx, v)
			if err != nil {
				return err
			}
			if err := w.Write(ctx, mapped); err != nil {
				return err
			}
		}
	})
}

// FromSlice returns a completed stream holding items.
func FromSlice[T any](items []T) *Channel[T] {
	out := New[T](len(items))
	for _, v := range items {
		out.ch <- v
	}
	out.Complete(nil)
	return out
}

// Failed returns a completed stream carrying only err.
func Failed[T any](err error) *Channel[T] {
	out := New[T](1)
	out.Complete(err)
	return out
}
