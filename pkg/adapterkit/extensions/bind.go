package extensions

import (
	"context"
	"reflect"
	"strings"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/observability"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
)

// OperationMetadata names and describes a bound operation.
type OperationMetadata struct {
	// Name is the operation's last ID segment. It must not contain "/".
	Name        string
	Description string
}

// InvokeHandler handles a unary operation.
type InvokeHandler[In, Out any] func(ctx context.Context, in In) (Out, error)

// StreamHandler handles a server-streaming operation.
type StreamHandler[In, Out any] func(ctx context.Context, in In) (*stream.Channel[Out], error)

// DuplexHandler handles a bidirectional streaming operation.
type DuplexHandler[In, Out any] func(ctx context.Context, in *stream.Channel[In]) (*stream.Channel[Out], error)

// OperationID returns the ID of operation name of the given kind on the
// feature identified by uri, e.g. "asc:extensions/acme/ping/invoke/Ping/".
func OperationID(uri features.FeatureKey, kind features.OperationKind, name string) string {
	return string(uri) + kind.String() + "/" + name + "/"
}

// BindInvoke binds a unary handler. It reports false if an operation with
// the same ID is already bound or meta is invalid.
func BindInvoke[In, Out any](b *Base, meta OperationMetadata, fn InvokeHandler[In, Out]) bool {
	return bindInvoke(b, meta, fn) == nil
}

// MustBindInvoke is like BindInvoke but panics if the operation cannot be bound.
func MustBindInvoke[In, Out any](b *Base, meta OperationMetadata, fn InvokeHandler[In, Out]) {
	if err := bindInvoke(b, meta, fn); err != nil {
		panic(err)
	}
}

// BindStream binds a server-streaming handler. It reports false if an
// operation with the same ID is already bound or meta is invalid.
func BindStream[In, Out any](b *Base, meta OperationMetadata, fn StreamHandler[In, Out]) bool {
	return bindStream(b, meta, fn) == nil
}

// MustBindStream is like BindStream but panics if the operation cannot be bound.
func MustBindStream[In, Out any](b *Base, meta OperationMetadata, fn StreamHandler[In, Out]) {
	if err := bindStream(b, meta, fn); err != nil {
		panic(err)
	}
}

// BindDuplexStream binds a bidirectional streaming handler. It reports false
// if an operation with the same ID is already bound or meta is invalid.
func BindDuplexStream[In, Out any](b *Base, meta OperationMetadata, fn DuplexHandler[In, Out]) bool {
	return bindDuplex(b, meta, fn) == nil
}

// MustBindDuplexStream is like BindDuplexStream but panics if the operation
// cannot be bound.
func MustBindDuplexStream[In, Out any](b *Base, meta OperationMetadata, fn DuplexHandler[In, Out]) {
	if err := bindDuplex(b, meta, fn); err != nil {
		panic(err)
	}
}

func bindInvoke[In, Out any](b *Base, meta OperationMetadata, fn InvokeHandler[In, Out]) error {
	if fn == nil {
		return akerrors.Configuration("extensions.bind", akerrors.ErrInvalidRequest, "nil handler for %q", meta.Name)
	}
	op := &operation{
		invoke: func(ctx context.Context, payload []byte) ([]byte, error) {
			in, err := decode[In](b.codec, payload)
			if err != nil {
				return nil, err
			}
			out, err := fn(ctx, in)
			if err != nil {
				return nil, err
			}
			return encode(b.codec, out)
		},
	}
	return b.bind(op, features.OperationInvoke, meta, example[In](b.codec), example[Out](b.codec))
}

func bindStream[In, Out any](b *Base, meta OperationMetadata, fn StreamHandler[In, Out]) error {
	if fn == nil {
		return akerrors.Configuration("extensions.bind", akerrors.ErrInvalidRequest, "nil handler for %q", meta.Name)
	}
	op := &operation{
		stream: func(ctx context.Context, payload []byte) (*stream.Channel[[]byte], error) {
			in, err := decode[In](b.codec, payload)
			if err != nil {
				return nil, err
			}
			src, err := fn(ctx, in)
			if err != nil {
				return nil, err
			}
			return encodeStream(ctx, b.codec, src), nil
		},
	}
	return b.bind(op, features.OperationStream, meta, example[In](b.codec), example[Out](b.codec))
}

func bindDuplex[In, Out any](b *Base, meta OperationMetadata, fn DuplexHandler[In, Out]) error {
	if fn == nil {
		return akerrors.Configuration("extensions.bind", akerrors.ErrInvalidRequest, "nil handler for %q", meta.Name)
	}
	op := &operation{
		duplex: func(ctx context.Context, in *stream.Channel[[]byte]) (*stream.Channel[[]byte], error) {
			pumpCtx, cancel := context.WithCancel(ctx)
			decoded := stream.Pipe(pumpCtx, in, 0, func(_ context.Context, payload []byte) (In, error) {
				return decode[In](b.codec, payload)
			})
			src, err := fn(ctx, decoded)
			if err != nil {
				cancel()
				return nil, err
			}
			out := encodeStream(ctx, b.codec, src)
			go func() {
				<-out.Done()
				cancel()
			}()
			return out, nil
		},
	}
	return b.bind(op, features.OperationDuplexStream, meta, example[In](b.codec), example[Out](b.codec))
}

func (b *Base) bind(op *operation, kind features.OperationKind, meta OperationMetadata, exampleIn, exampleOut []byte) error {
	if meta.Name == "" || strings.ContainsAny(meta.Name, "/ ") {
		return akerrors.Configuration("extensions.bind", akerrors.ErrInvalidRequest, "invalid operation name %q", meta.Name)
	}
	op.desc = features.ExtensionOperationDescriptor{
		OperationID:   OperationID(b.descriptor.URI, kind, meta.Name),
		Kind:          kind,
		Name:          meta.Name,
		Description:   meta.Description,
		ExampleInput:  exampleIn,
		ExampleOutput: exampleOut,
	}
	if !b.ops.Add(op.desc.OperationID, op) {
		return akerrors.Configuration("extensions.bind", akerrors.ErrOperationAlreadyBound, "%s", op.desc.OperationID)
	}
	observability.LogOperationBound(b.logger, op.desc.OperationID, kind.String())
	return nil
}

// decode unmarshals payload into a T. An empty payload yields the zero value.
func decode[T any](c Codec, payload []byte) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, nil
	}
	if err := c.Unmarshal(payload, &v); err != nil {
		return v, akerrors.Validation("extensions.decode", akerrors.ErrInvalidRequest, "%s payload: %v", c.Name(), err)
	}
	return v, nil
}

func encode(c Codec, v any) ([]byte, error) {
	data, err := c.Marshal(v)
	if err != nil {
		return nil, akerrors.Runtime("extensions.encode", err, "%s result", c.Name())
	}
	return data, nil
}

func encodeStream[T any](ctx context.Context, c Codec, src *stream.Channel[T]) *stream.Channel[[]byte] {
	return stream.Pipe(ctx, src, 0, func(_ context.Context, v T) ([]byte, error) {
		return encode(c, v)
	})
}

// example encodes a freshly constructed T. Pointer types are allocated so
// the example shows the pointed-to shape. Examples are advisory; any failure
// yields nil.
func example[T any](c Codec) (data []byte) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
		}
	}()

	var v any = *new(T)
	if t := reflect.TypeFor[T](); t.Kind() == reflect.Pointer {
		v = reflect.New(t.Elem()).Interface()
	}
	data, err := c.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

