// Package extensions lets vendor features expose typed Go handlers as
// ID-addressed operations that exchange serialized payloads.
//
// An extension feature embeds Base and binds its handlers once at
// construction:
//
//	type Ping struct {
//		*extensions.Base
//	}
//
//	func NewPing() *Ping {
//		p := &Ping{Base: extensions.NewBase(descriptor)}
//		extensions.MustBindInvoke(p.Base, extensions.OperationMetadata{
//			Name:        "Ping",
//			Description: "Echoes the request.",
//		}, p.ping)
//		return p
//	}
//
// Transports then reach the handler through Invoke with the operation ID
// reported by GetOperations, without knowing its Go types.
package extensions

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/observability"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/registry"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
)

// ManualOperations reports operations a feature serves without binding them,
// typically by overriding Invoke, Stream or DuplexStream.
type ManualOperations interface {
	ManualOperations(ctx context.Context) ([]features.ExtensionOperationDescriptor, error)
}

type (
	invokeFunc func(ctx context.Context, payload []byte) ([]byte, error)
	streamFunc func(ctx context.Context, payload []byte) (*stream.Channel[[]byte], error)
	duplexFunc func(ctx context.Context, in *stream.Channel[[]byte]) (*stream.Channel[[]byte], error)
)

// operation is a bound handler. Exactly one of the funcs is set, matching
// desc.Kind.
type operation struct {
	desc   features.ExtensionOperationDescriptor
	invoke invokeFunc
	stream streamFunc
	duplex duplexFunc
}

// Base implements features.ExtensionFeature over bound operations.
// The zero value is not usable; create one with NewBase.
type Base struct {
	descriptor features.FeatureDescriptor
	codec      Codec
	manual     ManualOperations
	logger     *slog.Logger
	metrics    observability.MetricsRecorder
	spans      observability.SpanManager

	ops *registry.Registry[string, *operation]
}

var _ features.ExtensionFeature = (*Base)(nil)

// Option configures a Base.
type Option func(*Base)

// WithCodec sets the payload codec. Default: JSONCodec.
func WithCodec(c Codec) Option {
	return func(b *Base) {
		if c != nil {
			b.codec = c
		}
	}
}

// WithManualOperations adds m's operations to GetOperations.
func WithManualOperations(m ManualOperations) Option {
	return func(b *Base) {
		b.manual = m
	}
}

// WithLogger sets the logger for bindings and failed calls.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Base) {
		b.logger = logger
	}
}

// WithMetrics records call counts and latency.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(b *Base) {
		b.metrics = m
	}
}

// WithSpanManager traces calls.
func WithSpanManager(s observability.SpanManager) Option {
	return func(b *Base) {
		b.spans = s
	}
}

// NewBase creates an extension base for the feature descriptor describes.
// descriptor.URI should be an extension key; operation IDs are derived from it.
func NewBase(descriptor features.FeatureDescriptor, opts ...Option) *Base {
	b := &Base{
		descriptor: descriptor,
		codec:      JSONCodec{},
		logger:     slog.Default(),
		metrics:    observability.NoopMetrics{},
		spans:      observability.NoopSpanManager{},
		ops:        registry.New[string, *operation](),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Descriptor implements features.ExtensionFeature.
func (b *Base) Descriptor() features.FeatureDescriptor {
	return b.descriptor
}

// Codec returns the payload codec.
func (b *Base) Codec() Codec {
	return b.codec
}

// GetOperations implements features.ExtensionFeature. Bound operations are
// sorted by ID and followed by any manual operations.
func (b *Base) GetOperations(ctx context.Context) ([]features.ExtensionOperationDescriptor, error) {
	ops := b.ops.Values()
	out := make([]features.ExtensionOperationDescriptor, len(ops))
	for i, op := range ops {
		out[i] = op.desc
	}
	slices.SortFunc(out, func(a, b features.ExtensionOperationDescriptor) int {
		return strings.Compare(a.OperationID, b.OperationID)
	})

	if b.manual == nil {
		return out, nil
	}
	manual, err := b.manual.ManualOperations(ctx)
	if err != nil {
		return nil, err
	}
	return append(out, manual...), nil
}

// Invoke implements features.ExtensionFeature.
func (b *Base) Invoke(ctx context.Context, operationID string, payload []byte) (out []byte, err error) {
	op, err := b.lookup(operationID, features.OperationInvoke)
	if err != nil {
		return nil, err
	}
	ctx, finish := b.track(ctx, op.desc)
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, handlerPanic(operationID, r)
		}
		finish(err)
	}()
	return op.invoke(ctx, payload)
}

// Stream implements features.ExtensionFeature.
func (b *Base) Stream(ctx context.Context, operationID string, payload []byte) (out *stream.Channel[[]byte], err error) {
	op, err := b.lookup(operationID, features.OperationStream)
	if err != nil {
		return nil, err
	}
	ctx, finish := b.track(ctx, op.desc)
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, handlerPanic(operationID, r)
		}
		finishWhenDone(out, err, finish)
	}()
	return op.stream(ctx, payload)
}

// DuplexStream implements features.ExtensionFeature.
func (b *Base) DuplexStream(ctx context.Context, operationID string, in *stream.Channel[[]byte]) (out *stream.Channel[[]byte], err error) {
	op, err := b.lookup(operationID, features.OperationDuplexStream)
	if err != nil {
		return nil, err
	}
	ctx, finish := b.track(ctx, op.desc)
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, handlerPanic(operationID, r)
		}
		finishWhenDone(out, err, finish)
	}()
	return op.duplex(ctx, in)
}

func (b *Base) lookup(operationID string, kind features.OperationKind) (*operation, error) {
	op, ok := b.ops.Get(operationID)
	if !ok || op.desc.Kind != kind {
		return nil, akerrors.NotFound("extensions."+kind.String(), akerrors.ErrOperationNotFound,
			"%s has no %s operation %q", b.descriptor.URI, kind, operationID)
	}
	return op, nil
}

// track starts a span for a call and returns the func that closes it.
func (b *Base) track(ctx context.Context, desc features.ExtensionOperationDescriptor) (context.Context, func(error)) {
	ctx, span := b.spans.StartInvokeSpan(ctx, desc.OperationID, desc.Kind.String())
	began := time.Now()
	return ctx, func(err error) {
		b.metrics.RecordInvoke(ctx, desc.OperationID, time.Since(began), err)
		b.spans.EndSpanWithError(span, err)
		if err != nil && ctx.Err() == nil {
			observability.LogOperationError(b.logger, desc.OperationID, err)
		}
	}
}

// finishWhenDone closes a streaming call once out completes, or at once if
// the call failed to start.
func finishWhenDone(out *stream.Channel[[]byte], err error, finish func(error)) {
	if err != nil {
		finish(err)
		return
	}
	go func() {
		<-out.Done()
		finish(out.Err())
	}()
}

func handlerPanic(operationID string, r any) error {
	return akerrors.Runtime("extensions.call", fmt.Errorf("panic: %v", r), "%s", operationID)
}
