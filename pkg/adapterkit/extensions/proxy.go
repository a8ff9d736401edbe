package extensions

import (
	"context"
	"slices"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
)

// Transport carries extension calls to a feature hosted elsewhere, such as
// a remote adapter.
type Transport interface {
	Describe(ctx context.Context, key features.FeatureKey) (features.FeatureDescriptor, []features.ExtensionOperationDescriptor, error)
	Invoke(ctx context.Context, key features.FeatureKey, operationID string, payload []byte) ([]byte, error)
	Stream(ctx context.Context, key features.FeatureKey, operationID string, payload []byte) (*stream.Channel[[]byte], error)
	DuplexStream(ctx context.Context, key features.FeatureKey, operationID string, in *stream.Channel[[]byte]) (*stream.Channel[[]byte], error)
}

// Proxy is an extension feature whose operations run behind a Transport.
// Registered in a features.Registry it is indistinguishable from a local
// extension.
type Proxy struct {
	key        features.FeatureKey
	transport  Transport
	descriptor features.FeatureDescriptor
	operations []features.ExtensionOperationDescriptor
}

var _ features.ExtensionFeature = (*Proxy)(nil)

// NewProxy describes the feature at key through transport. The descriptor
// and operation list are fetched once and served from memory afterwards.
func NewProxy(ctx context.Context, transport Transport, key features.FeatureKey) (*Proxy, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if !key.IsExtension() {
		return nil, akerrors.Configuration("extensions.proxy", akerrors.ErrInvalidFeatureKey, "%s is not an extension key", key)
	}
	descriptor, ops, err := transport.Describe(ctx, key)
	if err != nil {
		return nil, err
	}
	descriptor.URI = key
	return &Proxy{
		key:        key,
		transport:  transport,
		descriptor: descriptor,
		operations: slices.Clone(ops),
	}, nil
}

// Descriptor implements features.ExtensionFeature.
func (p *Proxy) Descriptor() features.FeatureDescriptor {
	return p.descriptor
}

// GetOperations implements features.ExtensionFeature.
func (p *Proxy) GetOperations(context.Context) ([]features.ExtensionOperationDescriptor, error) {
	return slices.Clone(p.operations), nil
}

// Invoke implements features.ExtensionFeature.
func (p *Proxy) Invoke(ctx context.Context, operationID string, payload []byte) ([]byte, error) {
	if err := p.check(operationID, features.OperationInvoke); err != nil {
		return nil, err
	}
	return p.transport.Invoke(ctx, p.key, operationID, payload)
}

// Stream implements features.ExtensionFeature.
func (p *Proxy) Stream(ctx context.Context, operationID string, payload []byte) (*stream.Channel[[]byte], error) {
	if err := p.check(operationID, features.OperationStream); err != nil {
		return nil, err
	}
	return p.transport.Stream(ctx, p.key, operationID, payload)
}

// DuplexStream implements features.ExtensionFeature.
func (p *Proxy) DuplexStream(ctx context.Context, operationID string, in *stream.Channel[[]byte]) (*stream.Channel[[]byte], error) {
	if err := p.check(operationID, features.OperationDuplexStream); err != nil {
		return nil, err
	}
	return p.transport.DuplexStream(ctx, p.key, operationID, in)
}

// check rejects operations the remote side did not report, saving a round trip.
func (p *Proxy) check(operationID string, kind features.OperationKind) error {
	known := slices.ContainsFunc(p.operations, func(d features.ExtensionOperationDescriptor) bool {
		return d.OperationID == operationID && d.Kind == kind
	})
	if !known {
		return akerrors.NotFound("extensions.proxy", akerrors.ErrOperationNotFound, "%s has no %s operation %q", p.key, kind, operationID)
	}
	return nil
}

// RegistryTransport serves extension calls from the features of a local
// registry. It backs in-process proxies and transport shims.
type RegistryTransport struct {
	features *features.Registry
}

var _ Transport = (*RegistryTransport)(nil)

// NewRegistryTransport creates a transport over r.
func NewRegistryTransport(r *features.Registry) *RegistryTransport {
	return &RegistryTransport{features: r}
}

func (t *RegistryTransport) resolve(key features.FeatureKey) (features.ExtensionFeature, error) {
	ext, ok := features.Lookup[features.ExtensionFeature](t.features, key)
	if !ok {
		return nil, akerrors.NotFound("extensions.transport", akerrors.ErrFeatureNotFound, "%s", key)
	}
	return ext, nil
}

// Describe implements Transport.
func (t *RegistryTransport) Describe(ctx context.Context, key features.FeatureKey) (features.FeatureDescriptor, []features.ExtensionOperationDescriptor, error) {
	ext, err := t.resolve(key)
	if err != nil {
		return features.FeatureDescriptor{}, nil, err
	}
	ops, err := ext.GetOperations(ctx)
	if err != nil {
		return features.FeatureDescriptor{}, nil, err
	}
	return ext.Descriptor(), ops, nil
}

// Invoke implements Transport.
func (t *RegistryTransport) Invoke(ctx context.Context, key features.FeatureKey, operationID string, payload []byte) ([]byte, error) {
	ext, err := t.resolve(key)
	if err != nil {
		return nil, err
	}
	return ext.Invoke(ctx, operationID, payload)
}

// Stream implements Transport.
func (t *RegistryTransport) Stream(ctx context.Context, key features.FeatureKey, operationID string, payload []byte) (*stream.Channel[[]byte], error) {
	ext, err := t.resolve(key)
	if err != nil {
		return nil, err
	}
	return ext.Stream(ctx, operationID, payload)
}

// DuplexStream implements Transport.
func (t *RegistryTransport) DuplexStream(ctx context.Context, key features.FeatureKey, operationID string, in *stream.Channel[[]byte]) (*stream.Channel[[]byte], error) {
	ext, err := t.resolve(key)
	if err != nil {
		return nil, err
	}
	return ext.DuplexStream(ctx, operationID, in)
}
