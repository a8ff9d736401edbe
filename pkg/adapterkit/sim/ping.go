package sim

import (
	"context"
	"io"
	"strings"
	"time"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/extensions"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
)

// PingKey is the key of the simulator's ping extension.
var PingKey = features.ExtensionKey("adapterkit", "ping")

// PingRequest is the input of Ping.
type PingRequest struct {
	Message string `json:"message"`
}

// PingResponse is the output of Ping.
type PingResponse struct {
	Message    string    `json:"message"`
	ReceivedAt time.Time `json:"received_at"`
}

// CountdownRequest is the input of Countdown.
type CountdownRequest struct {
	From     int           `json:"from"`
	Interval time.Duration `json:"interval,omitempty"`
}

// maxCountdown bounds Countdown streams.
const maxCountdown = 1000

// Ping is a vendor extension used to check that extension calls reach the
// adapter. It serves one operation of each kind.
type Ping struct {
	*extensions.Base
	now func() time.Time
}

// NewPing creates the ping extension.
func NewPing(now func() time.Time, opts ...extensions.Option) *Ping {
	if now == nil {
		now = time.Now
	}
	p := &Ping{
		Base: extensions.NewBase(features.FeatureDescriptor{
			URI:         PingKey,
			DisplayName: "Ping",
			Description: "Connectivity checks for extension transports.",
		}, opts...),
		now: now,
	}

	extensions.MustBindInvoke(p.Base, extensions.OperationMetadata{
		Name:        "Ping",
		Description: "Returns the request message with the time it was received.",
	}, p.ping)
	extensions.MustBindStream(p.Base, extensions.OperationMetadata{
		Name:        "Countdown",
		Description: "Streams the integers from From down to zero.",
	}, p.countdown)
	extensions.MustBindDuplexStream(p.Base, extensions.OperationMetadata{
		Name:        "Shout",
		Description: "Echoes every message in upper case.",
	}, p.shout)
	return p
}

func (p *Ping) ping(_ context.Context, req PingRequest) (PingResponse, error) {
	return PingResponse{Message: req.Message, ReceivedAt: p.now().UTC()}, nil
}

func (p *Ping) countdown(ctx context.Context, req CountdownRequest) (*stream.Channel[int], error) {
	if req.From < 0 || req.From > maxCountdown {
		return nil, akerrors.Validation("ping.countdown", akerrors.ErrInvalidRequest, "from must be in [0, %d], got %d", maxCountdown, req.From)
	}
	return stream.Run(ctx, 0, func(ctx context.Context, w stream.Writer[int]) error {
		for i := req.From; i >= 0; i-- {
			if err := w.Write(ctx, i); err != nil {
				return err
			}
			if req.Interval > 0 && i > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(req.Interval):
				}
			}
		}
		return nil
	}), nil
}

func (p *Ping) shout(ctx context.Context, in *stream.Channel[PingRequest]) (*stream.Channel[PingRequest], error) {
	return stream.Run(ctx, 0, func(ctx context.Context, w stream.Writer[PingRequest]) error {
		for {
			req, err := in.Read(ctx)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if err := w.Write(ctx, PingRequest{Message: strings.ToUpper(req.Message)}); err != nil {
				return err
			}
		}
	}), nil
}
