// Package redis relays event messages between adapters over Redis pub/sub.
//
// A Publisher forwards every message a push manager emits to a Redis
// channel. A Subscriber listens on that channel and hands incoming messages
// to a local sink, usually an event store or push manager. Messages travel
// in an envelope naming the adapter that published them so an adapter
// running both ends does not re-ingest its own messages.
package redis

import (
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/randalmurphal/adapterkit/pkg/adapterkit/config"
	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/extensions"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "adapterkit:events"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// OriginProperty names the property a Subscriber adds to every message it
// receives. It holds the publishing adapter; Relay does not send such
// messages back out, so relayed messages never loop between adapters.
const OriginProperty = "relay_origin"

// envelope is the wire form of a relayed message.
type envelope struct {
	Origin  string             `json:"origin,omitempty"`
	Message types.EventMessage `json:"message"`
}

type options struct {
	channel string
	origin  string
	codec   extensions.Codec
	timeout time.Duration
	retry   akerrors.RetryConfig
	logger  *slog.Logger
}

// Option configures a Publisher or Subscriber.
type Option func(*options)

// WithChannel sets the pub/sub channel. Default: DefaultChannel.
func WithChannel(channel string) Option {
	return func(o *options) {
		if channel != "" {
			o.channel = channel
		}
	}
}

// WithOrigin names the local adapter. Publishers stamp it on outgoing
// messages; subscribers drop incoming messages that carry it.
func WithOrigin(origin string) Option {
	return func(o *options) {
		o.origin = origin
	}
}

// WithCodec sets the wire codec. Both ends must agree. Default: JSON.
func WithCodec(c extensions.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithTimeout bounds each publish attempt. Default: DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRetry sets the publish retry policy. Default: akerrors.DefaultRetry.
func WithRetry(cfg akerrors.RetryConfig) Option {
	return func(o *options) {
		o.retry = cfg
	}
}

// WithLogger sets the logger for relay failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) options {
	o := options{
		channel: DefaultChannel,
		codec:   extensions.JSONCodec{},
		timeout: DefaultTimeout,
		retry:   akerrors.DefaultRetry,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func relayedFrom(msg types.EventMessage) (string, bool) {
	for _, p := range msg.Properties {
		if p.Name == OriginProperty {
			origin, _ := p.Value.Value.(string)
			return origin, true
		}
	}
	return "", false
}

// NewClient creates a Redis client from settings.
func NewClient(s config.RedisSettings) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     s.Addr,
		Password: s.Password,
		DB:       s.DB,
	})
}

// OptionsFromSettings returns the relay options settings imply.
func OptionsFromSettings(s config.Settings) []Option {
	return []Option{
		WithChannel(s.Redis.Channel),
		WithOrigin(s.Adapter.ID),
	}
}
