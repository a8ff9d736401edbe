package push

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/adapterkit/pkg/adapterkit/observability"
)

// OverflowPolicy decides what happens when a subscription's queue is full.
type OverflowPolicy int

const (
	// DropOldest discards the oldest queued value to make room.
	DropOldest OverflowPolicy = iota

	// DropNewest discards the value being delivered.
	DropNewest

	// Wait blocks delivery to that subscription for up to WriteTimeout, then
	// drops the value. Delivery runs on the subscription's own goroutine, so
	// other subscribers are never held up.
	Wait
)

// String returns the policy name.
func (p OverflowPolicy) String() string {
	switch p {
	case DropNewest:
		return "drop_newest"
	case Wait:
		return "wait"
	default:
		return "drop_oldest"
	}
}

// ParseOverflowPolicy parses a policy name as produced by String.
func ParseOverflowPolicy(s string) (OverflowPolicy, bool) {
	switch s {
	case "drop_oldest", "":
		return DropOldest, true
	case "drop_newest":
		return DropNewest, true
	case "wait":
		return Wait, true
	default:
		return DropOldest, false
	}
}

// Config configures a Manager.
type Config struct {
	// Name labels log lines and metrics.
	Name string

	// QueueSize is the dispatch queue capacity. Publish fails when it is full.
	// Default: 1024
	QueueSize int

	// SubscriberBuffer is the queue capacity of each subscription.
	// Default: 100
	SubscriberBuffer int

	// Policy is the default overflow policy of new subscriptions.
	// Default: DropOldest
	Policy OverflowPolicy

	// WriteTimeout bounds delivery under the Wait policy.
	// Default: 1s
	WriteTimeout time.Duration

	// Logger receives subscription lifecycle messages. Nil disables logging.
	Logger *slog.Logger

	// Metrics records publish and delivery counts.
	// Default: observability.NoopMetrics{}
	Metrics observability.MetricsRecorder
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	Name:             "push",
	QueueSize:        1024,
	SubscriberBuffer: 100,
	Policy:           DropOldest,
	WriteTimeout:     time.Second,
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = DefaultConfig.Name
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultConfig.QueueSize
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = DefaultConfig.SubscriberBuffer
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultConfig.WriteTimeout
	}
	if c.Metrics == nil {
		c.Metrics = observability.NoopMetrics{}
	}
	return c
}

type subscribeConfig struct {
	buffer  int
	policy  OverflowPolicy
	timeout time.Duration
}

// SubscribeOption overrides manager defaults for one subscription.
type SubscribeOption func(*subscribeConfig)

// WithBuffer sets the subscription's queue capacity.
func WithBuffer(n int) SubscribeOption {
	return func(c *subscribeConfig) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// WithPolicy sets the subscription's overflow policy.
func WithPolicy(p OverflowPolicy) SubscribeOption {
	return func(c *subscribeConfig) {
		c.policy = p
	}
}

// WithWriteTimeout sets how long Wait delivery may block.
func WithWriteTimeout(d time.Duration) SubscribeOption {
	return func(c *subscribeConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}
