// Package sim provides a simulated adapter.
//
// The simulator generates deterministic waveforms (sine, sawtooth, square
// and triangle, spanning 0 to 100 percent) plus a two-state tag, and wires
// every adapterkit building block around them: tag search, snapshot and raw
// reads from the source, polling snapshot push, processed, at-times and plot
// reads through the aggregation engine, limit alarms written to an event
// store with live push, an optional Redis relay of those events, and a ping
// extension. It backs the adapterkit CLI and serves as a reference for
// assembling a real adapter.
package sim

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/adapterkit/pkg/adapterkit"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/aggregation"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/bridge/redis"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/config"
	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/eventstore"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/extensions"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/observability"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/push"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

type options struct {
	logger *slog.Logger
	now    func() time.Time
	redis  goredis.UniversalClient
}

// Option configures a Simulator.
type Option func(*options)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock overrides the clock that drives the waveforms.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithRedisClient relays events over client instead of dialing the address
// in the settings. The simulator does not close a client given this way.
func WithRedisClient(client goredis.UniversalClient) Option {
	return func(o *options) {
		o.redis = client
	}
}

// Simulator is an adapter over a simulated source.
type Simulator struct {
	*adapterkit.Adapter

	settings  config.Settings
	logger    *slog.Logger
	source    *Source
	reader    *aggregation.ProcessedReader
	snapshots *push.PollingSnapshotTagValuePush
	events    *push.EventMessageManager
	store     eventstore.Store
	ping      *Ping
	alarms    *alarms

	redis      goredis.UniversalClient
	ownsRedis  bool
	subscriber *redis.Subscriber

	cancel context.CancelFunc
	group  *errgroup.Group
}

var _ features.HealthCheck = (*Simulator)(nil)

// New builds a simulator from settings. The adapter is not started.
func New(settings config.Settings, opts ...Option) (*Simulator, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	policy, ok := push.ParseOverflowPolicy(settings.Push.Policy)
	if !ok {
		return nil, akerrors.Configuration("sim.new", akerrors.ErrInvalidRequest, "unknown overflow policy %q", settings.Push.Policy)
	}
	pushConfig := func(name string) push.Config {
		return push.Config{
			Name:             name,
			QueueSize:        settings.Push.QueueSize,
			SubscriberBuffer: settings.Push.SubscriberBuffer,
			Policy:           policy,
			WriteTimeout:     settings.Push.WriteTimeout,
			Logger:           o.logger,
		}
	}

	sim := &Simulator{settings: settings, logger: o.logger}
	sim.source = NewSource(settings.Simulator.Tags, settings.Simulator.SampleInterval,
		settings.Simulator.Period, settings.Simulator.History, o.now)
	sim.reader = aggregation.NewProcessedReader(sim.source, sim.source,
		aggregation.NewHelper(aggregation.WithLogger(o.logger)))
	sim.snapshots = push.NewPollingSnapshotTagValuePush(sim.source, settings.Push.PollInterval, pushConfig("snapshot"))
	sim.events = push.NewEventMessageManager(pushConfig("events"), push.Hooks[types.EventMessage]{})

	store, err := openStore(settings.EventStore,
		eventstore.WithPush(sim.events),
		eventstore.WithLogger(o.logger),
		eventstore.WithClock(o.now),
	)
	if err != nil {
		sim.snapshots.Close()
		sim.events.Close()
		return nil, err
	}
	sim.store = store
	sim.alarms = newAlarms(sim.source, store, o.logger)
	sim.ping = NewPing(o.now,
		extensions.WithLogger(observability.EnrichLogger(o.logger, settings.Adapter.ID, string(PingKey))))

	if settings.Redis.Enabled {
		sim.redis = o.redis
		if sim.redis == nil {
			sim.redis = redis.NewClient(settings.Redis)
			sim.ownsRedis = true
		}
	}

	adapter, err := adapterkit.New(adapterkit.Descriptor{
		ID:          settings.Adapter.ID,
		Name:        settings.Adapter.Name,
		Description: settings.Adapter.Description,
		Properties: map[string]string{
			"tags":            strconv.Itoa(settings.Simulator.Tags),
			"sample_interval": settings.Simulator.SampleInterval.String(),
			"period":          settings.Simulator.Period.String(),
		},
	},
		adapterkit.WithLogger(o.logger),
		adapterkit.WithFeature(features.KeyHealthCheck, sim),
		adapterkit.WithProvider(sim.source),
		adapterkit.WithProvider(sim.reader),
		adapterkit.WithFeature(features.KeySnapshotTagValuePush, sim.snapshots),
		adapterkit.WithFeature(features.KeyEventMessagePush, sim.events),
		adapterkit.WithFeature(features.KeyWriteEventMessages, store),
		adapterkit.WithFeature(features.KeyReadEventMessagesForTimeRange, store),
		adapterkit.WithFeature(features.KeyReadEventMessagesUsingCursor, store),
		adapterkit.WithProvider(sim.ping),
		adapterkit.OnStart(sim.start),
		adapterkit.OnStop(sim.stop),
	)
	if err != nil {
		sim.snapshots.Close()
		sim.events.Close()
		store.Close()
		sim.closeRedis()
		return nil, err
	}
	sim.Adapter = adapter
	return sim, nil
}

func openStore(s config.EventStoreSettings, opts ...eventstore.Option) (eventstore.Store, error) {
	opts = append(opts, eventstore.WithCapacity(s.Capacity))
	if s.Driver == config.DriverSQLite {
		store, err := eventstore.NewSQLiteStore(s.Path, opts...)
		if err != nil {
			return nil, akerrors.Configuration("sim.new", err, "open event store %s", s.Path)
		}
		return store, nil
	}
	return eventstore.NewMemoryStore(opts...), nil
}

// Source returns the simulated data source.
func (s *Simulator) Source() *Source {
	return s.source
}

// start launches the alarm monitor and, when enabled, the Redis relay.
func (s *Simulator) start(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	if s.redis != nil {
		opts := append(redis.OptionsFromSettings(s.settings), redis.WithLogger(s.logger))
		sub := redis.NewSubscriber(s.redis, opts...)
		if err := sub.Listen(gctx, redis.ToStore(s.store)); err != nil {
			cancel()
			return err
		}
		s.subscriber = sub

		pub := redis.NewPublisher(s.redis, opts...)
		g.Go(func() error {
			return pub.Relay(gctx, s.events)
		})
	}
	g.Go(func() error {
		s.alarms.run(gctx)
		return nil
	})

	s.cancel, s.group = cancel, g
	return nil
}

func (s *Simulator) stop(context.Context) error {
	if s.cancel != nil {
		s.cancel()
		_ = s.group.Wait()
	}
	if s.subscriber != nil {
		_ = s.subscriber.Close()
	}
	return s.closeRedis()
}

func (s *Simulator) closeRedis() error {
	if s.ownsRedis && s.redis != nil {
		s.ownsRedis = false
		return s.redis.Close()
	}
	return nil
}

// CheckHealth implements features.HealthCheck. The event store and, when
// enabled, the Redis connection are reported as inner results.
func (s *Simulator) CheckHealth(ctx context.Context) (types.HealthCheckResult, error) {
	if state := s.State(); state != adapterkit.StateRunning {
		return types.HealthCheckResult{
			Status:      types.HealthUnhealthy,
			Description: "simulator is " + state.String(),
		}, nil
	}

	var inner []types.HealthCheckResult
	if n, err := s.store.Len(ctx); err != nil {
		inner = append(inner, types.HealthCheckResult{
			Status:      types.HealthUnhealthy,
			Description: "event store",
			Error:       err.Error(),
		})
	} else {
		inner = append(inner, types.HealthCheckResult{
			Status:      types.HealthHealthy,
			Description: "event store holds " + strconv.Itoa(n) + " messages",
		})
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			inner = append(inner, types.HealthCheckResult{
				Status:      types.HealthDegraded,
				Description: "redis relay",
				Error:       err.Error(),
			})
		} else {
			inner = append(inner, types.HealthCheckResult{
				Status:      types.HealthHealthy,
				Description: "redis relay",
			})
		}
	}

	status := types.HealthHealthy
	for _, r := range inner {
		status = min(status, r.Status)
	}
	return types.HealthCheckResult{
		Status:      status,
		Description: "simulator is running",
		Inner:       inner,
	}, nil
}
