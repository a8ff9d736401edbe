package config

import (
	"time"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
)

// Event store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Settings is the typed form of an adapter configuration file.
type Settings struct {
	Adapter    AdapterSettings
	Push       PushSettings
	EventStore EventStoreSettings
	Redis      RedisSettings
	Simulator  SimulatorSettings
}

// AdapterSettings identifies the adapter.
type AdapterSettings struct {
	ID          string
	Name        string
	Description string
}

// PushSettings tunes the push engines.
type PushSettings struct {
	QueueSize        int
	SubscriberBuffer int
	// Policy is an overflow policy name: drop_oldest, drop_newest or wait.
	Policy       string
	WriteTimeout time.Duration
	PollInterval time.Duration
}

// EventStoreSettings selects and sizes the event message store.
type EventStoreSettings struct {
	Driver   string
	Path     string
	Capacity int
}

// RedisSettings configures the Redis event relay.
type RedisSettings struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Channel  string
}

// SimulatorSettings shapes the simulated data source.
type SimulatorSettings struct {
	Tags           int
	SampleInterval time.Duration
	Period         time.Duration
	History        time.Duration
}

// DefaultSettings returns the settings used for absent keys.
func DefaultSettings() Settings {
	return Settings{
		Adapter: AdapterSettings{
			ID:   "adapterkit",
			Name: "adapterkit",
		},
		Push: PushSettings{
			QueueSize:        1024,
			SubscriberBuffer: 100,
			Policy:           "drop_oldest",
			WriteTimeout:     time.Second,
			PollInterval:     time.Second,
		},
		EventStore: EventStoreSettings{
			Driver:   DriverMemory,
			Capacity: 10000,
		},
		Redis: RedisSettings{
			Addr:    "localhost:6379",
			Channel: "adapterkit:events",
		},
		Simulator: SimulatorSettings{
			Tags:           4,
			SampleInterval: time.Second,
			Period:         time.Minute,
			History:        time.Hour,
		},
	}
}

// LoadSettings reads settings from c, falling back to DefaultSettings for
// absent keys, and validates the result.
func LoadSettings(c Config) (Settings, error) {
	s := DefaultSettings()

	adapter := c.Sub("adapter")
	s.Adapter.ID = adapter.String("id", s.Adapter.ID)
	s.Adapter.Name = adapter.String("name", s.Adapter.Name)
	s.Adapter.Description = adapter.String("description", s.Adapter.Description)

	push := c.Sub("push")
	s.Push.QueueSize = push.Int("queue_size", s.Push.QueueSize)
	s.Push.SubscriberBuffer = push.Int("subscriber_buffer", s.Push.SubscriberBuffer)
	s.Push.Policy = push.String("policy", s.Push.Policy)
	s.Push.WriteTimeout = push.Duration("write_timeout", s.Push.WriteTimeout)
	s.Push.PollInterval = push.Duration("poll_interval", s.Push.PollInterval)

	store := c.Sub("event_store")
	s.EventStore.Driver = store.String("driver", s.EventStore.Driver)
	s.EventStore.Path = store.String("path", s.EventStore.Path)
	s.EventStore.Capacity = store.Int("capacity", s.EventStore.Capacity)

	redis := c.Sub("redis")
	s.Redis.Enabled = redis.Bool("enabled", s.Redis.Enabled)
	s.Redis.Addr = redis.String("addr", s.Redis.Addr)
	s.Redis.Password = redis.String("password", s.Redis.Password)
	s.Redis.DB = redis.Int("db", s.Redis.DB)
	s.Redis.Channel = redis.String("channel", s.Redis.Channel)

	sim := c.Sub("simulator")
	s.Simulator.Tags = sim.Int("tags", s.Simulator.Tags)
	s.Simulator.SampleInterval = sim.Duration("sample_interval", s.Simulator.SampleInterval)
	s.Simulator.Period = sim.Duration("period", s.Simulator.Period)
	s.Simulator.History = sim.Duration("history", s.Simulator.History)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks values that have no usable fallback.
func (s Settings) Validate() error {
	invalid := func(format string, args ...any) error {
		return akerrors.Configuration("config.settings", akerrors.ErrInvalidRequest, format, args...)
	}

	if s.Adapter.ID == "" {
		return invalid("adapter.id is required")
	}
	switch s.EventStore.Driver {
	case DriverMemory:
	case DriverSQLite:
		if s.EventStore.Path == "" {
			return invalid("event_store.path is required for the sqlite driver")
		}
	default:
		return invalid("unknown event_store.driver %q", s.EventStore.Driver)
	}
	if s.Push.PollInterval <= 0 {
		return invalid("push.poll_interval must be positive")
	}
	if s.Redis.Enabled && (s.Redis.Addr == "" || s.Redis.Channel == "") {
		return invalid("redis.addr and redis.channel are required when redis is enabled")
	}
	if s.Simulator.Tags <= 0 {
		return invalid("simulator.tags must be positive")
	}
	if s.Simulator.SampleInterval <= 0 || s.Simulator.Period <= 0 {
		return invalid("simulator.sample_interval and simulator.period must be positive")
	}
	return nil
}
