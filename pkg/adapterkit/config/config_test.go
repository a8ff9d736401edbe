package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/adapterkit/pkg/adapterkit/config"
	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
)

func TestAccessors(t *testing.T) {
	cfg := config.New(map[string]any{
		"name":     "sim",
		"enabled":  true,
		"count":    3,
		"whole":    4.0,
		"fraction": 4.5,
		"ratio":    2,
		"timeout":  "250ms",
		"seconds":  2,
		"tags":     []any{"a", "b"},
		"mixed":    []any{"a", 1},
	})

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"string", cfg.String("name", ""), "sim"},
		{"string wrong type", cfg.String("count", "dflt"), "dflt"},
		{"string missing", cfg.String("missing", "dflt"), "dflt"},
		{"bool", cfg.Bool("enabled", false), true},
		{"bool wrong type", cfg.Bool("name", true), true},
		{"int", cfg.Int("count", 0), 3},
		{"int from whole float", cfg.Int("whole", 0), 4},
		{"int from fraction", cfg.Int("fraction", 9), 9},
		{"float", cfg.Float("fraction", 0), 4.5},
		{"float from int", cfg.Float("ratio", 0), 2.0},
		{"duration string", cfg.Duration("timeout", 0), 250 * time.Millisecond},
		{"duration seconds", cfg.Duration("seconds", 0), 2 * time.Second},
		{"duration invalid", cfg.Duration("name", time.Minute), time.Minute},
		{"string slice", cfg.StringSlice("tags", nil), []string{"a", "b"}},
		{"string slice mixed", cfg.StringSlice("mixed", []string{"x"}), []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}

	assert.True(t, cfg.Has("name"))
	assert.False(t, cfg.Has("missing"))
	assert.Equal(t, "count", cfg.Keys()[0])
}

func TestNewNil(t *testing.T) {
	cfg := config.New(nil)
	assert.NotNil(t, cfg.Raw())
	assert.Empty(t, cfg.Keys())
}

func TestSub(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
push:
  snapshot:
    policy: wait
  queue_size: 8
flat: 1
`))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Sub("push").Int("queue_size", 0))
	assert.Equal(t, "wait", cfg.Sub("push.snapshot").String("policy", ""))
	assert.Empty(t, cfg.Sub("flat").Keys())
	assert.Empty(t, cfg.Sub("missing.section").Keys())
}

func TestSubAcceptsInterfaceKeyedMaps(t *testing.T) {
	cfg := config.New(map[string]any{
		"redis": map[any]any{"addr": "cache:6379"},
		"bad":   map[any]any{1: "x"},
	})
	assert.Equal(t, "cache:6379", cfg.Sub("redis").String("addr", ""))
	assert.Empty(t, cfg.Sub("bad").Keys())
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	t.Setenv("ADAPTERKIT_TEST_ADDR", "redis.internal:6379")

	yamlPath := write("adapter.YAML", "redis:\n  addr: ${ADAPTERKIT_TEST_ADDR}\n")
	jsonPath := write("adapter.json", `{"adapter": {"id": "from-json"}}`)
	txtPath := write("adapter.txt", "id: nope")
	badPath := write("bad.yaml", "a: [1, 2")

	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6379", cfg.Sub("redis").String("addr", ""))

	cfg, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "from-json", cfg.Sub("adapter").String("id", ""))

	_, err = config.FromFile(txtPath)
	assert.ErrorContains(t, err, "unsupported config file extension")
	assert.True(t, akerrors.IsConfiguration(err))

	_, err = config.FromFile(badPath)
	assert.ErrorContains(t, err, "parse yaml")

	_, err = config.FromFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")
}

func TestFromJSONInvalid(t *testing.T) {
	_, err := config.FromJSON([]byte(`{`))
	assert.ErrorContains(t, err, "parse json")
}

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := config.LoadSettings(config.New(nil))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSettings(), s)
}

func TestLoadSettings(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
adapter:
  id: sim-01
  name: Plant simulator
push:
  queue_size: 64
  policy: wait
  write_timeout: 2s
  poll_interval: 250ms
event_store:
  driver: sqlite
  path: /var/lib/adapterkit/events.db
  capacity: 500
redis:
  enabled: true
  addr: cache:6379
  db: 2
simulator:
  tags: 8
  period: 30s
`))
	require.NoError(t, err)

	s, err := config.LoadSettings(cfg)
	require.NoError(t, err)

	assert.Equal(t, "sim-01", s.Adapter.ID)
	assert.Equal(t, "Plant simulator", s.Adapter.Name)
	assert.Equal(t, 64, s.Push.QueueSize)
	assert.Equal(t, 100, s.Push.SubscriberBuffer)
	assert.Equal(t, "wait", s.Push.Policy)
	assert.Equal(t, 2*time.Second, s.Push.WriteTimeout)
	assert.Equal(t, 250*time.Millisecond, s.Push.PollInterval)
	assert.Equal(t, config.DriverSQLite, s.EventStore.Driver)
	assert.Equal(t, 500, s.EventStore.Capacity)
	assert.True(t, s.Redis.Enabled)
	assert.Equal(t, 2, s.Redis.DB)
	assert.Equal(t, "adapterkit:events", s.Redis.Channel)
	assert.Equal(t, 8, s.Simulator.Tags)
	assert.Equal(t, 30*time.Second, s.Simulator.Period)
	assert.Equal(t, time.Second, s.Simulator.SampleInterval)
}

func TestLoadSettingsValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty id", "adapter: {id: ''}", "adapter.id"},
		{"unknown driver", "event_store: {driver: postgres}", "event_store.driver"},
		{"sqlite without path", "event_store: {driver: sqlite}", "event_store.path"},
		{"poll interval", "push: {poll_interval: 0s}", "poll_interval"},
		{"redis without channel", "redis: {enabled: true, channel: ''}", "redis.addr"},
		{"no tags", "simulator: {tags: 0}", "simulator.tags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.FromYAML([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = config.LoadSettings(cfg)
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.want)
			assert.True(t, akerrors.IsConfiguration(err))
		})
	}
}
