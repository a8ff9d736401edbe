/*
Package config loads adapter configuration from YAML or JSON.

Config wraps the decoded document and offers typed accessors that fall back
to a default when a key is missing or malformed:

	cfg, err := config.FromFile("adapter.yaml")
	if err != nil {
	    return err
	}
	timeout := cfg.Sub("push").Duration("write_timeout", time.Second)

LoadSettings turns a Config into Settings for the push engines, the event
store, the Redis relay and the simulator:

	adapter:
	  id: sim-01
	push:
	  policy: wait
	  poll_interval: 500ms
	event_store:
	  driver: sqlite
	  path: ${DATA_DIR}/events.db
	redis:
	  enabled: true
	  addr: localhost:6379

Environment references are expanded by FromFile before parsing.

Config is safe for concurrent reads. It never modifies the wrapped map.
*/
package config
