package config

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// Config is a read-only view over decoded YAML or JSON.
// Accessors return the given default when a key is missing or holds a value
// of the wrong shape.
type Config struct {
	data map[string]any
}

// New wraps data. A nil map yields an empty Config.
func New(data map[string]any) Config {
	if data == nil {
		data = map[string]any{}
	}
	return Config{data: data}
}

// Sub returns the nested section at key, or an empty Config.
// Dotted keys descend several levels: Sub("push.snapshot").
func (c Config) Sub(key string) Config {
	cur := c
	for _, part := range strings.Split(key, ".") {
		v, ok := cur.data[part]
		if !ok {
			return New(nil)
		}
		m, ok := asMap(v)
		if !ok {
			return New(nil)
		}
		cur = New(m)
	}
	return cur
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			s, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[s] = val
		}
		return out, true
	}
	return nil, false
}

// String returns the string at key.
func (c Config) String(key, defaultVal string) string {
	if s, ok := c.data[key].(string); ok {
		return s
	}
	return defaultVal
}

// Bool returns the boolean at key.
func (c Config) Bool(key string, defaultVal bool) bool {
	if b, ok := c.data[key].(bool); ok {
		return b
	}
	return defaultVal
}

// Int returns the integer at key. Floats are accepted only when whole.
func (c Config) Int(key string, defaultVal int) int {
	switch v := c.data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return defaultVal
}

// Float returns the number at key.
func (c Config) Float(key string, defaultVal float64) float64 {
	switch v := c.data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return defaultVal
}

// Duration returns the duration at key. Strings are parsed with
// time.ParseDuration; bare numbers are seconds.
func (c Config) Duration(key string, defaultVal time.Duration) time.Duration {
	switch v := c.data[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	case time.Duration:
		return v
	}
	return defaultVal
}

// StringSlice returns the list of strings at key. A list holding anything
// but strings yields the default.
func (c Config) StringSlice(key string, defaultVal []string) []string {
	switch v := c.data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return defaultVal
			}
			out = append(out, s)
		}
		return out
	}
	return defaultVal
}

// Has reports whether key is present.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// Keys returns the keys of this section in sorted order.
func (c Config) Keys() []string {
	return slices.Sorted(maps.Keys(c.data))
}

// Raw returns the underlying map. Callers must not modify it.
func (c Config) Raw() map[string]any {
	return c.data
}
