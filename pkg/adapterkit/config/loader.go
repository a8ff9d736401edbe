package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
)

// FromFile loads a .yaml, .yml or .json file. Environment references such
// as ${REDIS_ADDR} are expanded before parsing.
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, akerrors.Configuration("config.load", err, "read config file %s", path)
	}
	data = []byte(os.ExpandEnv(string(data)))

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, akerrors.Configuration("config.load", akerrors.ErrInvalidRequest, "unsupported config file extension %q", ext)
	}
}

// FromYAML parses a YAML document.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, akerrors.Configuration("config.parse", err, "parse yaml")
	}
	return New(m), nil
}

// FromJSON parses a JSON document.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, akerrors.Configuration("config.parse", err, "parse json")
	}
	return New(m), nil
}
