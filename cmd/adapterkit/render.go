package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// Format is an output format.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat parses a format name. Empty selects JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, nil
	case "yaml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid format: %q (must be json or yaml)", s)
	}
}

// renderer writes command results to the app's writer.
type renderer struct {
	format Format
	out    io.Writer
}

func newRenderer(c *cli.Context) (*renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}
	return &renderer{format: format, out: c.App.Writer}, nil
}

// Render writes v as a single document.
func (r *renderer) Render(v any) error {
	switch r.format {
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// Line writes v as one compact JSON line, for streamed output.
func (r *renderer) Line(v any) error {
	return json.NewEncoder(r.out).Encode(v)
}

// Raw writes an already encoded payload followed by a newline.
func (r *renderer) Raw(payload []byte) error {
	_, err := fmt.Fprintf(r.out, "%s\n", payload)
	return err
}
