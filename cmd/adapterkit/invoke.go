package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/randalmurphal/adapterkit/pkg/adapterkit/extensions"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/sim"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
)

// InvokeCommand calls an extension operation. The payload is the first
// argument; duplex operations read one payload per line from stdin instead.
func InvokeCommand() *cli.Command {
	return &cli.Command{
		Name:      "invoke",
		Usage:     "Call an extension operation",
		ArgsUsage: "[payload]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "feature",
				Usage: "Extension feature URI",
				Value: string(sim.PingKey),
			},
			&cli.StringFlag{
				Name:  "kind",
				Usage: "Operation kind: invoke, stream, duplex",
				Value: "invoke",
			},
			&cli.StringFlag{
				Name:  "op",
				Usage: "Operation name; lists operations when omitted",
			},
		},
		Action: simAction(func(c *cli.Context, s *sim.Simulator, r *renderer) error {
			ctx := c.Context
			proxy, err := extensions.NewProxy(ctx, extensions.NewRegistryTransport(s.Features()), features.FeatureKey(c.String("feature")))
			if err != nil {
				return err
			}
			if c.String("op") == "" {
				ops, err := proxy.GetOperations(ctx)
				if err != nil {
					return err
				}
				return r.Render(ops)
			}

			kind, err := parseKind(c.String("kind"))
			if err != nil {
				return err
			}
			id := extensions.OperationID(proxy.Descriptor().URI, kind, c.String("op"))
			payload := []byte(c.Args().First())
			if len(payload) == 0 {
				payload = []byte("{}")
			}

			switch kind {
			case features.OperationStream:
				out, err := proxy.Stream(ctx, id, payload)
				return drainRaw(ctx, r, out, err)
			case features.OperationDuplexStream:
				in, err := readLines(c.App.Reader)
				if err != nil {
					return err
				}
				out, err := proxy.DuplexStream(ctx, id, stream.FromSlice(in))
				return drainRaw(ctx, r, out, err)
			default:
				out, err := proxy.Invoke(ctx, id, payload)
				if err != nil {
					return err
				}
				return r.Raw(out)
			}
		}),
	}
}

func parseKind(s string) (features.OperationKind, error) {
	switch strings.ToLower(s) {
	case "invoke", "":
		return features.OperationInvoke, nil
	case "stream":
		return features.OperationStream, nil
	case "duplex", "duplex-stream":
		return features.OperationDuplexStream, nil
	default:
		return 0, fmt.Errorf("invalid kind: %q (must be invoke, stream or duplex)", s)
	}
}

func readLines(r io.Reader) ([][]byte, error) {
	var lines [][]byte
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, []byte(line))
		}
	}
	return lines, scanner.Err()
}

// drainRaw writes each streamed payload on its own line.
func drainRaw(ctx context.Context, r *renderer, out *stream.Channel[[]byte], err error) error {
	if err != nil {
		return err
	}
	for {
		payload, err := out.Read(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := r.Raw(payload); err != nil {
			return err
		}
	}
}
