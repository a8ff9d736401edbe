package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/randalmurphal/adapterkit/pkg/adapterkit"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/aggregation"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/sim"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// FeaturesCommand lists the features the simulator registers.
func FeaturesCommand() *cli.Command {
	return &cli.Command{
		Name:  "features",
		Usage: "List registered features",
		Action: simAction(func(_ *cli.Context, s *sim.Simulator, r *renderer) error {
			return r.Render(s.Features().Descriptors())
		}),
	}
}

// HealthCommand runs the adapter health check.
func HealthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check adapter health",
		Action: simAction(func(c *cli.Context, s *sim.Simulator, r *renderer) error {
			ctx := c.Context
			hc, err := adapterkit.RequireFeature[features.HealthCheck](s.Adapter, features.KeyHealthCheck)
			if err != nil {
				return err
			}
			result, err := hc.CheckHealth(ctx)
			if err != nil {
				return err
			}
			return r.Render(result)
		}),
	}
}

// TagsCommand searches the tag catalogue.
func TagsCommand() *cli.Command {
	return &cli.Command{
		Name:  "tags",
		Usage: "Search tags",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Name substring"},
			&cli.StringFlag{Name: "label", Usage: "Label"},
			&cli.IntFlag{Name: "page-size", Usage: "Results per page", Value: 100},
			&cli.IntFlag{Name: "page", Usage: "Page number", Value: 1},
		},
		Action: simAction(func(c *cli.Context, s *sim.Simulator, r *renderer) error {
			ctx := c.Context
			search, err := adapterkit.RequireFeature[features.TagSearch](s.Adapter, features.KeyTagSearch)
			if err != nil {
				return err
			}
			results, err := search.FindTags(ctx, types.FindTagsRequest{
				Name:     c.String("name"),
				Label:    c.String("label"),
				PageSize: c.Int("page-size"),
				Page:     c.Int("page"),
			})
			return renderAll(ctx, r, results, err)
		}),
	}
}

// SnapshotCommand reads current values.
func SnapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Read current tag values",
		Flags: []cli.Flag{tagFlag()},
		Action: simAction(func(c *cli.Context, s *sim.Simulator, r *renderer) error {
			ctx := c.Context
			reader, err := adapterkit.RequireFeature[features.ReadSnapshotTagValues](s.Adapter, features.KeyReadSnapshotTagValues)
			if err != nil {
				return err
			}
			results, err := reader.ReadSnapshotTagValues(ctx, types.ReadSnapshotTagValuesRequest{
				Tags: tagsOrAll(c, s),
			})
			return renderAll(ctx, r, results, err)
		}),
	}
}

// ProcessedCommand reads bucketed aggregates over a trailing window.
func ProcessedCommand() *cli.Command {
	return &cli.Command{
		Name:  "processed",
		Usage: "Read aggregated tag values",
		Flags: []cli.Flag{
			tagFlag(),
			&cli.StringSliceFlag{
				Name:  "func",
				Usage: "Data function ID (repeatable)",
				Value: cli.NewStringSlice(aggregation.FuncAverage),
			},
			&cli.DurationFlag{Name: "window", Usage: "Trailing time window", Value: 10 * time.Minute},
			&cli.DurationFlag{Name: "interval", Usage: "Bucket width", Value: time.Minute},
			&cli.BoolFlag{Name: "list", Usage: "List supported data functions and exit"},
		},
		Action: simAction(func(c *cli.Context, s *sim.Simulator, r *renderer) error {
			ctx := c.Context
			reader, err := adapterkit.RequireFeature[features.ReadProcessedTagValues](s.Adapter, features.KeyReadProcessedTagValues)
			if err != nil {
				return err
			}
			if c.Bool("list") {
				funcs, err := reader.GetSupportedDataFunctions(ctx)
				if err != nil {
					return err
				}
				return r.Render(funcs)
			}
			end := time.Now()
			results, err := reader.ReadProcessedTagValues(ctx, types.ReadProcessedTagValuesRequest{
				Tags:           tagsOrAll(c, s),
				Start:          end.Add(-c.Duration("window")),
				End:            end,
				SampleInterval: c.Duration("interval"),
				DataFunctions:  c.StringSlice("func"),
			})
			return renderAll(ctx, r, results, err)
		}),
	}
}

// EventsCommand reads stored event messages and optionally follows the live
// feed.
func EventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Read event messages",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "window", Usage: "Trailing time window", Value: time.Hour},
			&cli.BoolFlag{Name: "backwards", Usage: "Newest first"},
			&cli.IntFlag{Name: "page-size", Usage: "Messages per page", Value: 100},
			&cli.DurationFlag{Name: "follow", Usage: "Print live messages for this long after the stored ones"},
		},
		Action: simAction(func(c *cli.Context, s *sim.Simulator, r *renderer) error {
			ctx := c.Context
			reader, err := adapterkit.RequireFeature[features.ReadEventMessagesForTimeRange](s.Adapter, features.KeyReadEventMessagesForTimeRange)
			if err != nil {
				return err
			}
			direction := types.Forwards
			if c.Bool("backwards") {
				direction = types.Backwards
			}
			end := time.Now()
			results, err := reader.ReadEventMessagesForTimeRange(ctx, types.ReadEventMessagesForTimeRangeRequest{
				Start:     end.Add(-c.Duration("window")),
				End:       end,
				Direction: direction,
				PageSize:  c.Int("page-size"),
			})
			if err := renderAll(ctx, r, results, err); err != nil {
				return err
			}

			follow := c.Duration("follow")
			if follow <= 0 {
				return nil
			}
			pusher, err := adapterkit.RequireFeature[features.EventMessagePush](s.Adapter, features.KeyEventMessagePush)
			if err != nil {
				return err
			}
			followCtx, cancel := context.WithTimeout(ctx, follow)
			defer cancel()
			return followEvents(followCtx, pusher, r)
		}),
	}
}

func followEvents(ctx context.Context, pusher features.EventMessagePush, r *renderer) error {
	sub, err := pusher.SubscribeEventMessages(ctx, types.CreateEventMessageSubscriptionRequest{
		Mode: types.SubscriptionActive,
	})
	if err != nil {
		return err
	}
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Values():
			if !ok {
				return nil
			}
			if err := r.Line(msg); err != nil {
				return err
			}
		}
	}
}

// renderAll drains results and renders them as one list.
func renderAll[T any](ctx context.Context, r *renderer, results *stream.Channel[T], err error) error {
	if err != nil {
		return err
	}
	items, err := stream.Collect(ctx, results)
	if err != nil {
		return err
	}
	if items == nil {
		items = []T{}
	}
	return r.Render(items)
}
