package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/randalmurphal/adapterkit/pkg/adapterkit/config"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/sim"
)

// loadSettings reads settings from path, or returns the defaults when path
// is empty.
func loadSettings(path string) (config.Settings, error) {
	if path == "" {
		s := config.DefaultSettings()
		return s, s.Validate()
	}
	c, err := config.FromFile(path)
	if err != nil {
		return config.Settings{}, err
	}
	return config.LoadSettings(c)
}

// simAction builds and starts a simulator from the global flags, runs fn
// against it and stops it again.
func simAction(fn func(c *cli.Context, s *sim.Simulator, r *renderer) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := newRenderer(c)
		if err != nil {
			return err
		}
		settings, err := loadSettings(c.String("config"))
		if err != nil {
			return err
		}
		logger, err := newLogger(c.App.ErrWriter, c.String("log-level"))
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		s, err := sim.New(settings, sim.WithLogger(newSlogLogger(logger)))
		if err != nil {
			return err
		}
		ctx := c.Context
		if err := s.Start(ctx); err != nil {
			_ = s.Stop(ctx)
			return err
		}
		logger.Debug("simulator started",
			zap.String("adapter_id", settings.Adapter.ID),
			zap.Int("tags", settings.Simulator.Tags),
		)

		runErr := fn(c, s, r)

		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.Stop(stopCtx); err != nil {
			logger.Warn("simulator stop failed", zap.Error(err))
		}
		return runErr
	}
}

// tagsOrAll returns the --tag values, or every simulated tag ID.
func tagsOrAll(c *cli.Context, s *sim.Simulator) []string {
	if tags := c.StringSlice("tag"); len(tags) > 0 {
		return tags
	}
	defs := s.Source().Tags()
	ids := make([]string, len(defs))
	for i, d := range defs {
		ids[i] = d.ID
	}
	return ids
}
