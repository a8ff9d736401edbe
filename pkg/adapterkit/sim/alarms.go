package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// Alarm limits, in percent.
const (
	HighLimit = 90.0
	LowLimit  = 10.0
)

// Alarm categories.
const (
	CategoryAlarm  = "alarm"
	CategoryReturn = "return-to-normal"
)

type alarmState int

const (
	alarmNormal alarmState = iota
	alarmHigh
	alarmLow
)

// alarms raises an event message each time a wave tag crosses a limit and
// again when it returns to normal.
type alarms struct {
	source *Source
	sink   features.WriteEventMessages
	logger *slog.Logger

	// state is only touched by the goroutine calling check.
	state map[string]alarmState
}

func newAlarms(source *Source, sink features.WriteEventMessages, logger *slog.Logger) *alarms {
	return &alarms{
		source: source,
		sink:   sink,
		logger: logger,
		state:  make(map[string]alarmState),
	}
}

// run checks the limits every sample interval until ctx is cancelled.
func (a *alarms) run(ctx context.Context) {
	ticker := time.NewTicker(a.source.interval)
	defer ticker.Stop()
	for {
		if err := a.check(ctx, a.source.now()); err != nil && ctx.Err() == nil && a.logger != nil {
			a.logger.Warn("alarm events not written", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// check evaluates every wave tag at the grid sample for now and writes an
// event for each state change. The first check only records the baseline.
func (a *alarms) check(ctx context.Context, now time.Time) error {
	at := a.source.floor(now)
	var items []types.WriteEventMessageItem
	for i, tag := range a.source.tags {
		if !tag.numeric() {
			continue
		}
		v, _ := a.source.valueAt(i, at).Value.Float64()
		next := alarmNormal
		switch {
		case v >= HighLimit:
			next = alarmHigh
		case v <= LowLimit:
			next = alarmLow
		}

		prev, seen := a.state[tag.ID]
		a.state[tag.ID] = next
		if !seen || prev == next {
			continue
		}
		items = append(items, types.WriteEventMessageItem{
			CorrelationID: tag.ID,
			Message:       alarmMessage(tag, at, next, v),
		})
	}
	if len(items) == 0 {
		return nil
	}

	results, err := a.sink.WriteEventMessages(ctx, items)
	if err != nil {
		return err
	}
	_, err = stream.Collect(ctx, results)
	return err
}

func alarmMessage(tag Tag, at time.Time, state alarmState, v float64) types.EventMessage {
	var msg types.EventMessage
	switch state {
	case alarmHigh:
		msg = types.NewEventMessage(at, CategoryAlarm, types.PriorityHigh,
			fmt.Sprintf("%s high: %.1f%s >= %.0f%s", tag.Name, v, units, HighLimit, units))
	case alarmLow:
		msg = types.NewEventMessage(at, CategoryAlarm, types.PriorityMedium,
			fmt.Sprintf("%s low: %.1f%s <= %.0f%s", tag.Name, v, units, LowLimit, units))
	default:
		msg = types.NewEventMessage(at, CategoryReturn, types.PriorityLow,
			fmt.Sprintf("%s returned to normal: %.1f%s", tag.Name, v, units))
	}
	msg.Properties = []types.Property{
		{Name: "tag_id", Value: types.StringVariant(tag.ID)},
		{Name: "value", Value: types.Float64Variant(v)},
	}
	return msg
}
