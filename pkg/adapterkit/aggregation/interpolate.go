// Package aggregation computes interpolated and bucketed values from raw
// tag value streams.
//
// Every function reads its raw input once, in the order it arrives, and
// writes results to a bounded stream.Channel. Raw input is expected in
// non-decreasing timestamp order; out-of-order samples are not re-sorted.
//
// Inputs are validated before any goroutine is started, so a malformed query
// fails immediately with a validation error. Faults after that point are
// reported as the terminal error of the returned stream.
//
// Reading stops as soon as all output has been produced. Callers that own
// the raw stream's producer should cancel its context once the result
// stream completes; ProcessedReader does this.
package aggregation

import (
	"context"
	"io"
	"slices"
	"time"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// GetValueAtTime returns the value of tag at t given the closest samples at
// or before t and after t. Either sample may be nil.
//
// Numeric tags are linearly interpolated and report the worse of the two
// statuses. Non-numeric tags, or samples that are not finite numbers, hold
// the earlier sample's value. With a single sample, that sample is returned
// if t is not before it. ErrInvalidTimeRange is returned when no sample is
// at or before t.
func GetValueAtTime(tag types.TagSummary, t time.Time, before, after *types.TagValue) (types.TagValue, error) {
	switch {
	case before == nil && after == nil:
		return types.TagValue{}, akerrors.Validation("value_at_time", akerrors.ErrInvalidTimeRange,
			"no samples around %s", t.Format(time.RFC3339Nano))
	case before == nil:
		before, after = after, nil
	}

	if t.Before(before.Timestamp) {
		return types.TagValue{}, akerrors.Validation("value_at_time", akerrors.ErrInvalidTimeRange,
			"%s precedes the earliest sample at %s", t.Format(time.RFC3339Nano), before.Timestamp.Format(time.RFC3339Nano))
	}
	if after == nil || t.Equal(before.Timestamp) {
		return before.WithTimestamp(t), nil
	}
	if !t.Before(after.Timestamp) {
		return after.WithTimestamp(t), nil
	}

	if !tag.IsNumeric() || !before.Value.IsFinite() || !after.Value.IsFinite() {
		return before.WithTimestamp(t), nil
	}

	y0, _ := before.Value.Float64()
	y1, _ := after.Value.Float64()
	span := after.Timestamp.Sub(before.Timestamp)
	y := y0 + float64(t.Sub(before.Timestamp))*(y1-y0)/float64(span)

	return types.TagValue{
		Timestamp: t.UTC(),
		Value:     types.Float64Variant(y),
		Status:    types.WorstStatus(before.Status, after.Status),
		Units:     before.Units,
	}, nil
}

// GetInterpolatedValues emits one interpolated value of tag for every
// interval step from start, always including end. Target times with no
// sample at or before them produce no value.
func GetInterpolatedValues(ctx context.Context, tag types.TagSummary, start, end time.Time, interval time.Duration, raw *stream.Channel[types.TagValueQueryResult]) (*stream.Channel[types.TagValueQueryResult], error) {
	if err := types.ValidateTimeRange("interpolate", start, end); err != nil {
		return nil, err
	}
	if err := types.ValidateSampleInterval("interpolate", interval); err != nil {
		return nil, err
	}

	targets := sampleTimes(start, end, interval)
	return scan(ctx, tag, targets, raw, func(t time.Time, before, after *types.TagValue) (types.TagValue, bool) {
		v, err := GetValueAtTime(tag, t, before, after)
		return v, err == nil
	}), nil
}

// GetValuesAtSampleTimes emits the value of tag in effect at each of times,
// holding the latest sample at or before each time. times need not be
// sorted; results are emitted in time order.
func GetValuesAtSampleTimes(ctx context.Context, tag types.TagSummary, times []time.Time, raw *stream.Channel[types.TagValueQueryResult]) (*stream.Channel[types.TagValueQueryResult], error) {
	if len(times) == 0 {
		return nil, akerrors.Validation("values_at_times", akerrors.ErrInvalidRequest, "no sample times requested")
	}

	targets := slices.Clone(times)
	slices.SortFunc(targets, time.Time.Compare)
	return scan(ctx, tag, targets, raw, func(t time.Time, before, _ *types.TagValue) (types.TagValue, bool) {
		if before == nil {
			return types.TagValue{}, false
		}
		return before.WithTimestamp(t), true
	}), nil
}

// sampleTimes returns start, start+interval, ... up to and including end.
func sampleTimes(start, end time.Time, interval time.Duration) []time.Time {
	var times []time.Time
	for t := start; t.Before(end); t = t.Add(interval) {
		times = append(times, t)
	}
	return append(times, end)
}

type valueAt func(t time.Time, before, after *types.TagValue) (types.TagValue, bool)

// scan walks raw once with a two-sample window, calling at for every target
// time bracketed by the window.
func scan(ctx context.Context, tag types.TagSummary, targets []time.Time, raw *stream.Channel[types.TagValueQueryResult], at valueAt) *stream.Channel[types.TagValueQueryResult] {
	return stream.Run(ctx, 0, func(ctx context.Context, w stream.Writer[types.TagValueQueryResult]) error {
		var before *types.TagValue
		next := 0

		emit := func(t time.Time, after *types.TagValue) error {
			v, ok := at(t, before, after)
			if !ok {
				return nil
			}
			return w.Write(ctx, types.NewTagValueQueryResult(tag, v))
		}

		for next < len(targets) {
			sample, err := raw.Read(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}

			for next < len(targets) && targets[next].Before(sample.Value.Timestamp) {
				if err := emit(targets[next], &sample.Value); err != nil {
					return err
				}
				next++
			}
			cur := sample.Value
			before = &cur
		}

		for ; next < len(targets); next++ {
			if err := emit(targets[next], nil); err != nil {
				return err
			}
		}
		return nil
	})
}
