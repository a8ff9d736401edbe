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

// GetPlotValues thins raw down to the samples needed to draw a faithful
// trend of tag over intervals equal-width intervals of [start, end). For each
// interval it keeps the first, last, smallest and largest samples plus every
// sample whose status is not good, in time order.
func GetPlotValues(ctx context.Context, tag types.TagSummary, start, end time.Time, intervals int, raw *stream.Channel[types.TagValueQueryResult]) (*stream.Channel[types.TagValueQueryResult], error) {
	if err := types.ValidateTimeRange("plot", start, end); err != nil {
		return nil, err
	}
	if intervals <= 0 {
		return nil, akerrors.Validation("plot", akerrors.ErrInvalidRequest, "intervals must be positive, got %d", intervals)
	}

	width := max(end.Sub(start)/time.Duration(intervals), time.Nanosecond)
	q := query{start: start, end: end, interval: width}
	next := filtered(raw, tag)

	return stream.Run(ctx, 0, func(ctx context.Context, w stream.Writer[types.TagValueQueryResult]) error {
		n := q.buckets()
		idx := 0
		var samples []types.TagValue

		flush := func() error {
			for _, v := range plotSamples(samples) {
				if err := w.Write(ctx, types.NewTagValueQueryResult(tag, v)); err != nil {
					return err
				}
			}
			samples = samples[:0]
			return nil
		}

		for idx < n {
			s, err := next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if s.Timestamp.Before(start) {
				continue
			}
			k := q.index(s.Timestamp)
			if k < idx {
				continue
			}
			if k > idx {
				if err := flush(); err != nil {
					return err
				}
				idx = k
			}
			if idx < n {
				samples = append(samples, s)
			}
		}
		return flush()
	}), nil
}

// plotSamples picks the samples of one interval worth drawing.
func plotSamples(samples []types.TagValue) []types.TagValue {
	if len(samples) <= 4 {
		return slices.Clone(samples)
	}

	keep := map[int]bool{0: true, len(samples) - 1: true}
	lo, hi := -1, -1
	var loV, hiV float64
	for i, s := range samples {
		if s.Status != types.StatusGood {
			keep[i] = true
		}
		f, ok := s.Value.Float64()
		if !ok || !s.Value.IsFinite() {
			continue
		}
		if lo < 0 || f < loV {
			lo, loV = i, f
		}
		if hi < 0 || f > hiV {
			hi, hiV = i, f
		}
	}
	if lo >= 0 {
		keep[lo] = true
		keep[hi] = true
	}

	out := make([]types.TagValue, 0, len(keep))
	for i, s := range samples {
		if keep[i] {
			out = append(out, s)
		}
	}
	return out
}
