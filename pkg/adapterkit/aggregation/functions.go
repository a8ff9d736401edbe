package aggregation

import (
	"math"
	"time"

	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// Built-in data function IDs.
const (
	FuncAverage     = "AVG"
	FuncMinimum     = "MIN"
	FuncMaximum     = "MAX"
	FuncCount       = "COUNT"
	FuncRange       = "RANGE"
	FuncInterpolate = "INTERP"
	FuncDelta       = "DELTA"
	FuncPercentGood = "PERCENTGOOD"
	FuncPercentBad  = "PERCENTBAD"
)

// Bucket is one half-open interval [Start, End) of a tag's raw samples.
type Bucket struct {
	Tag   types.TagSummary
	Start time.Time
	End   time.Time

	// Samples are the raw samples inside the bucket, in arrival order.
	Samples []types.TagValue

	// Before holds up to two samples preceding the bucket. It is only
	// populated when a requested function sets NeedsBoundary.
	Before []types.TagValue

	// After is the first sample past the bucket, if one has been read.
	After *types.TagValue
}

// DataFunction computes zero or more values for a bucket.
type DataFunction struct {
	Descriptor features.DataFunctionDescriptor

	// NeedsBoundary requests that Bucket.Before be populated.
	NeedsBoundary bool

	// Compute returns the function's values for b. An empty result emits
	// nothing for the bucket.
	Compute func(b Bucket) []types.TagValue
}

// BuiltinFunctions returns the data functions every Helper starts with.
func BuiltinFunctions() []DataFunction {
	return []DataFunction{
		{
			Descriptor: features.DataFunctionDescriptor{ID: FuncAverage, Name: "Average", Description: "Time-unweighted mean of the numeric samples in each interval."},
			Compute:    average,
		},
		{
			Descriptor: features.DataFunctionDescriptor{ID: FuncMinimum, Name: "Minimum", Description: "Smallest numeric sample in each interval."},
			Compute:    minimum,
		},
		{
			Descriptor: features.DataFunctionDescriptor{ID: FuncMaximum, Name: "Maximum", Description: "Largest numeric sample in each interval."},
			Compute:    maximum,
		},
		{
			Descriptor: features.DataFunctionDescriptor{ID: FuncCount, Name: "Count", Description: "Number of raw samples in each interval."},
			Compute:    count,
		},
		{
			Descriptor: features.DataFunctionDescriptor{ID: FuncRange, Name: "Range", Description: "Absolute difference between the largest and smallest numeric samples in each interval."},
			Compute:    valueRange,
		},
		{
			Descriptor:    features.DataFunctionDescriptor{ID: FuncInterpolate, Name: "Interpolate", Description: "Interpolated value at the start of each interval."},
			NeedsBoundary: true,
			Compute:       interpolate,
		},
		{
			Descriptor: features.DataFunctionDescriptor{ID: FuncDelta, Name: "Delta", Description: "Difference between the last and first numeric samples in each interval."},
			Compute:    delta,
		},
		{
			Descriptor: features.DataFunctionDescriptor{ID: FuncPercentGood, Name: "Percent Good", Description: "Percentage of samples in each interval with good status."},
			Compute:    percentStatus(types.StatusGood),
		},
		{
			Descriptor: features.DataFunctionDescriptor{ID: FuncPercentBad, Name: "Percent Bad", Description: "Percentage of samples in each interval with bad status."},
			Compute:    percentStatus(types.StatusBad),
		},
	}
}

// numeric returns the finite numeric sample values of b and the worst status
// across all of its samples.
func numeric(b Bucket) ([]float64, types.TagValueStatus) {
	values := make([]float64, 0, len(b.Samples))
	status := types.StatusGood
	for _, s := range b.Samples {
		status = types.WorstStatus(status, s.Status)
		if !s.Value.IsFinite() {
			continue
		}
		f, _ := s.Value.Float64()
		values = append(values, f)
	}
	return values, status
}

func atEnd(b Bucket, v float64, status types.TagValueStatus) []types.TagValue {
	return []types.TagValue{{
		Timestamp: b.End,
		Value:     types.Float64Variant(v),
		Status:    status,
		Units:     b.Tag.Units,
	}}
}

func average(b Bucket) []types.TagValue {
	values, status := numeric(b)
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return atEnd(b, sum/float64(len(values)), status)
}

func minimum(b Bucket) []types.TagValue {
	values, status := numeric(b)
	if len(values) == 0 {
		return nil
	}
	m := math.Inf(1)
	for _, v := range values {
		m = math.Min(m, v)
	}
	return atEnd(b, m, status)
}

func maximum(b Bucket) []types.TagValue {
	values, status := numeric(b)
	if len(values) == 0 {
		return nil
	}
	m := math.Inf(-1)
	for _, v := range values {
		m = math.Max(m, v)
	}
	return atEnd(b, m, status)
}

func valueRange(b Bucket) []types.TagValue {
	values, status := numeric(b)
	if len(values) == 0 {
		return nil
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return atEnd(b, math.Abs(hi-lo), status)
}

func delta(b Bucket) []types.TagValue {
	values, status := numeric(b)
	if len(values) == 0 {
		return nil
	}
	return atEnd(b, values[len(values)-1]-values[0], status)
}

// count always reports, so empty buckets are visible as zero.
func count(b Bucket) []types.TagValue {
	return []types.TagValue{{
		Timestamp: b.End,
		Value:     types.NewVariant(int64(len(b.Samples))),
		Status:    types.StatusGood,
	}}
}

func percentStatus(want types.TagValueStatus) func(Bucket) []types.TagValue {
	return func(b Bucket) []types.TagValue {
		if len(b.Samples) == 0 {
			return nil
		}
		n := 0
		for _, s := range b.Samples {
			if s.Status == want {
				n++
			}
		}
		return []types.TagValue{{
			Timestamp: b.End,
			Value:     types.Float64Variant(100 * float64(n) / float64(len(b.Samples))),
			Status:    types.StatusGood,
			Units:     "%",
		}}
	}
}

// interpolate reports the value at the bucket start, bracketed by the
// pre-bucket samples, the bucket's own samples and the first sample after it.
func interpolate(b Bucket) []types.TagValue {
	var before, after *types.TagValue
	for i := range b.Before {
		if !b.Before[i].Timestamp.After(b.Start) {
			before = &b.Before[i]
		}
	}
	for i := range b.Samples {
		s := &b.Samples[i]
		if !s.Timestamp.After(b.Start) {
			before = s
			continue
		}
		after = s
		break
	}
	if after == nil {
		after = b.After
	}

	v, err := GetValueAtTime(b.Tag, b.Start, before, after)
	if err != nil {
		return nil
	}
	return []types.TagValue{v}
}
