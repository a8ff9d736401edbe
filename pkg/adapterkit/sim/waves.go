package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// Wave is the shape of a simulated signal.
type Wave int

// Wave shapes, assigned to tags in this order.
const (
	Sine Wave = iota
	Sawtooth
	Square
	Triangle
)

var waveNames = [...]string{"sine", "sawtooth", "square", "triangle"}

// String returns the wave name.
func (w Wave) String() string {
	if int(w) < len(waveNames) {
		return waveNames[w]
	}
	return "unknown"
}

// unit returns the wave's value in [-1, 1] at phase f in [0, 1).
func (w Wave) unit(f float64) float64 {
	switch w {
	case Sawtooth:
		return 2*f - 1
	case Square:
		if f < 0.5 {
			return 1
		}
		return -1
	case Triangle:
		return 4*math.Abs(f-0.5) - 1
	default:
		return math.Sin(2 * math.Pi * f)
	}
}

// Signal amplitude and offset. Every wave spans [0, 100] percent.
const (
	amplitude = 50.0
	offset    = 50.0
	units     = "%"
)

// StateTagID identifies the two-state tag. It is high for the first half of
// every period.
const StateTagID = "state"

// State names of the state tag.
const (
	StateLow  = "low"
	StateHigh = "high"
)

// Tag is a simulated tag.
type Tag struct {
	types.TagDefinition
	Wave Wave
}

// numeric reports whether the tag carries a wave rather than a state.
func (t Tag) numeric() bool {
	return t.ID != StateTagID
}

// catalogue returns n wave tags followed by the state tag.
func catalogue(n int) []Tag {
	tags := make([]Tag, 0, n+1)
	for i := range n {
		w := Wave(i % len(waveNames))
		tags = append(tags, Tag{
			Wave: w,
			TagDefinition: types.TagDefinition{
				TagSummary: types.TagSummary{
					ID:          fmt.Sprintf("wave-%02d", i),
					Name:        fmt.Sprintf("%s_%02d", w, i),
					Description: fmt.Sprintf("Simulated %s wave", w),
					Units:       units,
					DataType:    types.VariantTypeFloat64,
				},
				Labels: []string{"simulated", w.String()},
			},
		})
	}
	tags = append(tags, Tag{
		Wave: Square,
		TagDefinition: types.TagDefinition{
			TagSummary: types.TagSummary{
				ID:          StateTagID,
				Name:        StateTagID,
				Description: "Simulated two-state signal",
				DataType:    types.VariantTypeString,
			},
			States: []types.DigitalState{
				{Name: StateLow, Value: 0},
				{Name: StateHigh, Value: 1},
			},
			Labels: []string{"simulated", "state"},
		},
	})
	return tags
}

// phase returns the position of t within period as a fraction in [0, 1).
// Tags are offset from each other by a fraction of the period.
func phase(t time.Time, period time.Duration, index int) float64 {
	p := int64(period)
	shift := int64(index) * p / 8
	n := (t.UnixNano() + shift) % p
	if n < 0 {
		n += p
	}
	return float64(n) / float64(p)
}

// valueAt returns the tag's value at t.
func (s *Source) valueAt(i int, t time.Time) types.TagValue {
	tag := s.tags[i]
	if !tag.numeric() {
		state := StateLow
		if Square.unit(phase(t, s.period, 0)) > 0 {
			state = StateHigh
		}
		return types.NewTagValue(t, state, types.StatusGood, "")
	}
	v := offset + amplitude*tag.Wave.unit(phase(t, s.period, i))
	return types.NewTagValue(t, v, types.StatusGood, units)
}
