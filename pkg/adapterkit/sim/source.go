package sim

import (
	"context"
	"slices"
	"strings"
	"time"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// Source is the simulated data source. Values are pure functions of time,
// sampled on a grid of SampleInterval aligned to the Unix epoch, so the
// same query always returns the same samples.
type Source struct {
	tags     []Tag
	interval time.Duration
	period   time.Duration
	history  time.Duration
	now      func() time.Time
}

var (
	_ features.TagSearch             = (*Source)(nil)
	_ features.ReadSnapshotTagValues = (*Source)(nil)
	_ features.ReadRawTagValues      = (*Source)(nil)
)

// NewSource creates a source with n wave tags plus the state tag. History
// older than history before now is not available.
func NewSource(n int, interval, period, history time.Duration, now func() time.Time) *Source {
	if now == nil {
		now = time.Now
	}
	return &Source{
		tags:     catalogue(n),
		interval: interval,
		period:   period,
		history:  history,
		now:      now,
	}
}

// Tags returns the tag catalogue.
func (s *Source) Tags() []types.TagDefinition {
	out := make([]types.TagDefinition, len(s.tags))
	for i, t := range s.tags {
		out[i] = t.TagDefinition
	}
	return out
}

// FindTags implements features.TagSearch. Filters are case-insensitive
// substrings; Label matches any of a tag's labels.
func (s *Source) FindTags(ctx context.Context, req types.FindTagsRequest) (*stream.Channel[types.TagDefinition], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var matched []types.TagDefinition
	for _, t := range s.tags {
		if !contains(t.Name, req.Name) || !contains(t.Description, req.Description) || !contains(t.Units, req.Units) {
			continue
		}
		if req.Label != "" && !slices.ContainsFunc(t.Labels, func(l string) bool { return contains(l, req.Label) }) {
			continue
		}
		matched = append(matched, t.TagDefinition)
	}

	from := min((req.Page-1)*req.PageSize, len(matched))
	to := min(from+req.PageSize, len(matched))
	return stream.FromSlice(matched[from:to]), nil
}

func contains(s, substr string) bool {
	return substr == "" || strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// GetTags implements features.TagSearch. Tags are matched by ID or name;
// unknown tags are omitted.
func (s *Source) GetTags(ctx context.Context, req types.GetTagsRequest) (*stream.Channel[types.TagDefinition], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var out []types.TagDefinition
	for _, name := range req.Tags {
		if i := s.index(name); i >= 0 {
			out = append(out, s.tags[i].TagDefinition)
		}
	}
	return stream.FromSlice(out), nil
}

func (s *Source) index(name string) int {
	return slices.IndexFunc(s.tags, func(t Tag) bool {
		return t.ID == name || t.Name == name
	})
}

// resolve returns the catalogue indexes of names, failing on the first
// unknown tag.
func (s *Source) resolve(op string, names []string) ([]int, error) {
	out := make([]int, len(names))
	for i, name := range names {
		idx := s.index(name)
		if idx < 0 {
			return nil, akerrors.Validation(op, akerrors.ErrUnknownTag, "%q", name)
		}
		out[i] = idx
	}
	return out, nil
}

// ReadSnapshotTagValues implements features.ReadSnapshotTagValues. The
// snapshot is the most recent grid sample.
func (s *Source) ReadSnapshotTagValues(ctx context.Context, req types.ReadSnapshotTagValuesRequest) (*stream.Channel[types.TagValueQueryResult], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	idx, err := s.resolve("read_snapshot", req.Tags)
	if err != nil {
		return nil, err
	}

	at := s.floor(s.now())
	out := make([]types.TagValueQueryResult, len(idx))
	for i, n := range idx {
		out[i] = types.NewTagValueQueryResult(s.tags[n].TagSummary, s.valueAt(n, at))
	}
	return stream.FromSlice(out), nil
}

// ReadRawTagValues implements features.ReadRawTagValues. Samples are
// grouped by tag in request order. With BoundaryOutside the grid samples
// immediately before Start and after End are included when they exist.
func (s *Source) ReadRawTagValues(ctx context.Context, req types.ReadRawTagValuesRequest) (*stream.Channel[types.TagValueQueryResult], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	idx, err := s.resolve("read_raw", req.Tags)
	if err != nil {
		return nil, err
	}

	latest := s.floor(s.now())
	earliest := s.ceil(latest.Add(-s.history))
	from, to := s.ceil(req.Start), s.floor(req.End)
	if req.BoundaryType == types.BoundaryOutside {
		from = s.floor(req.Start.Add(-time.Nanosecond))
		to = s.ceil(req.End.Add(time.Nanosecond))
	}
	if from.Before(earliest) {
		from = earliest
	}
	if to.After(latest) {
		to = latest
	}

	return stream.Run(ctx, 0, func(ctx context.Context, w stream.Writer[types.TagValueQueryResult]) error {
		for _, n := range idx {
			tag := s.tags[n].TagSummary
			written := 0
			for t := from; !t.After(to); t = t.Add(s.interval) {
				if req.SampleCount > 0 && written == req.SampleCount {
					break
				}
				if err := w.Write(ctx, types.NewTagValueQueryResult(tag, s.valueAt(n, t))); err != nil {
					return err
				}
				written++
			}
		}
		return nil
	}), nil
}

// floor returns the last grid time at or before t.
func (s *Source) floor(t time.Time) time.Time {
	d := int64(s.interval)
	n := t.UnixNano()
	q := n / d
	if n%d < 0 {
		q--
	}
	return time.Unix(0, q*d).UTC()
}

// ceil returns the first grid time at or after t.
func (s *Source) ceil(t time.Time) time.Time {
	f := s.floor(t)
	if f.Before(t) {
		return f.Add(s.interval)
	}
	return f
}
