package aggregation

import (
	"context"
	"io"
	"slices"
	"time"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// ProcessedReader serves processed, at-times and plot reads for an adapter
// that can only read raw history. Tags are resolved through the adapter's
// tag search feature before any raw data is read.
type ProcessedReader struct {
	raw    features.ReadRawTagValues
	tags   features.TagSearch
	helper *Helper
}

var (
	_ features.ReadProcessedTagValues = (*ProcessedReader)(nil)
	_ features.ReadTagValuesAtTimes   = (*ProcessedReader)(nil)
	_ features.ReadPlotTagValues      = (*ProcessedReader)(nil)
)

// NewProcessedReader creates a reader over raw. A nil helper uses the
// built-in data functions.
func NewProcessedReader(raw features.ReadRawTagValues, tags features.TagSearch, helper *Helper) *ProcessedReader {
	if helper == nil {
		helper = defaultHelper
	}
	return &ProcessedReader{raw: raw, tags: tags, helper: helper}
}

// GetSupportedDataFunctions implements features.ReadProcessedTagValues.
func (r *ProcessedReader) GetSupportedDataFunctions(context.Context) ([]features.DataFunctionDescriptor, error) {
	return r.helper.SupportedDataFunctions(), nil
}

// ReadProcessedTagValues implements features.ReadProcessedTagValues.
func (r *ProcessedReader) ReadProcessedTagValues(ctx context.Context, req types.ReadProcessedTagValuesRequest) (*stream.Channel[types.ProcessedTagValueQueryResult], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := r.helper.Resolve(req.DataFunctions); err != nil {
		return nil, err
	}
	tags, err := r.resolve(ctx, req.Tags)
	if err != nil {
		return nil, err
	}

	rawCtx, cancel := context.WithCancel(ctx)
	raw, err := r.raw.ReadRawTagValues(rawCtx, types.ReadRawTagValuesRequest{
		Tags:         ids(tags),
		Start:        req.Start,
		End:          req.End,
		BoundaryType: types.BoundaryOutside,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	out, err := r.helper.GetAggregatedValues(ctx, tags, req.DataFunctions, req.Start, req.End, req.SampleInterval, raw)
	if err != nil {
		cancel()
		return nil, err
	}
	releaseWhenDone(out.Done(), cancel)
	return out, nil
}

// ReadTagValuesAtTimes implements features.ReadTagValuesAtTimes.
// Results are grouped by tag in request order.
func (r *ProcessedReader) ReadTagValuesAtTimes(ctx context.Context, req types.ReadTagValuesAtTimesRequest) (*stream.Channel[types.TagValueQueryResult], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	tags, err := r.resolve(ctx, req.Tags)
	if err != nil {
		return nil, err
	}

	first := slices.MinFunc(req.SampleTimes, time.Time.Compare)
	last := slices.MaxFunc(req.SampleTimes, time.Time.Compare)
	return r.perTag(ctx, tags, first, last.Add(time.Nanosecond), func(ctx context.Context, tag types.TagSummary, raw *stream.Channel[types.TagValueQueryResult]) (*stream.Channel[types.TagValueQueryResult], error) {
		return GetValuesAtSampleTimes(ctx, tag, req.SampleTimes, raw)
	}), nil
}

// ReadPlotTagValues implements features.ReadPlotTagValues.
// Results are grouped by tag in request order.
func (r *ProcessedReader) ReadPlotTagValues(ctx context.Context, req types.ReadPlotTagValuesRequest) (*stream.Channel[types.TagValueQueryResult], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	tags, err := r.resolve(ctx, req.Tags)
	if err != nil {
		return nil, err
	}

	return r.perTag(ctx, tags, req.Start, req.End, func(ctx context.Context, tag types.TagSummary, raw *stream.Channel[types.TagValueQueryResult]) (*stream.Channel[types.TagValueQueryResult], error) {
		return GetPlotValues(ctx, tag, req.Start, req.End, req.Intervals, raw)
	}), nil
}

type tagQuery func(ctx context.Context, tag types.TagSummary, raw *stream.Channel[types.TagValueQueryResult]) (*stream.Channel[types.TagValueQueryResult], error)

// perTag reads raw history one tag at a time and concatenates the results.
func (r *ProcessedReader) perTag(ctx context.Context, tags []types.TagSummary, start, end time.Time, fn tagQuery) *stream.Channel[types.TagValueQueryResult] {
	return stream.Run(ctx, 0, func(ctx context.Context, w stream.Writer[types.TagValueQueryResult]) error {
		for _, tag := range tags {
			if err := r.readTag(ctx, tag, start, end, fn, w); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ProcessedReader) readTag(ctx context.Context, tag types.TagSummary, start, end time.Time, fn tagQuery, w stream.Writer[types.TagValueQueryResult]) error {
	rawCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	raw, err := r.raw.ReadRawTagValues(rawCtx, types.ReadRawTagValuesRequest{
		Tags:         []string{tag.ID},
		Start:        start,
		End:          end,
		BoundaryType: types.BoundaryOutside,
	})
	if err != nil {
		return err
	}
	results, err := fn(ctx, tag, raw)
	if err != nil {
		return err
	}
	for {
		v, err := results.Read(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := w.Write(ctx, v); err != nil {
			return err
		}
	}
}

// resolve maps requested tag IDs or names to tag summaries, failing with
// ErrUnknownTag for any that the adapter does not know.
func (r *ProcessedReader) resolve(ctx context.Context, names []string) ([]types.TagSummary, error) {
	ch, err := r.tags.GetTags(ctx, types.GetTagsRequest{Tags: names})
	if err != nil {
		return nil, err
	}
	defs, err := stream.Collect(ctx, ch)
	if err != nil {
		return nil, err
	}

	out := make([]types.TagSummary, 0, len(names))
	for _, name := range names {
		i := slices.IndexFunc(defs, func(d types.TagDefinition) bool {
			return d.ID == name || d.Name == name
		})
		if i < 0 {
			return nil, akerrors.Validation("resolve_tags", akerrors.ErrUnknownTag, "%q", name)
		}
		out = append(out, defs[i].TagSummary)
	}
	return out, nil
}

func ids(tags []types.TagSummary) []string {
	out := make([]string, len(tags))
	for i, tag := range tags {
		out[i] = tag.ID
	}
	return out
}

// releaseWhenDone calls cancel once done is closed.
func releaseWhenDone(done <-chan struct{}, cancel context.CancelFunc) {
	go func() {
		<-done
		cancel()
	}()
}
