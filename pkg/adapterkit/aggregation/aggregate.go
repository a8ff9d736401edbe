package aggregation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/observability"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/registry"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// DefaultTagBuffer is the per-tag buffer used when a multi-tag query is
// split into one stream per tag.
const DefaultTagBuffer = 100

// Helper evaluates data functions over raw tag value streams.
// The zero value is not usable; create one with NewHelper.
type Helper struct {
	funcs     *registry.Registry[string, DataFunction]
	tagBuffer int
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
}

// Option configures a Helper.
type Option func(*Helper)

// WithLogger sets the logger used for query faults.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Helper) {
		h.logger = logger
	}
}

// WithMetrics records query counts and latency.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(h *Helper) {
		h.metrics = m
	}
}

// WithSpanManager traces queries.
func WithSpanManager(s observability.SpanManager) Option {
	return func(h *Helper) {
		h.spans = s
	}
}

// WithTagBuffer sets the per-tag buffer of multi-tag queries.
func WithTagBuffer(n int) Option {
	return func(h *Helper) {
		if n > 0 {
			h.tagBuffer = n
		}
	}
}

// NewHelper creates a helper with the built-in data functions registered.
func NewHelper(opts ...Option) *Helper {
	h := &Helper{
		funcs:     registry.New[string, DataFunction](),
		tagBuffer: DefaultTagBuffer,
		logger:    slog.Default(),
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(h)
	}
	for _, fn := range BuiltinFunctions() {
		h.funcs.Set(normalizeID(fn.Descriptor.ID), fn)
	}
	return h
}

var defaultHelper = NewHelper()

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Register adds a custom data function. IDs are case-insensitive.
func (h *Helper) Register(fn DataFunction) error {
	id := normalizeID(fn.Descriptor.ID)
	if id == "" || fn.Compute == nil {
		return akerrors.Configuration("aggregation.register", akerrors.ErrInvalidRequest,
			"data function needs an ID and a Compute func")
	}
	if !h.funcs.Add(id, fn) {
		return akerrors.Configuration("aggregation.register", akerrors.ErrDuplicateDataFunction, "%s", id)
	}
	return nil
}

// SupportedDataFunctions describes every registered function, sorted by ID.
func (h *Helper) SupportedDataFunctions() []features.DataFunctionDescriptor {
	fns := h.funcs.Values()
	out := make([]features.DataFunctionDescriptor, len(fns))
	for i, fn := range fns {
		out[i] = fn.Descriptor
	}
	slices.SortFunc(out, func(a, b features.DataFunctionDescriptor) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Resolve looks up the named functions, failing with
// ErrUnsupportedDataFunction on the first unknown name.
func (h *Helper) Resolve(names []string) ([]DataFunction, error) {
	if len(names) == 0 {
		return nil, akerrors.Validation("aggregate", akerrors.ErrInvalidRequest, "no data functions requested")
	}
	out := make([]DataFunction, 0, len(names))
	for _, name := range names {
		fn, ok := h.funcs.Get(normalizeID(name))
		if !ok {
			return nil, akerrors.Validation("aggregate", akerrors.ErrUnsupportedDataFunction, "%q", name)
		}
		out = append(out, fn)
	}
	return out, nil
}

// GetAggregatedValues aggregates with the built-in data functions only.
func GetAggregatedValues(ctx context.Context, tags []types.TagSummary, funcs []string, start, end time.Time, interval time.Duration, raw *stream.Channel[types.TagValueQueryResult]) (*stream.Channel[types.ProcessedTagValueQueryResult], error) {
	return defaultHelper.GetAggregatedValues(ctx, tags, funcs, start, end, interval, raw)
}

// GetAggregatedValues partitions [start, end) into buckets of width interval
// aligned to start and evaluates funcs for every bucket of every tag. The
// last bucket is clipped to end.
//
// raw may interleave samples of several tags; samples are matched to tags by
// ID or name and samples of other tags are ignored. With more than one tag
// the stream is split per tag and each tag is aggregated concurrently.
func (h *Helper) GetAggregatedValues(ctx context.Context, tags []types.TagSummary, funcs []string, start, end time.Time, interval time.Duration, raw *stream.Channel[types.TagValueQueryResult]) (*stream.Channel[types.ProcessedTagValueQueryResult], error) {
	if len(tags) == 0 {
		return nil, akerrors.Validation("aggregate", akerrors.ErrInvalidRequest, "no tags requested")
	}
	if err := types.ValidateTimeRange("aggregate", start, end); err != nil {
		return nil, err
	}
	if err := types.ValidateSampleInterval("aggregate", interval); err != nil {
		return nil, err
	}
	fns, err := h.Resolve(funcs)
	if err != nil {
		return nil, err
	}

	tagIDs := ids(tags)
	ctx, span := h.spans.StartQuerySpan(ctx, "aggregate", tagIDs)
	began := time.Now()

	q := query{fns: fns, start: start, end: end, interval: interval}
	return stream.Run(ctx, h.tagBuffer, func(ctx context.Context, w stream.Writer[types.ProcessedTagValueQueryResult]) (err error) {
		defer func() {
			h.metrics.RecordQuery(ctx, "aggregate", time.Since(began), err)
			h.spans.EndSpanWithError(span, err)
			if err != nil && ctx.Err() == nil {
				observability.LogQueryError(h.logger, "aggregate", strings.Join(tagIDs, ","), err)
			}
		}()

		if len(tags) == 1 {
			tag := tags[0]
			return q.run(ctx, tag, filtered(raw, tag), w)
		}
		return h.fanOut(ctx, q, tags, raw, w)
	}), nil
}

// fanOut splits raw into one buffered stream per tag and aggregates each
// on its own goroutine.
func (h *Helper) fanOut(ctx context.Context, q query, tags []types.TagSummary, raw *stream.Channel[types.TagValueQueryResult], w stream.Writer[types.ProcessedTagValueQueryResult]) error {
	g, gctx := errgroup.WithContext(ctx)

	inputs := make([]*stream.Channel[types.TagValue], len(tags))
	route := make(map[string]*stream.Channel[types.TagValue], 2*len(tags))
	for i, tag := range tags {
		in := stream.New[types.TagValue](h.tagBuffer)
		inputs[i] = in
		route[tag.ID] = in
		if tag.Name != "" {
			if _, taken := route[tag.Name]; !taken {
				route[tag.Name] = in
			}
		}
	}

	g.Go(func() (err error) {
		defer func() {
			for _, in := range inputs {
				in.Complete(err)
			}
		}()
		for {
			v, err := raw.Read(gctx)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			in, ok := route[v.TagID]
			if !ok {
				in, ok = route[v.TagName]
			}
			if !ok {
				continue
			}
			if err := in.Write(gctx, v.Value); err != nil {
				return err
			}
		}
	})

	for i, tag := range tags {
		in := inputs[i]
		g.Go(func() error {
			if err := q.run(gctx, tag, in.Read, w); err != nil {
				return err
			}
			// run stops at end; later samples still arrive and must not
			// fill the buffer under the demux.
			return drain(gctx, in)
		})
	}
	return g.Wait()
}

// drain discards the rest of in until it completes.
func drain[T any](ctx context.Context, in *stream.Channel[T]) error {
	for {
		if _, err := in.Read(ctx); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// filtered reads raw, skipping samples of other tags.
func filtered(raw *stream.Channel[types.TagValueQueryResult], tag types.TagSummary) func(context.Context) (types.TagValue, error) {
	return func(ctx context.Context) (types.TagValue, error) {
		for {
			v, err := raw.Read(ctx)
			if err != nil {
				return types.TagValue{}, err
			}
			if v.TagID == tag.ID || (tag.Name != "" && v.TagName == tag.Name) {
				return v.Value, nil
			}
		}
	}
}

type query struct {
	fns      []DataFunction
	start    time.Time
	end      time.Time
	interval time.Duration
}

func (q query) buckets() int {
	d := q.end.Sub(q.start)
	n := int(d / q.interval)
	if d%q.interval != 0 {
		n++
	}
	return n
}

// index returns the bucket ts falls in, or buckets() when ts is at or past end.
func (q query) index(ts time.Time) int {
	if !ts.Before(q.end) {
		return q.buckets()
	}
	return int(ts.Sub(q.start) / q.interval)
}

func (q query) bucket(tag types.TagSummary, k int) Bucket {
	start := q.start.Add(time.Duration(k) * q.interval)
	end := start.Add(q.interval)
	if end.After(q.end) {
		end = q.end
	}
	return Bucket{Tag: tag, Start: start, End: end}
}

func (q query) needsBoundary() bool {
	return slices.ContainsFunc(q.fns, func(fn DataFunction) bool { return fn.NeedsBoundary })
}

// run aggregates one tag. Samples are read once; each bucket is evaluated as
// soon as a sample past it arrives.
func (q query) run(ctx context.Context, tag types.TagSummary, next func(context.Context) (types.TagValue, error), w stream.Writer[types.ProcessedTagValueQueryResult]) error {
	n := q.buckets()
	boundary := q.needsBoundary()

	var carry []types.TagValue
	keep := func(samples ...types.TagValue) {
		if !boundary {
			return
		}
		carry = append(carry, samples...)
		if len(carry) > 2 {
			carry = slices.Clone(carry[len(carry)-2:])
		}
	}

	idx := 0
	cur := q.bucket(tag, 0)
	closeBucket := func(after *types.TagValue) error {
		cur.Before = slices.Clone(carry)
		cur.After = after
		if err := q.emit(ctx, cur, w); err != nil {
			return err
		}
		keep(cur.Samples...)
		idx++
		cur = q.bucket(tag, idx)
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

		if s.Timestamp.Before(q.start) {
			keep(s)
			continue
		}
		k := q.index(s.Timestamp)
		if k < idx {
			// older than the open bucket; input is not re-sorted
			continue
		}
		for idx < k {
			if err := closeBucket(&s); err != nil {
				return err
			}
		}
		if idx < n {
			cur.Samples = append(cur.Samples, s)
		}
	}

	for idx < n {
		if err := closeBucket(nil); err != nil {
			return err
		}
	}
	return nil
}

func (q query) emit(ctx context.Context, b Bucket, w stream.Writer[types.ProcessedTagValueQueryResult]) error {
	for _, fn := range q.fns {
		values, err := compute(fn, b)
		if err != nil {
			return err
		}
		for _, v := range values {
			out := types.ProcessedTagValueQueryResult{
				TagValueQueryResult: types.NewTagValueQueryResult(b.Tag, v),
				DataFunction:        fn.Descriptor.ID,
			}
			if err := w.Write(ctx, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// compute runs fn, turning a panic into a runtime fault.
func compute(fn DataFunction, b Bucket) (values []types.TagValue, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = akerrors.Runtime("aggregate", fmt.Errorf("panic: %v", r), "data function %s failed", fn.Descriptor.ID)
		}
	}()
	return fn.Compute(b), nil
}
