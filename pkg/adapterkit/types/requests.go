package types

import (
	"time"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
)

// DefaultPageSize is used when a paged request leaves PageSize unset.
const DefaultPageSize = 10

// ReadDirection is the order in which historical event messages are returned.
type ReadDirection int

// Read directions.
const (
	Forwards ReadDirection = iota
	Backwards
)

// String returns the direction name.
func (d ReadDirection) String() string {
	if d == Backwards {
		return "backwards"
	}
	return "forwards"
}

// FindTagsRequest searches the adapter's tag catalogue.
// Empty filters match everything; non-empty filters match case-insensitive
// substrings (implementations may support wildcards).
type FindTagsRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Units       string `json:"units,omitempty"`
	Label       string `json:"label,omitempty"`
	PageSize    int    `json:"page_size,omitempty"`
	Page        int    `json:"page,omitempty"`
}

// Validate checks paging values and applies defaults.
func (r *FindTagsRequest) Validate() error {
	return validatePaging("find_tags", &r.Page, &r.PageSize)
}

// GetTagsRequest looks up tags by ID or name.
type GetTagsRequest struct {
	Tags []string `json:"tags"`
}

// Validate checks that at least one tag is requested.
func (r *GetTagsRequest) Validate() error {
	return validateTags("get_tags", r.Tags)
}

// ReadSnapshotTagValuesRequest reads the current value of tags.
type ReadSnapshotTagValuesRequest struct {
	Tags []string `json:"tags"`
}

// Validate checks that at least one tag is requested.
func (r *ReadSnapshotTagValuesRequest) Validate() error {
	return validateTags("read_snapshot", r.Tags)
}

// RawDataBoundaryType controls whether raw reads include the samples
// immediately outside the query range.
type RawDataBoundaryType int

// Raw data boundary types.
const (
	BoundaryInside RawDataBoundaryType = iota
	BoundaryOutside
)

// ReadRawTagValuesRequest reads raw samples in [Start, End].
type ReadRawTagValuesRequest struct {
	Tags         []string            `json:"tags"`
	Start        time.Time           `json:"start"`
	End          time.Time           `json:"end"`
	SampleCount  int                 `json:"sample_count,omitempty"`
	BoundaryType RawDataBoundaryType `json:"boundary_type,omitempty"`
}

// Validate checks the tags and time range.
func (r *ReadRawTagValuesRequest) Validate() error {
	if err := validateTags("read_raw", r.Tags); err != nil {
		return err
	}
	if r.SampleCount < 0 {
		return akerrors.Validation("read_raw", akerrors.ErrInvalidRequest, "sample count %d is negative", r.SampleCount)
	}
	return ValidateTimeRange("read_raw", r.Start, r.End)
}

// ReadProcessedTagValuesRequest reads bucketed aggregates.
type ReadProcessedTagValuesRequest struct {
	Tags           []string      `json:"tags"`
	Start          time.Time     `json:"start"`
	End            time.Time     `json:"end"`
	SampleInterval time.Duration `json:"sample_interval"`
	DataFunctions  []string      `json:"data_functions"`
}

// Validate checks the tags, time range, interval and that at least one data
// function is requested. Data function names are checked by the engine that
// serves the request.
func (r *ReadProcessedTagValuesRequest) Validate() error {
	if err := validateTags("read_processed", r.Tags); err != nil {
		return err
	}
	if err := ValidateTimeRange("read_processed", r.Start, r.End); err != nil {
		return err
	}
	if err := ValidateSampleInterval("read_processed", r.SampleInterval); err != nil {
		return err
	}
	if len(r.DataFunctions) == 0 {
		return akerrors.Validation("read_processed", akerrors.ErrInvalidRequest, "no data functions requested")
	}
	return nil
}

// ReadTagValuesAtTimesRequest reads values at specific timestamps.
type ReadTagValuesAtTimesRequest struct {
	Tags        []string    `json:"tags"`
	SampleTimes []time.Time `json:"sample_times"`
}

// Validate checks the tags and that at least one time is requested.
func (r *ReadTagValuesAtTimesRequest) Validate() error {
	if err := validateTags("read_at_times", r.Tags); err != nil {
		return err
	}
	if len(r.SampleTimes) == 0 {
		return akerrors.Validation("read_at_times", akerrors.ErrInvalidRequest, "no sample times requested")
	}
	return nil
}

// ReadPlotTagValuesRequest reads values suitable for plotting a trend.
type ReadPlotTagValuesRequest struct {
	Tags      []string  `json:"tags"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Intervals int       `json:"intervals"`
}

// Validate checks the tags, time range and interval count.
func (r *ReadPlotTagValuesRequest) Validate() error {
	if err := validateTags("read_plot", r.Tags); err != nil {
		return err
	}
	if err := ValidateTimeRange("read_plot", r.Start, r.End); err != nil {
		return err
	}
	if r.Intervals <= 0 {
		return akerrors.Validation("read_plot", akerrors.ErrInvalidRequest, "intervals must be positive, got %d", r.Intervals)
	}
	return nil
}

// CreateSnapshotTagValueSubscriptionRequest opens a snapshot subscription.
type CreateSnapshotTagValueSubscriptionRequest struct {
	Tags []string         `json:"tags,omitempty"`
	Mode SubscriptionMode `json:"mode,omitempty"`
}

// CreateEventMessageSubscriptionRequest opens an event message subscription.
type CreateEventMessageSubscriptionRequest struct {
	Mode SubscriptionMode `json:"mode,omitempty"`
}

// ReadEventMessagesForTimeRangeRequest reads stored events with timestamps in
// [Start, End].
type ReadEventMessagesForTimeRangeRequest struct {
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	Direction ReadDirection `json:"direction,omitempty"`
	Page      int           `json:"page,omitempty"`
	PageSize  int           `json:"page_size,omitempty"`
}

// Validate checks the time range and paging values and applies defaults.
func (r *ReadEventMessagesForTimeRangeRequest) Validate() error {
	if r.Start.After(r.End) {
		return akerrors.Validation("read_events", akerrors.ErrInvalidTimeRange,
			"start %s is after end %s", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
	}
	return validatePaging("read_events", &r.Page, &r.PageSize)
}

// ReadEventMessagesUsingCursorRequest reads stored events after a cursor.
// An empty CursorPosition starts from the oldest (forwards) or newest
// (backwards) message.
type ReadEventMessagesUsingCursorRequest struct {
	CursorPosition string        `json:"cursor_position,omitempty"`
	Direction      ReadDirection `json:"direction,omitempty"`
	PageSize       int           `json:"page_size,omitempty"`
}

// Validate checks paging values and applies defaults.
func (r *ReadEventMessagesUsingCursorRequest) Validate() error {
	page := 1
	return validatePaging("read_events_cursor", &page, &r.PageSize)
}

// WriteEventMessageItem is one event message to write.
type WriteEventMessageItem struct {
	CorrelationID string       `json:"correlation_id,omitempty"`
	Message       EventMessage `json:"message"`
}

// WriteEventMessageResult is the outcome of a WriteEventMessageItem.
type WriteEventMessageResult struct {
	CorrelationID  string      `json:"correlation_id,omitempty"`
	Status         WriteStatus `json:"status"`
	CursorPosition string      `json:"cursor_position,omitempty"`
	Notes          string      `json:"notes,omitempty"`
}

// ValidateTimeRange returns ErrInvalidTimeRange unless start is before end.
func ValidateTimeRange(op string, start, end time.Time) error {
	if !start.Before(end) {
		return akerrors.Validation(op, akerrors.ErrInvalidTimeRange,
			"start %s must be before end %s", start.Format(time.RFC3339Nano), end.Format(time.RFC3339Nano))
	}
	return nil
}

// ValidateSampleInterval returns ErrInvalidSampleInterval unless interval is positive.
func ValidateSampleInterval(op string, interval time.Duration) error {
	if interval <= 0 {
		return akerrors.Validation(op, akerrors.ErrInvalidSampleInterval, "got %s", interval)
	}
	return nil
}

func validateTags(op string, tags []string) error {
	if len(tags) == 0 {
		return akerrors.Validation(op, akerrors.ErrInvalidRequest, "no tags requested")
	}
	for i, tag := range tags {
		if tag == "" {
			return akerrors.Validation(op, akerrors.ErrInvalidRequest, "tag %d is empty", i)
		}
	}
	return nil
}

func validatePaging(op string, page, pageSize *int) error {
	if *pageSize < 0 || *page < 0 {
		return akerrors.Validation(op, akerrors.ErrInvalidRequest, "page %d and page size %d must not be negative", *page, *pageSize)
	}
	if *pageSize == 0 {
		*pageSize = DefaultPageSize
	}
	if *page == 0 {
		*page = 1
	}
	return nil
}
