package features

import (
	"context"

	"github.com/randalmurphal/adapterkit/pkg/adapterkit/stream"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/types"
)

// HealthCheck reports adapter health.
type HealthCheck interface {
	CheckHealth(ctx context.Context) (types.HealthCheckResult, error)
}

// TagSearch finds tags in the adapter's catalogue.
type TagSearch interface {
	FindTags(ctx context.Context, req types.FindTagsRequest) (*stream.Channel[types.TagDefinition], error)
	GetTags(ctx context.Context, req types.GetTagsRequest) (*stream.Channel[types.TagDefinition], error)
}

// ReadSnapshotTagValues reads the current value of tags.
type ReadSnapshotTagValues interface {
	ReadSnapshotTagValues(ctx context.Context, req types.ReadSnapshotTagValuesRequest) (*stream.Channel[types.TagValueQueryResult], error)
}

// TagValueSubscription is a live feed of snapshot values for a set of tags.
type TagValueSubscription interface {
	ID() string
	Values() <-chan types.TagValueQueryResult
	Tags() []string
	AddTags(ctx context.Context, tags ...string) error
	RemoveTags(ctx context.Context, tags ...string) error
	Close() error
}

// SnapshotTagValuePush pushes snapshot value changes to subscribers.
type SnapshotTagValuePush interface {
	SubscribeSnapshotTagValues(ctx context.Context, req types.CreateSnapshotTagValueSubscriptionRequest) (TagValueSubscription, error)
}

// WriteSnapshotTagValues writes current values to tags.
type WriteSnapshotTagValues interface {
	WriteSnapshotTagValues(ctx context.Context, items []types.WriteTagValueItem) (*stream.Channel[types.WriteTagValueResult], error)
}

// ReadRawTagValues reads raw historical samples.
// Samples for each tag are returned in non-decreasing timestamp order.
type ReadRawTagValues interface {
	ReadRawTagValues(ctx context.Context, req types.ReadRawTagValuesRequest) (*stream.Channel[types.TagValueQueryResult], error)
}

// DataFunctionDescriptor describes an aggregation a ReadProcessedTagValues
// feature can compute.
type DataFunctionDescriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ReadProcessedTagValues reads bucketed aggregates.
type ReadProcessedTagValues interface {
	GetSupportedDataFunctions(ctx context.Context) ([]DataFunctionDescriptor, error)
	ReadProcessedTagValues(ctx context.Context, req types.ReadProcessedTagValuesRequest) (*stream.Channel[types.ProcessedTagValueQueryResult], error)
}

// ReadTagValuesAtTimes reads values at caller-chosen timestamps.
type ReadTagValuesAtTimes interface {
	ReadTagValuesAtTimes(ctx context.Context, req types.ReadTagValuesAtTimesRequest) (*stream.Channel[types.TagValueQueryResult], error)
}

// ReadPlotTagValues reads values suitable for trending.
type ReadPlotTagValues interface {
	ReadPlotTagValues(ctx context.Context, req types.ReadPlotTagValuesRequest) (*stream.Channel[types.TagValueQueryResult], error)
}

// EventMessageSubscription is a live feed of event messages.
type EventMessageSubscription interface {
	ID() string
	Values() <-chan types.EventMessage
	Close() error
}

// EventMessagePush pushes event messages to subscribers.
type EventMessagePush interface {
	SubscribeEventMessages(ctx context.Context, req types.CreateEventMessageSubscriptionRequest) (EventMessageSubscription, error)
}

// ReadEventMessagesForTimeRange reads stored event messages by time.
type ReadEventMessagesForTimeRange interface {
	ReadEventMessagesForTimeRange(ctx context.Context, req types.ReadEventMessagesForTimeRangeRequest) (*stream.Channel[types.EventMessage], error)
}

// ReadEventMessagesUsingCursor reads stored event messages after a cursor.
type ReadEventMessagesUsingCursor interface {
	ReadEventMessagesUsingCursor(ctx context.Context, req types.ReadEventMessagesUsingCursorRequest) (*stream.Channel[types.EventMessageWithCursor], error)
}

// WriteEventMessages stores event messages.
type WriteEventMessages interface {
	WriteEventMessages(ctx context.Context, items []types.WriteEventMessageItem) (*stream.Channel[types.WriteEventMessageResult], error)
}

// ExtensionFeature is a vendor-defined feature whose operations are addressed
// by ID and exchange serialized payloads.
type ExtensionFeature interface {
	// Descriptor returns the feature's identity. Its URI is the registry key.
	Descriptor() FeatureDescriptor

	// GetOperations lists the operations the feature exposes.
	GetOperations(ctx context.Context) ([]ExtensionOperationDescriptor, error)

	// Invoke calls a unary operation.
	Invoke(ctx context.Context, operationID string, payload []byte) ([]byte, error)

	// Stream calls a server-streaming operation.
	Stream(ctx context.Context, operationID string, payload []byte) (*stream.Channel[[]byte], error)

	// DuplexStream calls a bidirectional streaming operation.
	DuplexStream(ctx context.Context, operationID string, in *stream.Channel[[]byte]) (*stream.Channel[[]byte], error)
}

// Shutdowner is implemented by features that release resources asynchronously.
// Features implementing io.Closer are closed instead.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

type contract struct {
	key        FeatureKey
	satisfies  func(any) bool
	descriptor FeatureDescriptor
}

func implements[T any](v any) bool {
	_, ok := v.(T)
	return ok
}

var standardContracts = []contract{
	{KeyHealthCheck, implements[HealthCheck], FeatureDescriptor{
		URI: KeyHealthCheck, DisplayName: "Health Check", Category: "Diagnostics",
		Description: "Reports the health of the adapter and its data source.",
	}},
	{KeyTagSearch, implements[TagSearch], FeatureDescriptor{
		URI: KeyTagSearch, DisplayName: "Tag Search", Category: "Real-Time Data",
		Description: "Finds tags and retrieves tag definitions.",
	}},
	{KeyReadSnapshotTagValues, implements[ReadSnapshotTagValues], FeatureDescriptor{
		URI: KeyReadSnapshotTagValues, DisplayName: "Read Snapshot Tag Values", Category: "Real-Time Data",
		Description: "Reads the current value of tags.",
	}},
	{KeySnapshotTagValuePush, implements[SnapshotTagValuePush], FeatureDescriptor{
		URI: KeySnapshotTagValuePush, DisplayName: "Snapshot Tag Value Push", Category: "Real-Time Data",
		Description: "Pushes snapshot value changes to subscribers.",
	}},
	{KeyWriteSnapshotTagValues, implements[WriteSnapshotTagValues], FeatureDescriptor{
		URI: KeyWriteSnapshotTagValues, DisplayName: "Write Snapshot Tag Values", Category: "Real-Time Data",
		Description: "Writes current values to tags.",
	}},
	{KeyReadRawTagValues, implements[ReadRawTagValues], FeatureDescriptor{
		URI: KeyReadRawTagValues, DisplayName: "Read Raw Tag Values", Category: "Historical Data",
		Description: "Reads raw historical samples.",
	}},
	{KeyReadProcessedTagValues, implements[ReadProcessedTagValues], FeatureDescriptor{
		URI: KeyReadProcessedTagValues, DisplayName: "Read Processed Tag Values", Category: "Historical Data",
		Description: "Reads bucketed aggregates computed by data functions.",
	}},
	{KeyReadTagValuesAtTimes, implements[ReadTagValuesAtTimes], FeatureDescriptor{
		URI: KeyReadTagValuesAtTimes, DisplayName: "Read Tag Values At Times", Category: "Historical Data",
		Description: "Reads values at specific timestamps.",
	}},
	{KeyReadPlotTagValues, implements[ReadPlotTagValues], FeatureDescriptor{
		URI: KeyReadPlotTagValues, DisplayName: "Read Plot Tag Values", Category: "Historical Data",
		Description: "Reads values suitable for trending.",
	}},
	{KeyEventMessagePush, implements[EventMessagePush], FeatureDescriptor{
		URI: KeyEventMessagePush, DisplayName: "Event Message Push", Category: "Events",
		Description: "Pushes event messages to subscribers.",
	}},
	{KeyReadEventMessagesForTimeRange, implements[ReadEventMessagesForTimeRange], FeatureDescriptor{
		URI: KeyReadEventMessagesForTimeRange, DisplayName: "Read Event Messages For Time Range", Category: "Events",
		Description: "Reads stored event messages by time range.",
	}},
	{KeyReadEventMessagesUsingCursor, implements[ReadEventMessagesUsingCursor], FeatureDescriptor{
		URI: KeyReadEventMessagesUsingCursor, DisplayName: "Read Event Messages Using Cursor", Category: "Events",
		Description: "Reads stored event messages after a cursor position.",
	}},
	{KeyWriteEventMessages, implements[WriteEventMessages], FeatureDescriptor{
		URI: KeyWriteEventMessages, DisplayName: "Write Event Messages", Category: "Events",
		Description: "Stores event messages.",
	}},
}

var contractsByKey = func() map[FeatureKey]contract {
	m := make(map[FeatureKey]contract, len(standardContracts))
	for _, c := range standardContracts {
		m[c.key] = c
	}
	return m
}()

// StandardDescriptor returns the descriptor of a standard feature key.
func StandardDescriptor(key FeatureKey) (FeatureDescriptor, bool) {
	c, ok := contractsByKey[key]
	return c.descriptor, ok
}

// Satisfies reports whether impl implements the contract key denotes.
// Extension keys require an ExtensionFeature.
func Satisfies(key FeatureKey, impl any) bool {
	if impl == nil {
		return false
	}
	if key.IsExtension() {
		return implements[ExtensionFeature](impl)
	}
	c, ok := contractsByKey[key]
	return ok && c.satisfies(impl)
}
