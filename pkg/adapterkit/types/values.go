package types

import (
	"time"
)

// TagValueStatus is the quality of a tag value.
// The ordering Bad < Uncertain < Good is significant: the "worst" of two
// statuses is the minimum.
type TagValueStatus int

// Tag value statuses.
const (
	StatusBad       TagValueStatus = 0
	StatusUncertain TagValueStatus = 64
	StatusGood      TagValueStatus = 192
)

// String returns the status name.
func (s TagValueStatus) String() string {
	switch {
	case s >= StatusGood:
		return "good"
	case s >= StatusUncertain:
		return "uncertain"
	default:
		return "bad"
	}
}

// WorstStatus returns the worst of the given statuses.
// With no arguments it returns StatusGood.
func WorstStatus(statuses ...TagValueStatus) TagValueStatus {
	worst := StatusGood
	for _, s := range statuses {
		if s < worst {
			worst = s
		}
	}
	return worst
}

// Property is a named variant attached to tags, values and events.
type Property struct {
	Name  string  `json:"name"`
	Value Variant `json:"value"`
}

// TagValue is a single sample of a tag.
type TagValue struct {
	Timestamp  time.Time      `json:"timestamp"`
	Value      Variant        `json:"value"`
	Status     TagValueStatus `json:"status"`
	Units      string         `json:"units,omitempty"`
	Notes      string         `json:"notes,omitempty"`
	Error      string         `json:"error,omitempty"`
	Properties []Property     `json:"properties,omitempty"`
}

// NewTagValue creates a tag value with a UTC timestamp.
func NewTagValue(ts time.Time, value any, status TagValueStatus, units string) TagValue {
	return TagValue{
		Timestamp: ts.UTC(),
		Value:     NewVariant(value),
		Status:    status,
		Units:     units,
	}
}

// WithTimestamp returns a copy of the value relabelled with ts.
func (v TagValue) WithTimestamp(ts time.Time) TagValue {
	out := v
	out.Timestamp = ts.UTC()
	if len(v.Properties) > 0 {
		out.Properties = append([]Property(nil), v.Properties...)
	}
	return out
}

// TagSummary identifies a tag and describes its data.
type TagSummary struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Units       string      `json:"units,omitempty"`
	DataType    VariantType `json:"data_type"`
}

// IsNumeric reports whether the tag holds interpolatable numeric data.
func (t TagSummary) IsNumeric() bool {
	return t.DataType.IsNumeric()
}

// DigitalState is a named state of a state-based tag.
type DigitalState struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// TagDefinition is the full description of a tag returned by tag searches.
type TagDefinition struct {
	TagSummary
	States     []DigitalState `json:"states,omitempty"`
	Labels     []string       `json:"labels,omitempty"`
	Properties []Property     `json:"properties,omitempty"`
}

// TagValueQueryResult is a value of a specific tag.
type TagValueQueryResult struct {
	TagID   string   `json:"tag_id"`
	TagName string   `json:"tag_name"`
	Value   TagValue `json:"value"`
}

// NewTagValueQueryResult creates a query result for tag.
func NewTagValueQueryResult(tag TagSummary, value TagValue) TagValueQueryResult {
	return TagValueQueryResult{TagID: tag.ID, TagName: tag.Name, Value: value}
}

// ProcessedTagValueQueryResult is an aggregated value produced by a data function.
type ProcessedTagValueQueryResult struct {
	TagValueQueryResult
	DataFunction string `json:"data_function"`
}

// HealthStatus is the result of a health check.
type HealthStatus int

// Health statuses, ordered from worst to best.
const (
	HealthUnhealthy HealthStatus = iota
	HealthDegraded
	HealthHealthy
)

// String returns the health status name.
func (s HealthStatus) String() string {
	switch s {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	default:
		return "unhealthy"
	}
}

// HealthCheckResult describes the health of an adapter or one of its parts.
type HealthCheckResult struct {
	Status      HealthStatus        `json:"status"`
	Description string              `json:"description"`
	Error       string              `json:"error,omitempty"`
	Inner       []HealthCheckResult `json:"inner,omitempty"`
}

// WriteStatus is the outcome of a single write.
type WriteStatus int

// Write statuses.
const (
	WriteStatusUnknown WriteStatus = iota
	WriteStatusSuccess
	WriteStatusFail
	WriteStatusPending
)

// WriteTagValueItem is one value to write to a tag.
type WriteTagValueItem struct {
	CorrelationID string   `json:"correlation_id,omitempty"`
	TagID         string   `json:"tag_id"`
	Value         TagValue `json:"value"`
}

// WriteTagValueResult is the outcome of a WriteTagValueItem.
type WriteTagValueResult struct {
	CorrelationID string      `json:"correlation_id,omitempty"`
	TagID         string      `json:"tag_id"`
	Status        WriteStatus `json:"status"`
	Notes         string      `json:"notes,omitempty"`
}
