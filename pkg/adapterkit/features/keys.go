package features

import (
	"strings"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
)

// FeatureKey identifies a feature contract. Keys are URIs ending in "/".
type FeatureKey string

// URI prefixes.
const (
	StandardPrefix  = "asc:features/"
	ExtensionPrefix = "asc:extensions/"
)

// Standard feature keys.
const (
	KeyHealthCheck                   FeatureKey = "asc:features/diagnostics/health-check/"
	KeyTagSearch                     FeatureKey = "asc:features/real-time-data/tag-search/"
	KeyReadSnapshotTagValues         FeatureKey = "asc:features/real-time-data/read-snapshot/"
	KeySnapshotTagValuePush          FeatureKey = "asc:features/real-time-data/snapshot-push/"
	KeyWriteSnapshotTagValues        FeatureKey = "asc:features/real-time-data/write-snapshot/"
	KeyReadRawTagValues              FeatureKey = "asc:features/historical-data/read-raw/"
	KeyReadProcessedTagValues        FeatureKey = "asc:features/historical-data/read-processed/"
	KeyReadTagValuesAtTimes          FeatureKey = "asc:features/historical-data/read-at-times/"
	KeyReadPlotTagValues             FeatureKey = "asc:features/historical-data/read-plot/"
	KeyEventMessagePush              FeatureKey = "asc:features/events/push/"
	KeyReadEventMessagesForTimeRange FeatureKey = "asc:features/events/read-time-range/"
	KeyReadEventMessagesUsingCursor  FeatureKey = "asc:features/events/read-cursor/"
	KeyWriteEventMessages            FeatureKey = "asc:features/events/write/"
)

// String returns the key URI.
func (k FeatureKey) String() string {
	return string(k)
}

// IsStandard reports whether k is in the standard feature namespace.
func (k FeatureKey) IsStandard() bool {
	return strings.HasPrefix(string(k), StandardPrefix)
}

// IsExtension reports whether k is in the extension feature namespace.
func (k FeatureKey) IsExtension() bool {
	return strings.HasPrefix(string(k), ExtensionPrefix)
}

// Validate checks that k is a well-formed standard or extension URI.
func (k FeatureKey) Validate() error {
	s := string(k)
	switch {
	case s == "":
		return akerrors.Configuration("features.key", akerrors.ErrInvalidFeatureKey, "empty key")
	case !k.IsStandard() && !k.IsExtension():
		return akerrors.Configuration("features.key", akerrors.ErrInvalidFeatureKey,
			"%q must start with %q or %q", s, StandardPrefix, ExtensionPrefix)
	case !strings.HasSuffix(s, "/"):
		return akerrors.Configuration("features.key", akerrors.ErrInvalidFeatureKey, "%q must end with /", s)
	case strings.Contains(s, "//") || strings.ContainsAny(s, " \t\n?#"):
		return akerrors.Configuration("features.key", akerrors.ErrInvalidFeatureKey, "%q contains an empty or invalid segment", s)
	}
	if k.IsExtension() && strings.Count(strings.TrimPrefix(s, ExtensionPrefix), "/") < 2 {
		return akerrors.Configuration("features.key", akerrors.ErrInvalidFeatureKey,
			"extension key %q must name a vendor and a feature", s)
	}
	return nil
}

// ExtensionKey builds the key of a vendor extension, e.g.
// ExtensionKey("acme", "ping") is "asc:extensions/acme/ping/".
func ExtensionKey(vendor, name string) FeatureKey {
	return FeatureKey(ExtensionPrefix + strings.Trim(vendor, "/") + "/" + strings.Trim(name, "/") + "/")
}

// StandardKeys returns every standard feature key in a stable order.
func StandardKeys() []FeatureKey {
	keys := make([]FeatureKey, len(standardContracts))
	for i, c := range standardContracts {
		keys[i] = c.key
	}
	return keys
}
