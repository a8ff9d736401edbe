// Package types defines the values, tags, events and requests that flow between
// adapters, features and transport shims.
//
// Values are immutable once published: every helper that "changes" a TagValue
// (for example relabelling its timestamp) returns a copy.
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// VariantType identifies the type held by a Variant.
type VariantType int

// Variant types.
const (
	VariantTypeUnknown VariantType = iota
	VariantTypeNull
	VariantTypeBoolean
	VariantTypeInt32
	VariantTypeInt64
	VariantTypeUInt32
	VariantTypeUInt64
	VariantTypeFloat32
	VariantTypeFloat64
	VariantTypeString
	VariantTypeDateTime
	VariantTypeDuration
)

var variantTypeNames = map[VariantType]string{
	VariantTypeUnknown:  "unknown",
	VariantTypeNull:     "null",
	VariantTypeBoolean:  "boolean",
	VariantTypeInt32:    "int32",
	VariantTypeInt64:    "int64",
	VariantTypeUInt32:   "uint32",
	VariantTypeUInt64:   "uint64",
	VariantTypeFloat32:  "float32",
	VariantTypeFloat64:  "float64",
	VariantTypeString:   "string",
	VariantTypeDateTime: "datetime",
	VariantTypeDuration: "duration",
}

// String returns the type name.
func (t VariantType) String() string {
	if name, ok := variantTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsNumeric reports whether values of this type can be linearly interpolated.
func (t VariantType) IsNumeric() bool {
	switch t {
	case VariantTypeInt32, VariantTypeInt64, VariantTypeUInt32, VariantTypeUInt64,
		VariantTypeFloat32, VariantTypeFloat64:
		return true
	default:
		return false
	}
}

// Variant is a value of one of a closed set of types.
type Variant struct {
	Type  VariantType `json:"type"`
	Value any         `json:"value"`
}

// Null is the null variant.
var Null = Variant{Type: VariantTypeNull}

// NewVariant infers the variant type from v.
// Unsupported types are stored as strings using fmt.
func NewVariant(v any) Variant {
	switch val := v.(type) {
	case nil:
		return Null
	case Variant:
		return val
	case bool:
		return Variant{Type: VariantTypeBoolean, Value: val}
	case int:
		return Variant{Type: VariantTypeInt64, Value: int64(val)}
	case int32:
		return Variant{Type: VariantTypeInt32, Value: val}
	case int64:
		return Variant{Type: VariantTypeInt64, Value: val}
	case uint32:
		return Variant{Type: VariantTypeUInt32, Value: val}
	case uint64:
		return Variant{Type: VariantTypeUInt64, Value: val}
	case float32:
		return Variant{Type: VariantTypeFloat32, Value: val}
	case float64:
		return Variant{Type: VariantTypeFloat64, Value: val}
	case string:
		return Variant{Type: VariantTypeString, Value: val}
	case time.Time:
		return Variant{Type: VariantTypeDateTime, Value: val.UTC()}
	case time.Duration:
		return Variant{Type: VariantTypeDuration, Value: val}
	default:
		return Variant{Type: VariantTypeString, Value: fmt.Sprint(val)}
	}
}

// Float64Variant returns a float64 variant.
func Float64Variant(v float64) Variant {
	return Variant{Type: VariantTypeFloat64, Value: v}
}

// StringVariant returns a string variant.
func StringVariant(v string) Variant {
	return Variant{Type: VariantTypeString, Value: v}
}

// IsNull reports whether the variant holds no value.
func (v Variant) IsNull() bool {
	return v.Type == VariantTypeNull || v.Value == nil
}

// IsNumeric reports whether the variant holds a numeric value.
func (v Variant) IsNumeric() bool {
	return v.Type.IsNumeric() && v.Value != nil
}

// Float64 converts a numeric or boolean variant to float64.
func (v Variant) Float64() (float64, bool) {
	switch val := v.Value.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case int:
		return float64(val), true
	case uint64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// IsFinite reports whether the variant is numeric and neither NaN nor infinite.
func (v Variant) IsFinite() bool {
	f, ok := v.Float64()
	return ok && !math.IsNaN(f) && !math.IsInf(f, 0)
}

// String formats the variant value.
func (v Variant) String() string {
	if v.IsNull() {
		return ""
	}
	switch val := v.Value.(type) {
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(val)
	}
}

// UnmarshalJSON restores the Go type of Value from the declared variant type,
// since encoding/json decodes every number as float64.
func (v *Variant) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type  VariantType     `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	v.Type = raw.Type
	v.Value = nil
	if len(raw.Value) == 0 || string(raw.Value) == "null" {
		if v.Type == VariantTypeUnknown {
			v.Type = VariantTypeNull
		}
		return nil
	}

	var err error
	switch raw.Type {
	case VariantTypeBoolean:
		v.Value, err = decodeAs[bool](raw.Value)
	case VariantTypeInt32:
		v.Value, err = decodeAs[int32](raw.Value)
	case VariantTypeInt64:
		v.Value, err = decodeAs[int64](raw.Value)
	case VariantTypeUInt32:
		v.Value, err = decodeAs[uint32](raw.Value)
	case VariantTypeUInt64:
		v.Value, err = decodeAs[uint64](raw.Value)
	case VariantTypeFloat32:
		v.Value, err = decodeAs[float32](raw.Value)
	case VariantTypeFloat64:
		v.Value, err = decodeAs[float64](raw.Value)
	case VariantTypeString:
		v.Value, err = decodeAs[string](raw.Value)
	case VariantTypeDateTime:
		v.Value, err = decodeAs[time.Time](raw.Value)
	case VariantTypeDuration:
		v.Value, err = decodeAs[time.Duration](raw.Value)
	default:
		v.Value, err = decodeAs[any](raw.Value)
	}
	if err != nil {
		return fmt.Errorf("decode %s variant: %w", raw.Type, err)
	}
	return nil
}

func decodeAs[T any](data []byte) (T, error) {
	var out T
	err := json.Unmarshal(data, &out)
	return out, err
}
