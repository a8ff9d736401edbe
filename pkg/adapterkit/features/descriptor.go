package features

// FeatureDescriptor describes a standard or extension feature.
type FeatureDescriptor struct {
	URI         FeatureKey `json:"uri"`
	DisplayName string     `json:"display_name"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
}

// OperationKind is the call shape of an extension operation.
type OperationKind int

// Operation kinds.
const (
	OperationInvoke OperationKind = iota
	OperationStream
	OperationDuplexStream
)

// String returns the kind as used in operation IDs.
func (k OperationKind) String() string {
	switch k {
	case OperationStream:
		return "stream"
	case OperationDuplexStream:
		return "duplex-stream"
	default:
		return "invoke"
	}
}

// ExtensionOperationDescriptor describes one bound extension operation.
// Example payloads are advisory and may be empty.
type ExtensionOperationDescriptor struct {
	OperationID   string        `json:"operation_id"`
	Kind          OperationKind `json:"kind"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	ExampleInput  []byte        `json:"example_input,omitempty"`
	ExampleOutput []byte        `json:"example_output,omitempty"`
}
