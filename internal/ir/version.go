package ir

// Version constants for the record schema and the binary.
const (
	// SchemaVersion is the model schema format version.
	SchemaVersion = "1"

	// Version is the restq release version.
	Version = "0.1.0"
)
