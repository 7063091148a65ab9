package ir

const (
	// SchemaVersion is the memory entry schema version written to history.
	SchemaVersion = "1"

	// EngineVersion is the recon engine version.
	EngineVersion = "0.3.0"
)
