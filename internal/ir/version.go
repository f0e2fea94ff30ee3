package ir

// Version constants for the journal schema and engine.
const (
	// JournalVersion is the trace record schema version.
	JournalVersion = "1"

	// EngineVersion is the minirx engine version.
	EngineVersion = "0.1.0"
)
