package ir

// Version constants for the workbook description schema and the engine.
const (
	// SchemaVersion is the workbook description schema version.
	SchemaVersion = "1"

	// EngineVersion is the gridcalc engine version.
	EngineVersion = "0.1.0"
)
