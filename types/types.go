package types

// ------------------------
// Runtime state (retained)
// ------------------------

type RuntimeState struct {
	Level  string `json:"level"`  // "starting", "ready", "stopped", "recovering"
	Status string `json:"status"` // freeform short code
	TSms   int64  `json:"ts_ms"`
}

// ------------------------
// Timing
// ------------------------

// DriftReport is published when a scheduling pass observed more lag than
// the configured warning threshold.
type DriftReport struct {
	DriftNs    int64 `json:"drift_ns"`
	ExpectedNs int64 `json:"expected_ns"`
	TSms       int64 `json:"ts_ms"`
}

// ------------------------
// Console
// ------------------------

// ConsoleFrame is one chunk of bytes moved over the console transport.
type ConsoleFrame struct {
	Dir  string `json:"dir"` // "rx" | "tx"
	Data []byte `json:"data"`
	TSms int64  `json:"ts_ms"`
}

// ------------------------
// Stats (periodic)
// ------------------------

type StatsSnapshot struct {
	Passes       uint64  `json:"passes"`
	RxBytes      uint64  `json:"rx_bytes"`
	TxBytes      uint64  `json:"tx_bytes"`
	Pets         uint64  `json:"pets"`
	LastDriftSec float64 `json:"last_drift_sec"`
	TSms         int64   `json:"ts_ms"`
}

// ------------------------
// Tool changes
// ------------------------

// ToolChange records a Tn tool selection. Tool numbers are the T numbers
// from the command stream; 0 is the primary extruder.
type ToolChange struct {
	From int   `json:"from"`
	To   int   `json:"to"`
	TSms int64 `json:"ts_ms"`
}
