// Package constants provides named constants used throughout the ising codebase.
// This centralizes physical constants, defaults and file naming in one place.
package constants

// Physical constants
const (
	// CriticalTemperature is the exact 2D Ising critical temperature
	// 2/ln(1+sqrt(2)) in units where J = k_B = 1.
	CriticalTemperature = 2.26918531421

	// CriticalTolerance is the distance below which a temperature is treated
	// as the critical one.
	CriticalTolerance = 1e-6
)

// Default run parameters
const (
	DefaultLatticeSize           = 3
	DefaultRealizations          = 2
	DefaultTemperatureDown       = 3.0
	DefaultTemperatureUp         = 3.0
	DefaultTemperatureStep       = 0.05
	DefaultEquilibrationLong     = 1000
	DefaultEquilibrationShort    = 100
	DefaultSweepsPerSample       = 10
	DefaultSamplesPerRealization = 2

	// DefaultTraceScale is the growth factor of the log-spaced energy trace.
	DefaultTraceScale = 1.1
)

// Output layout
const (
	// StatDir holds the (E, M) statistics files.
	StatDir = "stat-files"

	// ConfigDir holds the spin configuration dumps.
	ConfigDir = "config-files"

	// EnergyDir holds the energy traces.
	EnergyDir = "energy-files"

	// CheckpointDir holds resumable snapshots, relative to the output root.
	CheckpointDir = "checkpoints"

	// CatalogFile is the SQLite run catalog, relative to the output root.
	CatalogFile = "ising.db"

	// EventsFile receives driver transitions at debug level and above.
	EventsFile = "events.jsonl"
)

// File name stems
const (
	StatName   = "stat"
	SpinName   = "spin"
	EnergyName = "EM"

	BinaryExt = ".bin"
	TextExt   = ".dat"
)

// Checkpoint retention
const (
	// DefaultCheckpointKeep is how many checkpoints survive rotation.
	DefaultCheckpointKeep = 5
)
