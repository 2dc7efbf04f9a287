// Package constants provides centralized domain-specific constants
// for vmstats.
//
// Mode strings accepted in configuration files and the names of the
// built-in statistics live here so validation, defaults and the code that
// switches on them agree.
package constants

import "slices"

// =============================================================================
// WAL Sync Modes
// =============================================================================

const (
	// SyncModeAsync writes each record with one write call and fsyncs on flush
	SyncModeAsync = "async"

	// SyncModeFsync fsyncs after every record
	SyncModeFsync = "fsync"
)

// ValidSyncModes contains all valid WAL sync modes
var ValidSyncModes = []string{SyncModeAsync, SyncModeFsync}

// IsValidSyncMode checks if a sync mode is valid. Empty selects async.
func IsValidSyncMode(mode string) bool {
	return mode == "" || slices.Contains(ValidSyncModes, mode)
}

// =============================================================================
// Persistence Modes
// =============================================================================

const (
	// PersistenceModeSync writes records on the collector goroutine
	PersistenceModeSync = "sync"

	// PersistenceModeAsync queues records for a background writer
	PersistenceModeAsync = "async"
)

// ValidPersistenceModes contains all valid persistence modes
var ValidPersistenceModes = []string{PersistenceModeSync, PersistenceModeAsync}

// IsValidPersistenceMode checks if a persistence mode is valid
func IsValidPersistenceMode(mode string) bool {
	return slices.Contains(ValidPersistenceModes, mode)
}

// =============================================================================
// Durability - what happens to records a write failed for
// =============================================================================

const (
	// DurabilityBuffer keeps failed records queued for retry
	DurabilityBuffer = "buffer"

	// DurabilityDrop discards failed records after logging
	DurabilityDrop = "drop"
)

// ValidDurabilities contains all valid durability values
var ValidDurabilities = []string{DurabilityBuffer, DurabilityDrop}

// IsValidDurability checks if a durability value is valid
func IsValidDurability(d string) bool {
	return slices.Contains(ValidDurabilities, d)
}

// =============================================================================
// Log Formats
// =============================================================================

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// IsValidLogFormat checks if a log format is valid. Empty selects text.
func IsValidLogFormat(f string) bool {
	return f == "" || f == LogFormatText || f == LogFormatJSON
}

// =============================================================================
// Built-in Statistics
// =============================================================================

const (
	StatHeapUsed        = "heapUsed"
	StatSysMemory       = "sysMemory"
	StatPhysicalUsed    = "physicalUsed"
	StatGoroutines      = "goroutines"
	StatThreads         = "threads"
	StatGCCount         = "gcCount"
	StatGCTime          = "gcTime"
	StatProcessLoad     = "processLoad"
	StatSystemLoad      = "systemLoad"
	StatFileDescriptors = "fileDescriptors"
)

// =============================================================================
// Units
// =============================================================================

const (
	// UnitMegabytes is 1024×1024 bytes
	UnitMegabytes = "mb"

	// UnitMilliseconds is used for durations
	UnitMilliseconds = "ms"

	// UnitPercent is used for CPU loads
	UnitPercent = "%"

	// UnitCount marks dimensionless counts
	UnitCount = ""
)
