// Package errors holds the error definitions shared by every vmstats package.
//
// This file provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Exit code mapping for the command line tools
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Not found errors
	ErrNotFound       = errors.New("not found")
	ErrMetricNotFound = errors.New("metric not found")
	ErrTierNotFound   = errors.New("tier not found")

	// Already exists errors
	ErrAlreadyExists       = errors.New("already exists")
	ErrMetricAlreadyExists = errors.New("metric already registered")
	ErrDuplicateOperation  = errors.New("duplicate operation signature")

	// Configuration errors. These fail fast at setup.
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidInterval = errors.New("invalid interval")
	ErrInvalidTier     = errors.New("invalid tier")
	ErrNoTiers         = errors.New("metric has no tiers")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidRange    = errors.New("invalid time range")

	// State errors
	ErrRegistrySealed   = errors.New("registry is sealed")
	ErrCollectorRunning = errors.New("collector is already running")
	ErrCollectorStopped = errors.New("collector is not running")
	ErrStoreClosed      = errors.New("store is closed")
	ErrStoreLocked      = errors.New("storage directory is locked by another process")

	// Provider errors. Recorded per metric, never abort a tick.
	ErrProvider         = errors.New("provider error")
	ErrProviderTimeout  = errors.New("provider timed out")
	ErrProviderBusy     = errors.New("provider still running")
	ErrProviderPanic    = errors.New("provider panicked")
	ErrNonFinite        = errors.New("non-finite value")
	ErrFactNotAvailable = errors.New("fact not available")

	// Persistence errors. Collection continues in memory.
	ErrPersistence   = errors.New("persistence error")
	ErrQueueFull     = errors.New("persistence queue full")
	ErrCorruptRecord = errors.New("corrupt record")
	ErrBadSegment    = errors.New("bad segment header")

	ErrInternal = errors.New("internal error")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// New is a convenience wrapper for errors.New
var New = errors.New

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrMetricNotFound) ||
		errors.Is(err, ErrTierNotFound)
}

// IsAlreadyExists returns true if err is an already-exists error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrMetricAlreadyExists) ||
		errors.Is(err, ErrDuplicateOperation)
}

// IsConfiguration returns true if err is a configuration error.
// Configuration errors are raised at setup and are never recorded at runtime.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrInvalidTier) ||
		errors.Is(err, ErrNoTiers) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrMetricAlreadyExists) ||
		errors.Is(err, ErrDuplicateOperation) ||
		errors.Is(err, ErrRegistrySealed)
}

// IsProvider returns true if err was produced while sampling a metric.
func IsProvider(err error) bool {
	return errors.Is(err, ErrProvider) ||
		errors.Is(err, ErrProviderTimeout) ||
		errors.Is(err, ErrProviderBusy) ||
		errors.Is(err, ErrProviderPanic) ||
		errors.Is(err, ErrNonFinite) ||
		errors.Is(err, ErrFactNotAvailable)
}

// IsPersistence returns true if err came from the storage layer.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence) ||
		errors.Is(err, ErrQueueFull) ||
		errors.Is(err, ErrStoreClosed)
}

// IsCorruption returns true if err describes damaged on-disk data.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrCorruptRecord) ||
		errors.Is(err, ErrBadSegment)
}

// IsRetriable returns true if the error is potentially retriable.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrProviderTimeout) ||
		errors.Is(err, ErrProviderBusy) ||
		errors.Is(err, ErrPersistence) ||
		errors.Is(err, ErrQueueFull)
}

// ============================================================================
// Exit codes
// ============================================================================

const (
	ExitOK       = 0
	ExitInternal = 1
	ExitUsage    = 2
	ExitNotFound = 3
	ExitStorage  = 4
)

// ExitCode maps an error to a process exit code for the command line tools.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case IsNotFound(err):
		return ExitNotFound
	case IsConfiguration(err):
		return ExitUsage
	case IsPersistence(err), IsCorruption(err), Is(err, ErrStoreLocked):
		return ExitStorage
	default:
		return ExitInternal
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrNotFound)
}

// NewMetricNotFound creates a metric-not-found error.
func NewMetricNotFound(name string) error {
	return fmt.Errorf("metric '%s': %w", name, ErrMetricNotFound)
}

// NewAlreadyExists creates an already-exists error with context.
func NewAlreadyExists(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrAlreadyExists)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}

// NewProviderError tags err as a provider failure for the named metric.
func NewProviderError(metric string, err error) error {
	if Is(err, ErrProvider) {
		return fmt.Errorf("metric '%s': %w", metric, err)
	}
	return fmt.Errorf("metric '%s': %w: %w", metric, ErrProvider, err)
}

// NewPersistenceError tags err as a storage failure.
func NewPersistenceError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// NewCorruption creates a corrupt-record error for a file offset.
func NewCorruption(path string, offset int64, reason string) error {
	return fmt.Errorf("%s at offset %d: %s: %w", path, offset, reason, ErrCorruptRecord)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
