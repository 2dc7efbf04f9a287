package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestCategories(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		notFound    bool
		config      bool
		provider    bool
		persistence bool
		corruption  bool
	}{
		{"metric not found", NewMetricNotFound("heapUsed"), true, false, false, false, false},
		{"duplicate metric", fmt.Errorf("x: %w", ErrMetricAlreadyExists), false, true, false, false, false},
		{"no tiers", ErrNoTiers, false, true, false, false, false},
		{"sealed", ErrRegistrySealed, false, true, false, false, false},
		{"duplicate operation", ErrDuplicateOperation, false, true, false, false, false},
		{"provider timeout", NewProviderError("gcTime", ErrProviderTimeout), false, false, true, false, false},
		{"provider plain", NewProviderError("gcTime", New("boom")), false, false, true, false, false},
		{"queue full", NewPersistenceError("submit", ErrQueueFull), false, false, false, true, false},
		{"corrupt", NewCorruption("a.log", 40, "crc mismatch"), false, false, false, false, true},
		{"bad segment", ErrBadSegment, false, false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound = %v, want %v", got, tt.notFound)
			}
			if got := IsConfiguration(tt.err); got != tt.config {
				t.Errorf("IsConfiguration = %v, want %v", got, tt.config)
			}
			if got := IsProvider(tt.err); got != tt.provider {
				t.Errorf("IsProvider = %v, want %v", got, tt.provider)
			}
			if got := IsPersistence(tt.err); got != tt.persistence {
				t.Errorf("IsPersistence = %v, want %v", got, tt.persistence)
			}
			if got := IsCorruption(tt.err); got != tt.corruption {
				t.Errorf("IsCorruption = %v, want %v", got, tt.corruption)
			}
		})
	}
}

func TestNewProviderErrorKeepsCause(t *testing.T) {
	err := NewProviderError("threads", ErrFactNotAvailable)
	if !Is(err, ErrProvider) || !Is(err, ErrFactNotAvailable) {
		t.Fatalf("lost wrapped errors: %v", err)
	}

	// Wrapping twice does not repeat the provider tag.
	again := NewProviderError("threads", err)
	if strings.Count(again.Error(), ErrProvider.Error()) != 1 {
		t.Errorf("provider tag repeated: %v", again)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{NewMetricNotFound("x"), ExitNotFound},
		{NewInvalidValue("interval", 0, "must be positive"), ExitUsage},
		{NewPersistenceError("sync", New("disk full")), ExitStorage},
		{ErrStoreLocked, ExitStorage},
		{New("unexpected"), ExitInternal},
	}

	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil || Wrapf(nil, "ctx %d", 1) != nil {
		t.Fatal("wrapping nil must return nil")
	}

	err := Wrapf(ErrStoreClosed, "append %s", "heapUsed")
	if !Is(err, ErrStoreClosed) {
		t.Errorf("Wrapf lost cause: %v", err)
	}
	if err.Error() != "append heapUsed: store is closed" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestValidationErrors(t *testing.T) {
	v := NewValidationErrors()
	if v.Err() != nil {
		t.Fatal("empty collector must return nil")
	}

	v.Add(nil)
	v.AddField("interval", "must be positive")
	if v.Error() != "invalid interval: must be positive: invalid configuration" {
		t.Errorf("single error message = %q", v.Error())
	}

	v.AddMissing("storage.dir")
	err := v.Err()
	if err == nil || !v.HasErrors() {
		t.Fatal("expected errors")
	}
	if !Is(err, ErrMissingField) || !Is(err, ErrInvalidConfig) {
		t.Errorf("Unwrap does not expose collected errors: %v", err)
	}
	if !strings.HasPrefix(err.Error(), "validation failed with 2 errors:") {
		t.Errorf("message = %q", err.Error())
	}
}
