// Package errors tests for error code definitions and error handling.
package errors

import (
	"errors"
	"strings"
	"testing"
)

// TestErrorCodeValues verifies all error codes have non-empty values.
func TestErrorCodeValues(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
	}{
		// General errors
		{"internal", ErrInternal},
		{"invalid", ErrInvalid},
		{"not found", ErrNotFound},
		{"validation", ErrValidation},

		// Database errors
		{"database", ErrDatabase},
		{"migration", ErrMigration},
		{"not initialized", ErrNotInitialized},

		// Record errors
		{"record not found", ErrRecordNotFound},
		{"unknown store", ErrUnknownStore},

		// Sync errors
		{"sync failed", ErrSyncFailed},
		{"sync in progress", ErrSyncInProgress},
		{"sync offline", ErrSyncOffline},
		{"sync gave up", ErrSyncGaveUp},
		{"sync auth failed", ErrSyncAuthFailed},

		// Remote backend errors
		{"remote rejected", ErrRemoteRejected},
		{"remote unavailable", ErrRemoteUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code == "" {
				t.Errorf("ErrorCode %q should not be empty", tt.name)
			}
		})
	}
}

// TestAppError_Error verifies error message formatting.
func TestAppError_Error(t *testing.T) {
	plain := &AppError{Code: ErrInternal, Message: "something failed"}
	if plain.Error() != "[INTERNAL_ERROR] something failed" {
		t.Errorf("Unexpected message: %s", plain.Error())
	}

	wrapped := Wrap(ErrDatabase, "query failed", errors.New("disk full"))
	if !strings.Contains(wrapped.Error(), "disk full") {
		t.Errorf("Expected wrapped cause in message, got: %s", wrapped.Error())
	}
	if !strings.Contains(wrapped.Error(), "[DATABASE_ERROR]") {
		t.Errorf("Expected code prefix in message, got: %s", wrapped.Error())
	}
}

// TestAppError_Unwrap verifies errors.Is works through AppError.
func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := Wrap(ErrSyncFailed, "push failed", cause)

	if !errors.Is(wrapped, cause) {
		t.Error("Expected errors.Is to find the wrapped cause")
	}
}

// TestNewf verifies formatted construction.
func TestNewf(t *testing.T) {
	err := Newf(ErrRecordNotFound, "record not found in %s: %s", "task_entries", "abc")
	if !strings.Contains(err.Error(), "task_entries") {
		t.Errorf("Expected store name in message, got: %s", err.Error())
	}
}

// TestIs verifies code matching.
func TestIs(t *testing.T) {
	err := New(ErrNotInitialized, "database not opened")

	if !Is(err, ErrNotInitialized) {
		t.Error("Expected Is to match the code")
	}
	if Is(err, ErrDatabase) {
		t.Error("Expected Is to reject a different code")
	}
	if Is(errors.New("plain"), ErrDatabase) {
		t.Error("Expected Is to reject a non-AppError")
	}
}
