// Package errors provides error code definitions for the ClearPath offline backend.
package errors

import "fmt"

// ErrorCode represents a unique error code surfaced to the hosting application.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Database errors
	ErrDatabase       ErrorCode = "DATABASE_ERROR"
	ErrMigration      ErrorCode = "MIGRATION_FAILED"
	ErrNotInitialized ErrorCode = "STORE_NOT_INITIALIZED"

	// Record errors
	ErrRecordNotFound ErrorCode = "RECORD_NOT_FOUND"
	ErrUnknownStore   ErrorCode = "UNKNOWN_STORE"

	// Sync errors
	ErrSyncFailed     ErrorCode = "SYNC_FAILED"
	ErrSyncInProgress ErrorCode = "SYNC_IN_PROGRESS"
	ErrSyncOffline    ErrorCode = "SYNC_OFFLINE"
	ErrSyncGaveUp     ErrorCode = "SYNC_GAVE_UP"
	ErrSyncAuthFailed ErrorCode = "SYNC_AUTH_FAILED"

	// Remote backend errors
	ErrRemoteRejected    ErrorCode = "REMOTE_REJECTED"
	ErrRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error is of a specific code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}
