package storage

import (
	"fmt"

	errors "github.com/Laisky/errors/v2"
)

// ErrorCode identifies a machine-stable storage error code.
type ErrorCode string

const (
	ErrCodeUnknownDisk             ErrorCode = "UNKNOWN_DISK"
	ErrCodeNameGenerationExhausted ErrorCode = "NAME_GENERATION_EXHAUSTED"
	ErrCodeWriteFailure            ErrorCode = "WRITE_FAILURE"
	ErrCodeDiskUnavailable         ErrorCode = "DISK_UNAVAILABLE"
	ErrCodeRegistrationFailure     ErrorCode = "REGISTRATION_FAILURE"
	ErrCodeRegistryUnavailable     ErrorCode = "REGISTRY_UNAVAILABLE"
	ErrCodeNotFound                ErrorCode = "NOT_FOUND"
	ErrCodeInvalidArgument         ErrorCode = "INVALID_ARGUMENT"
)

// Error captures a typed storage error with retryability metadata.
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	// Err is the underlying cause, if any.
	Err error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e == nil {
		return "storage error: <nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = fmt.Sprintf("storage error: %s", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError constructs a typed storage error.
func NewError(code ErrorCode, message string, retryable bool) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable}
}

// wrapError constructs a typed storage error around cause.
func wrapError(code ErrorCode, cause error, retryable bool, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable, Err: cause}
}

// AsError extracts a typed storage error from the error chain.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}

// IsCode reports whether the error chain contains the given code.
func IsCode(err error, code ErrorCode) bool {
	if typed, ok := AsError(err); ok {
		return typed.Code == code
	}
	return false
}
