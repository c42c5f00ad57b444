// Package apperr carries coded application errors across package
// boundaries so that callers can map them to responses.
package apperr

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
)

// AppError is a coded error with an optional cause.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError without a cause.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches a message to err, keeping the code of a wrapped AppError.
// Other errors become INTERNAL_ERROR.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Code: CodeOf(err), Message: message, Cause: err}
}

func ConfigInvalid(format string, args ...any) *AppError {
	return New(CodeConfigInvalid, fmt.Sprintf(format, args...))
}

// DatabaseError wraps a store failure.
func DatabaseError(op string, cause error) *AppError {
	return &AppError{Code: CodeDatabaseError, Message: op, Cause: cause}
}

// ExternalService wraps a failure of an upstream service.
func ExternalService(service string, cause error) *AppError {
	return &AppError{Code: CodeExternalService, Message: service + " request failed", Cause: cause}
}

func Validation(format string, args ...any) *AppError {
	return New(CodeValidationError, fmt.Sprintf(format, args...))
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, resource+" not found")
}

// CodeOf returns the code of the outermost AppError in err's chain, or
// INTERNAL_ERROR when there is none.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternalError
}

// Is reports whether err carries code.
func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}
