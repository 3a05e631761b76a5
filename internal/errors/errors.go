// Package errors defines coded error types shared by the store and the CLI.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode defines specific error types.
type ErrorCode string

const (
	// ErrValidationFailed is returned when input data fails validation
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrMissingField is returned when a required field is missing
	ErrMissingField ErrorCode = "MISSING_FIELD"
	// ErrInvalidFormat is returned when a field has an invalid format
	ErrInvalidFormat ErrorCode = "INVALID_FORMAT"

	// ErrNotFound is returned when a recipe is not found
	ErrNotFound ErrorCode = "NOT_FOUND"

	// ErrCorruptState is returned when the persisted collection cannot be decoded
	ErrCorruptState ErrorCode = "CORRUPT_STATE"
	// ErrStorageError is returned when a blob store operation fails
	ErrStorageError ErrorCode = "STORAGE_ERROR"

	// ErrInternal is returned when an unexpected error occurs
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// Coded is an error that carries an ErrorCode.
type Coded interface {
	Error() string
	Code() ErrorCode
}

// Error is a concrete error type with a code and optional details.
type Error struct {
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		code:    code,
		message: message,
		details: make(map[string]any),
	}
}

// WithDetail adds a single detail to the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *Error) Wrap(err error) *Error {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *Error) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *Error) Unwrap() error {
	return e.wrappedErr
}

// CodeOf returns the code of the first Coded error in err's chain.
//
// Returns ErrInternal for a non-nil error without a code and "" for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var c Coded
	if stderrors.As(err, &c) {
		return c.Code()
	}
	return ErrInternal
}

// Predefined error constructors for common cases

// NotFound creates a not found error.
func NotFound(resource string) *Error {
	return New(ErrNotFound, fmt.Sprintf("%s not found", resource))
}

// Invalid creates a validation error.
func Invalid(message string) *Error {
	return New(ErrValidationFailed, message)
}

// MissingField creates an error for a missing field.
func MissingField(fieldName string) *Error {
	return New(ErrMissingField, fmt.Sprintf("missing required field: %s", fieldName)).WithDetail("field", fieldName)
}

// InvalidFormat creates an error for a field with an invalid value.
func InvalidFormat(fieldName, reason string) *Error {
	return New(ErrInvalidFormat, fmt.Sprintf("invalid %s: %s", fieldName, reason)).WithDetail("field", fieldName)
}

// Internal wraps an unexpected error.
func Internal(message string, err error) *Error {
	return New(ErrInternal, message).Wrap(err)
}
