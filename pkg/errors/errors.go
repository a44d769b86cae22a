// Package errors provides structured error types for stackforge.
//
// Every failure that leaves the recipe lifecycle carries one of four domain
// codes so callers can tell who has to act:
//   - CONFIGURATION_ERROR: the recipe or the caller's overrides are wrong
//   - ACQUISITION_ERROR: the upstream source could not be fetched or patched
//   - BUILD_TOOL_ERROR: the external build tool exited non-zero
//   - PACKAGING_ERROR: installed artifacts do not match the declared components
//
// The remaining codes cover input validation and internal faults outside the
// lifecycle proper.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeConfiguration, "unknown option %q", name)
//	if errors.Is(err, errors.ErrCodeConfiguration) {
//	    // fix the recipe
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeAcquisition, origErr, "clone %s", url)
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Lifecycle taxonomy
	ErrCodeConfiguration Code = "CONFIGURATION_ERROR"
	ErrCodeAcquisition   Code = "ACQUISITION_ERROR"
	ErrCodeBuildTool     Code = "BUILD_TOOL_ERROR"
	ErrCodePackaging     Code = "PACKAGING_ERROR"

	// Input validation errors
	ErrCodeInvalidInput   Code = "INVALID_INPUT"
	ErrCodeInvalidPackage Code = "INVALID_PACKAGE"
	ErrCodeInvalidPath    Code = "INVALID_PATH"
	ErrCodeInvalidRecipe  Code = "INVALID_RECIPE"

	// Resource not found errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"

	// Internal errors
	ErrCodeCanceled Code = "CANCELED"
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Configuration is shorthand for New(ErrCodeConfiguration, ...).
func Configuration(format string, args ...any) *Error {
	return New(ErrCodeConfiguration, format, args...)
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Context cancellation is reported as ErrCodeCanceled even when it is not
// wrapped in an *Error. Returns empty string otherwise.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeCanceled
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + UserMessage(e.Cause)
		}
		return e.Message
	}
	return err.Error()
}

// Join aggregates validation errors into one error under the given code.
// Returns nil when errs is empty.
func Join(code Code, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return Wrap(code, errs[0], "validation failed")
	}
	return Wrap(code, errors.Join(errs...), "%d validation errors", len(errs))
}
