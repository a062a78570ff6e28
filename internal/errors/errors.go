// LOCATION: internal/errors/errors.go
//
// This file provides:
// - Process exit codes for the capture CLI
// - Sentinel errors for all recorder, storage and format conditions
// - Error category checking functions
// - ErrorToCode mapping
// - Error wrapping utilities

package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Exit codes - returned by cmd/capture
// ============================================================================

const (
	CodeOK          = 0
	CodeUnknown     = 1
	CodeUsage       = 2
	CodeConfig      = 3
	CodeStorage     = 4
	CodeHeader      = 5
	CodeDriver      = 6
	CodeSignature   = 7
	CodeCancelled   = 8
	CodeUpload      = 9
	CodeVerify      = 10
	CodeInvalidData = 11
)

// CodeName returns a human-readable name for an exit code.
func CodeName(code int) string {
	switch code {
	case CodeOK:
		return "OK"
	case CodeUnknown:
		return "Unknown"
	case CodeUsage:
		return "Usage"
	case CodeConfig:
		return "Config"
	case CodeStorage:
		return "Storage"
	case CodeHeader:
		return "Header"
	case CodeDriver:
		return "Driver"
	case CodeSignature:
		return "Signature"
	case CodeCancelled:
		return "Cancelled"
	case CodeUpload:
		return "Upload"
	case CodeVerify:
		return "Verify"
	case CodeInvalidData:
		return "InvalidData"
	default:
		return fmt.Sprintf("Code(%d)", code)
	}
}

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Session parameter errors
	ErrInvalidInterval   = errors.New("invalid sample interval")
	ErrInvalidLength     = errors.New("invalid sample length")
	ErrInvalidSampleSize = errors.New("invalid sample size")

	// Storage errors
	ErrStorageEraseFailed = errors.New("storage erase failed")
	ErrStorageWriteFailed = errors.New("storage write failed")
	ErrOutOfRange         = errors.New("address out of range")
	ErrNotErased          = errors.New("write to non-erased storage")

	// Header errors
	ErrHeaderEncodeFailed = errors.New("header encode failed")
	ErrHeaderWriteFailed  = errors.New("header write failed")
	ErrHeaderNotFound     = errors.New("header not found")
	ErrHeaderOverflow     = errors.New("header exceeds scratch buffer")

	// Session errors
	ErrDriverStartFailed = errors.New("sensor driver start failed")
	ErrSignature         = errors.New("signature error")
	ErrSessionCancelled  = errors.New("sampling session cancelled")
	ErrUploadFailed      = errors.New("upload failed")

	// Format errors
	ErrVerifyFailed         = errors.New("signature verification failed")
	ErrMalformedRecording   = errors.New("malformed recording")
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")

	// Validation errors
	ErrInvalidName   = errors.New("invalid name")
	ErrInvalidOID    = errors.New("invalid OID")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// IsStorage returns true if err came from the block device.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorageEraseFailed) ||
		errors.Is(err, ErrStorageWriteFailed) ||
		errors.Is(err, ErrOutOfRange) ||
		errors.Is(err, ErrNotErased)
}

// IsHeader returns true if err came from building or committing the header.
func IsHeader(err error) bool {
	return errors.Is(err, ErrHeaderEncodeFailed) ||
		errors.Is(err, ErrHeaderWriteFailed) ||
		errors.Is(err, ErrHeaderNotFound) ||
		errors.Is(err, ErrHeaderOverflow)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrInvalidLength) ||
		errors.Is(err, ErrInvalidSampleSize) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidOID) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField)
}

// ============================================================================
// Error to exit code mapping
// ============================================================================

// ErrorToCode maps an error to the process exit code.
// Header errors are checked before storage errors: a header commit
// failure wraps the underlying device error.
func ErrorToCode(err error) int {
	if err == nil {
		return CodeOK
	}

	switch {
	case IsValidation(err):
		return CodeConfig
	case IsHeader(err):
		return CodeHeader
	case IsStorage(err):
		return CodeStorage
	case Is(err, ErrDriverStartFailed):
		return CodeDriver
	case Is(err, ErrSignature), Is(err, ErrUnsupportedAlgorithm):
		return CodeSignature
	case Is(err, ErrSessionCancelled):
		return CodeCancelled
	case Is(err, ErrUploadFailed):
		return CodeUpload
	case Is(err, ErrVerifyFailed):
		return CodeVerify
	case Is(err, ErrMalformedRecording):
		return CodeInvalidData
	default:
		return CodeUnknown
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

// Mark attaches a sentinel to err so both match errors.Is.
// An err that already matches the sentinel is returned unchanged.
func Mark(sentinel, err error) error {
	if err == nil {
		return sentinel
	}
	if Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

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
