// Package util provides logging helpers and the error taxonomy shared by the
// skillet engine, the capture layer and the device channel.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Each typed error below unwraps to one of these so callers
// can classify a failure with errors.Is.
var (
	ErrConfiguration    = errors.New("invalid skillet configuration")
	ErrCapture          = errors.New("output capture failed")
	ErrDeviceOperation  = errors.New("device operation failed")
	ErrCommit           = errors.New("commit failed")
	ErrUnsplittable     = errors.New("oversized snippet cannot be split")
	ErrEntryNotFound    = errors.New("entry not found")
	ErrNotFound         = errors.New("resource not found")
	ErrValidationFailed = errors.New("validation failed")
)

// ConfigurationError reports a bad or missing snippet/skillet field. It is
// raised before any device interaction.
type ConfigurationError struct {
	Skillet string
	Snippet string
	Field   string
	Reason  string
	Err     error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Skillet != "" {
		fmt.Fprintf(&b, " in skillet %s", e.Skillet)
	}
	if e.Snippet != "" {
		fmt.Fprintf(&b, " snippet %s", e.Snippet)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %s", e.Field)
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfiguration, e.Err}
	}
	return []error{ErrConfiguration}
}

// NewConfigurationError creates a configuration error for a snippet field
func NewConfigurationError(snippet, field, reason string) *ConfigurationError {
	return &ConfigurationError{Snippet: snippet, Field: field, Reason: reason}
}

// CaptureError reports a result that could not be parsed for output capture.
type CaptureError struct {
	Snippet    string
	OutputType string
	Err        error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("could not capture %s outputs for snippet %s: %v", e.OutputType, e.Snippet, e.Err)
}

func (e *CaptureError) Unwrap() []error {
	return []error{ErrCapture, e.Err}
}

// DeviceOperationError reports a transport failure or a device-side rejection
// of a dispatched command.
type DeviceOperationError struct {
	Device  string
	Snippet string
	Command string
	XPath   string
	Code    string
	Err     error
}

func (e *DeviceOperationError) Error() string {
	var b strings.Builder
	b.WriteString("device")
	if e.Device != "" {
		b.WriteString(" " + e.Device)
	}
	if e.Command != "" {
		b.WriteString(": " + e.Command)
	}
	if e.Snippet != "" {
		b.WriteString(" snippet " + e.Snippet)
	}
	if e.XPath != "" {
		b.WriteString(" at " + e.XPath)
	}
	if e.Code != "" {
		b.WriteString(" (code " + e.Code + ")")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *DeviceOperationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDeviceOperation, e.Err}
	}
	return []error{ErrDeviceOperation}
}

// CommitError reports a commit the device did not accept. Snippets applied
// before the commit remain staged on the device.
type CommitError struct {
	Device string
	Detail string
	Err    error
}

func (e *CommitError) Error() string {
	msg := "commit failed"
	if e.Device != "" {
		msg += " on " + e.Device
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommitError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCommit, e.Err}
	}
	return []error{ErrCommit}
}

// UnsplittableSnippetError is returned when an oversized payload has no
// top-level entry elements to split on.
type UnsplittableSnippetError struct {
	Snippet string
	Size    int
}

func (e *UnsplittableSnippetError) Error() string {
	return fmt.Sprintf("snippet %s is %d characters and has no entry elements to split on", e.Snippet, e.Size)
}

func (e *UnsplittableSnippetError) Unwrap() error {
	return ErrUnsplittable
}

// EntryNotFoundError is returned when a payload has no entry with the
// requested name attribute.
type EntryNotFoundError struct {
	Snippet string
	Entry   string
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("entry with name %s not found in %s", e.Entry, e.Snippet)
}

func (e *EntryNotFoundError) Unwrap() error {
	return ErrEntryNotFound
}

// ErrorKind returns a short classification of err for reports and history
// records. Unknown errors map to "error".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "ConfigurationError"
	case errors.Is(err, ErrCapture):
		return "CaptureError"
	case errors.Is(err, ErrCommit):
		return "CommitError"
	case errors.Is(err, ErrUnsplittable):
		return "UnsplittableSnippetError"
	case errors.Is(err, ErrEntryNotFound):
		return "EntryNotFoundError"
	case errors.Is(err, ErrDeviceOperation):
		return "DeviceOperationError"
	default:
		return "error"
	}
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}
