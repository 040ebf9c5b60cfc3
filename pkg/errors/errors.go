package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Standard error types that can be used throughout the application
var (
	// Standard error sentinel values
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
	ErrUnavailable       = errors.New("service unavailable")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrCanceled          = errors.New("operation canceled")

	// Pipeline stage error sentinel values. The HTTP layer maps these to
	// client-caused (4xx) or server-caused (5xx) status classes.
	ErrValidation    = errors.New("audio validation failed")
	ErrTranscription = errors.New("transcription failed")
	ErrRedaction     = errors.New("pii redaction failed")
	ErrSummarization = errors.New("summarization failed")
	ErrSynthesis     = errors.New("speech synthesis failed")
	ErrStorage       = errors.New("artifact storage failed")
	ErrJobNotFound   = errors.New("pipeline job not found")
)

// Error represents a structured error with caller information and additional context
type Error struct {
	// original is the underlying error
	original error

	// message is the error message
	message string

	// fields contains contextual information
	fields map[string]interface{}

	// stackPC is the program counter for the error's creation
	stackPC uintptr

	// file and line record where the error was created
	file string
	line int

	// Code is an optional error code for categorization
	Code string
}

// New creates a new structured error with the given message
func New(message string, fields ...map[string]interface{}) *Error {
	pc, file, line, _ := runtime.Caller(1)

	var fieldMap map[string]interface{}
	if len(fields) > 0 && fields[0] != nil {
		fieldMap = fields[0]
	} else {
		fieldMap = make(map[string]interface{})
	}

	return &Error{
		original: errors.New(message),
		message:  message,
		fields:   fieldMap,
		stackPC:  pc,
		file:     file,
		line:     line,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, message string, fields ...map[string]interface{}) *Error {
	if err == nil {
		return nil
	}

	pc, file, line, _ := runtime.Caller(1)

	var fieldMap map[string]interface{}
	if len(fields) > 0 && fields[0] != nil {
		fieldMap = fields[0]
	} else {
		fieldMap = make(map[string]interface{})
	}

	return &Error{
		original: err,
		message:  message,
		fields:   fieldMap,
		stackPC:  pc,
		file:     file,
		line:     line,
	}
}

// WithField adds a single field to the error context
func (e *Error) WithField(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}

	// Create a copy to avoid modifying the original
	result := &Error{
		original: e.original,
		message:  e.message,
		fields:   make(map[string]interface{}, len(e.fields)+1),
		stackPC:  e.stackPC,
		file:     e.file,
		line:     e.line,
		Code:     e.Code,
	}

	for k, v := range e.fields {
		result.fields[k] = v
	}
	result.fields[key] = value

	return result
}

// WithFields adds multiple fields to the error context
func (e *Error) WithFields(fields map[string]interface{}) *Error {
	if e == nil {
		return nil
	}

	result := &Error{
		original: e.original,
		message:  e.message,
		fields:   make(map[string]interface{}, len(e.fields)+len(fields)),
		stackPC:  e.stackPC,
		file:     e.file,
		line:     e.line,
		Code:     e.Code,
	}

	for k, v := range e.fields {
		result.fields[k] = v
	}
	for k, v := range fields {
		result.fields[k] = v
	}

	return result
}

// WithCode adds an error code to the error
func (e *Error) WithCode(code string) *Error {
	if e == nil {
		return nil
	}

	return &Error{
		original: e.original,
		message:  e.message,
		fields:   e.fields,
		stackPC:  e.stackPC,
		file:     e.file,
		line:     e.line,
		Code:     code,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil || e.original == nil {
		return ""
	}

	if e.message == "" {
		return e.original.Error()
	}

	return fmt.Sprintf("%s: %v", e.message, e.original)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.original
}

// Location returns the file:line where the error was created
func (e *Error) Location() string {
	if e == nil {
		return ""
	}

	parts := strings.Split(e.file, "/")
	filename := parts[len(parts)-1]

	return fmt.Sprintf("%s:%d", filename, e.line)
}

// GetFields returns the error's context fields
func (e *Error) GetFields() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.fields
}

// Is reports whether any error in err's tree matches target.
// Implements the errors.Is interface.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}

	if errors.Is(e.original, target) {
		return true
	}

	return e == target
}

// Detail returns the user-visible message for the error. Internal
// diagnostic detail (caller location, context fields) belongs in logs,
// never in API responses.
func (e *Error) Detail() string {
	if e == nil {
		return ""
	}
	if e.message != "" {
		return e.message
	}
	return e.original.Error()
}

// Detail extracts the user-visible message from any error
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Detail()
	}
	return err.Error()
}

// NewValidation creates a new ErrValidation error with additional context
func NewValidation(message string, fields ...map[string]interface{}) *Error {
	err := New(message, fields...)
	return &Error{
		original: ErrValidation,
		message:  message,
		fields:   err.fields,
		stackPC:  err.stackPC,
		file:     err.file,
		line:     err.line,
		Code:     "VALIDATION_FAILED",
	}
}

// NewTranscription creates a new ErrTranscription error with additional context
func NewTranscription(message string, fields ...map[string]interface{}) *Error {
	err := New(message, fields...)
	return &Error{
		original: ErrTranscription,
		message:  message,
		fields:   err.fields,
		stackPC:  err.stackPC,
		file:     err.file,
		line:     err.line,
		Code:     "TRANSCRIPTION_FAILED",
	}
}

// NewRedaction creates a new ErrRedaction error with additional context
func NewRedaction(message string, fields ...map[string]interface{}) *Error {
	err := New(message, fields...)
	return &Error{
		original: ErrRedaction,
		message:  message,
		fields:   err.fields,
		stackPC:  err.stackPC,
		file:     err.file,
		line:     err.line,
		Code:     "REDACTION_FAILED",
	}
}

// NewSummarization creates a new ErrSummarization error with additional context
func NewSummarization(message string, fields ...map[string]interface{}) *Error {
	err := New(message, fields...)
	return &Error{
		original: ErrSummarization,
		message:  message,
		fields:   err.fields,
		stackPC:  err.stackPC,
		file:     err.file,
		line:     err.line,
		Code:     "SUMMARIZATION_FAILED",
	}
}

// NewSynthesis creates a new ErrSynthesis error with additional context
func NewSynthesis(message string, fields ...map[string]interface{}) *Error {
	err := New(message, fields...)
	return &Error{
		original: ErrSynthesis,
		message:  message,
		fields:   err.fields,
		stackPC:  err.stackPC,
		file:     err.file,
		line:     err.line,
		Code:     "SYNTHESIS_FAILED",
	}
}

// NewInternal creates a new ErrInternal error with additional context
func NewInternal(message string, fields ...map[string]interface{}) *Error {
	err := New(message, fields...)
	return &Error{
		original: ErrInternal,
		message:  message,
		fields:   err.fields,
		stackPC:  err.stackPC,
		file:     err.file,
		line:     err.line,
		Code:     "INTERNAL_ERROR",
	}
}

// IsRetryable reports whether the error represents a transient stage
// failure that is eligible for bounded retry. Validation errors are
// never retried because the input itself is invalid, and internal
// errors are always fatal to the job.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation):
		return false
	case errors.Is(err, ErrInternal):
		return false
	case errors.Is(err, ErrCanceled):
		return false
	case errors.Is(err, ErrTranscription),
		errors.Is(err, ErrRedaction),
		errors.Is(err, ErrSummarization),
		errors.Is(err, ErrSynthesis),
		errors.Is(err, ErrStorage),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrUnavailable):
		return true
	default:
		return false
	}
}

// Is re-exports errors.Is for callers that only import this package
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As re-exports errors.As for callers that only import this package
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
