// Package errors provides structured error handling for the tract feature jobs
package errors

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents invalid arguments or flags
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents missing files, objects or datasets
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeTimeout represents deadline errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConnection represents object store or warehouse connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeData represents data processing errors
	ErrorTypeData ErrorType = "data"
	// ErrorTypeSchema represents column resolution and type errors
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
	// ErrorTypeCapability represents unsupported formats or projections
	ErrorTypeCapability ErrorType = "capability"
)

// Error is a typed error carrying the URI, feature or column it concerns
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	// Origin is the file:line that created the error
	Origin string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{Type: errType, Message: message, Origin: origin()}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errType, Message: fmt.Sprintf(format, args...), Origin: origin()}
}

// Wrap adds a type and message to err. It returns nil for a nil err.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}
	e := &Error{Type: errType, Message: message, Cause: err}
	var inner *Error
	if errors.As(err, &inner) && inner.Origin != "" {
		e.Origin = inner.Origin
	} else {
		e.Origin = origin()
	}
	return e
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the outermost structured type of err, or ErrorTypeInternal.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// DetailsOf merges the details of every *Error in the chain. Outer layers
// win on key collisions.
func DetailsOf(err error) map[string]interface{} {
	out := make(map[string]interface{})
	for err != nil {
		if e, ok := err.(*Error); ok {
			for k, v := range e.Details {
				if _, seen := out[k]; !seen {
					out[k] = v
				}
			}
		}
		err = errors.Unwrap(err)
	}
	return out
}

// ExitCode maps an error to the process exit status: 0 for nil, 2 for bad
// flags or configuration and 1 for everything else.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case IsType(err, ErrorTypeValidation), IsType(err, ErrorTypeConfig):
		return 2
	default:
		return 1
	}
}

// Is and As re-export the standard library helpers so callers need one import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }

// origin reports the caller of the exported constructor
func origin() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return ""
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}
