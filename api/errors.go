// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for the status registry.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrAttach           = errors.New("cannot attach to status registry")
	ErrSchemaMismatch   = errors.New("status registry schema mismatch")
	ErrWriterBusy       = errors.New("another writer holds the status registry lock")
	ErrReadTimeout      = errors.New("timed out waiting for a consistent snapshot")
	ErrFeedUnavailable  = errors.New("external feed unavailable")
	ErrTextTruncated    = errors.New("text value truncated to field width")
	ErrDuplicateKey     = errors.New("duplicate key in batch")
	ErrCapacityExceeded = errors.New("status registry capacity exceeded")
	ErrTypeMismatch     = errors.New("value type does not match key schema")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidToken     = errors.New("commit token is not current")
	ErrNotSupported     = errors.New("operation not supported")
	ErrClosed           = errors.New("status registry is detached")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeAttach
	ErrCodeWriterBusy
	ErrCodeReadTimeout
	ErrCodeFeedUnavailable
	ErrCodeTextTruncated
	ErrCodeInvalidArgument
	ErrCodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeAttach:
		return "attach"
	case ErrCodeWriterBusy:
		return "writer_busy"
	case ErrCodeReadTimeout:
		return "read_timeout"
	case ErrCodeFeedUnavailable:
		return "feed_unavailable"
	case ErrCodeTextTruncated:
		return "text_truncated"
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	default:
		return "internal"
	}
}

// Error represents a structured error with code and context.
// Err holds the sentinel (or cause) so errors.Is keeps working.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap creates a structured error around cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	e := NewError(code, message)
	e.Err = cause
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf extracts the ErrorCode carried by err, or ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	switch {
	case errors.Is(err, ErrAttach), errors.Is(err, ErrSchemaMismatch):
		return ErrCodeAttach
	case errors.Is(err, ErrWriterBusy):
		return ErrCodeWriterBusy
	case errors.Is(err, ErrReadTimeout):
		return ErrCodeReadTimeout
	case errors.Is(err, ErrFeedUnavailable):
		return ErrCodeFeedUnavailable
	case errors.Is(err, ErrTextTruncated):
		return ErrCodeTextTruncated
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrDuplicateKey),
		errors.Is(err, ErrTypeMismatch), errors.Is(err, ErrCapacityExceeded):
		return ErrCodeInvalidArgument
	}
	return ErrCodeInternal
}
