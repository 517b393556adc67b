package internalerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDuplicate        = errors.New("duplicate entry")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// Code identifies a domain-level error condition in a machine-readable way.
type Code string

const (
	CodeKeywordTaken     Code = "KEYWORD_TAKEN"
	CodeRedirectLoop     Code = "REDIRECT_LOOP"
	CodeAlreadyResolved  Code = "ALREADY_RESOLVED"
	CodeAlreadyCompleted Code = "ALREADY_COMPLETED"
	CodeInvalidAction    Code = "INVALID_ACTION"
	CodeInvalidStatus    Code = "INVALID_STATUS"
	CodeValidationError  Code = "VALIDATION_ERROR"
	CodeUnhandledType    Code = "UNHANDLED_CONFLICT_TYPE"
)

// DomainError is an expected, recoverable failure surfaced to callers with a
// stable code. It wraps a sentinel so errors.Is keeps working.
type DomainError struct {
	Code    Code
	Message string
	Detail  map[string]any
	wrapped error
}

func (e *DomainError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.wrapped }

// New creates a DomainError with the given code and message.
func New(code Code, msg string, wrapped error) *DomainError {
	return &DomainError{Code: code, Message: msg, wrapped: wrapped}
}

// WithDetail attaches structured detail for the caller to display.
func (e *DomainError) WithDetail(key string, val any) *DomainError {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = val
	return e
}

// CodeOf extracts the domain code from err, or "" if err carries none.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
