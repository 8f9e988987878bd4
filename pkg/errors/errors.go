// Package errors carries the typed error codes shared by every service. A
// code decides the HTTP status, whether a caller may retry, and what the
// client is allowed to see.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
)

type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodePayloadTooLarge Code = "PAYLOAD_TOO_LARGE"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeStateConflict   Code = "STATE_CONFLICT"
	CodeIdempotency     Code = "IDEMPOTENCY_KEY_REUSED"
	CodeQuotaExceeded   Code = "QUOTA_EXCEEDED"
	CodeRateLimit       Code = "RATE_LIMITED"
	CodeInternal        Code = "INTERNAL_ERROR"
	CodeDependency      Code = "DEPENDENCY_ERROR"
)

// Metadata is the client-facing contract of a code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

type flag uint8

const (
	retry flag = 1 << iota
	details
)

func meta(status int, public string, flags flag) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&retry != 0,
		DetailsAllowed: flags&details != 0,
	}
}

var codes = map[Code]Metadata{
	CodeValidation:      meta(http.StatusBadRequest, "validation failed", details),
	CodePayloadTooLarge: meta(http.StatusRequestEntityTooLarge, "payload too large", details),
	CodeUnauthorized:    meta(http.StatusUnauthorized, "authentication required", 0),
	CodeForbidden:       meta(http.StatusForbidden, "access denied", 0),
	CodeNotFound:        meta(http.StatusNotFound, "resource not found", 0),
	CodeConflict:        meta(http.StatusConflict, "conflict detected", 0),
	CodeStateConflict:   meta(http.StatusConflict, "state transition disallowed", details),
	CodeIdempotency:     meta(http.StatusConflict, "idempotency key reused", details),
	CodeQuotaExceeded:   meta(http.StatusTooManyRequests, "usage limit reached", details),
	CodeRateLimit:       meta(http.StatusTooManyRequests, "too many requests", retry|details),
	CodeInternal:        meta(http.StatusInternalServerError, "internal server error", retry),
	CodeDependency:      meta(http.StatusServiceUnavailable, "dependency unavailable", retry|details),
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if m, ok := codes[code]; ok {
		return m
	}
	return codes[CodeInternal]
}

// Error is a coded error. The zero of *Error reads as CodeInternal.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets client-visible details in place and returns e.
func (e *Error) WithDetails(d any) *Error {
	if e != nil {
		e.details = d
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.code))
	if e.message != "" {
		b.WriteString(": ")
		b.WriteString(e.message)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given typed code anywhere in its chain.
func IsCode(err error, code Code) bool {
	return As(err).codeOr("") == code
}

// Retryable reports whether a caller should try again. Untyped errors are
// treated as transient.
func Retryable(err error) bool {
	if typed := As(err); typed != nil {
		return MetadataFor(typed.code).Retryable
	}
	return err != nil
}

func (e *Error) codeOr(fallback Code) Code {
	if e == nil {
		return fallback
	}
	return e.code
}
