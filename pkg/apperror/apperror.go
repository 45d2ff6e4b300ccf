// Package apperror defines the typed error taxonomy shared by every stage of
// the query pipeline. Each error carries a machine-readable kind, a
// human-readable message and the time it was raised; wrapped causes are kept
// for logging but never cross the public boundary.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// Validation indicates malformed or unsupported input.
	Validation Kind = "VALIDATION_ERROR"
	// Parse indicates no dialect could produce a syntax tree.
	Parse Kind = "PARSE_ERROR"
	// Extraction indicates the syntax tree lacked a recognizable statement shape.
	Extraction Kind = "EXTRACTION_ERROR"
	// UnsupportedBackend indicates an unknown backend or an unsupported kind for it.
	UnsupportedBackend Kind = "UNSUPPORTED_BACKEND_ERROR"
	// Adapter wraps a failure raised by a backend call.
	Adapter Kind = "ADAPTER_ERROR"
	// Timeout indicates an adapter call exceeded its budget.
	Timeout Kind = "TIMEOUT_ERROR"
	// Cache indicates a non-fatal cache malfunction.
	Cache Kind = "CACHE_ERROR"
	// Authentication indicates a missing or invalid credential.
	Authentication Kind = "AUTHENTICATION_ERROR"
	// RateLimited indicates a client exceeded its request allowance.
	RateLimited Kind = "RATE_LIMIT_ERROR"
)

// Error is a typed pipeline error.
type Error struct {
	Kind      Kind
	Message   string
	Timestamp time.Time
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Public is the caller-facing shape of an error.
type Public struct {
	Type      Kind   `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Public returns the error without internal detail.
func (e *Error) Public() Public {
	return Public{
		Type:      e.Kind,
		Message:   e.Message,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Timestamp: time.Now()}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Timestamp: time.Now(), Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err. Untyped errors are reported as Adapter
// errors since they can only originate from a backend call.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Adapter
}

// From returns err as an *Error, wrapping untyped errors as Adapter errors
// that keep the original message.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	return Wrap(Adapter, err.Error(), err)
}

func is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return is(err, Validation) }

// IsParse reports whether err is a parse error.
func IsParse(err error) bool { return is(err, Parse) }

// IsExtraction reports whether err is an extraction error.
func IsExtraction(err error) bool { return is(err, Extraction) }

// IsUnsupportedBackend reports whether err is an unsupported backend error.
func IsUnsupportedBackend(err error) bool { return is(err, UnsupportedBackend) }

// IsAdapter reports whether err is an adapter error.
func IsAdapter(err error) bool { return is(err, Adapter) }

// IsTimeout reports whether err is a timeout error.
func IsTimeout(err error) bool { return is(err, Timeout) }

// IsCache reports whether err is a cache error.
func IsCache(err error) bool { return is(err, Cache) }

// IsAuthentication reports whether err is an authentication error.
func IsAuthentication(err error) bool { return is(err, Authentication) }

// HTTPStatus maps an error kind to an HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Validation, Parse:
		return http.StatusBadRequest
	case Extraction:
		return http.StatusUnprocessableEntity
	case UnsupportedBackend:
		return http.StatusNotFound
	case Authentication:
		return http.StatusUnauthorized
	case RateLimited:
		return http.StatusTooManyRequests
	case Adapter:
		return http.StatusBadGateway
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
