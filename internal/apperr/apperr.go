// Package apperr defines the error taxonomy shared by repositories, middleware,
// and HTTP handlers. Every failure surfaced to a client is classified as one of
// four kinds; the handler boundary maps the kind to an HTTP status and a safe
// message. Store errors never leak internal detail to the client — the wrapped
// cause is logged server-side only.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for HTTP mapping.
type Kind int

const (
	// KindUnknown is the zero value; treated as a store error at the boundary.
	KindUnknown Kind = iota
	// KindValidation - malformed input (bad date, non-numeric pagination, out-of-range days).
	KindValidation
	// KindAuthorization - missing/unresolved tenant identity or feature-gate denial.
	KindAuthorization
	// KindNotFound - record absent or belongs to a different tenant.
	KindNotFound
	// KindStore - underlying persistence failure.
	KindStore
)

// Error carries a kind, an optional field name for validation failures, a
// client-safe message, and an optional wrapped cause.
type Error struct {
	Kind  Kind
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a validation error attributed to a field.
func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: msg}
}

// Validationf returns a validation error with a formatted message.
func Validationf(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Authorization returns an authorization error.
func Authorization(msg string) *Error {
	return &Error{Kind: KindAuthorization, Msg: msg}
}

// NotFound returns a not-found error. The message is identical whether the
// record is absent or belongs to another tenant, so existence does not leak
// across tenants.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

// Store wraps a persistence failure. The cause is retained for server-side
// logging; clients only ever see a generic message.
func Store(err error) *Error {
	return &Error{Kind: KindStore, Msg: "internal error", Err: err}
}

// KindOf extracts the Kind from err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// FieldOf extracts the field name from err, or "" if none.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}
