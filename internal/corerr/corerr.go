// Package corerr defines the core error taxonomy (spec §7). Every error
// is an *Error carrying a Kind from a fixed set (plus a dedicated
// ConcurrencyConflict detail type), so callers can branch on the kind
// instead of string-matching, the way
// apps/payment-service/internal/domain/errors.go and
// apps/booking-service/internal/domain/errors.go define one sentinel per
// invariant violation rather than a single generic error.
package corerr

import (
	"fmt"
)

// Kind classifies an error into the taxonomy from spec.md §7.
type Kind string

const (
	KindValidation    Kind = "validation_failure"
	KindConcurrency   Kind = "concurrency_conflict"
	KindStorage       Kind = "storage_unavailable"
	KindBus           Kind = "bus_unavailable"
	KindSerialization Kind = "serialization_error"
	KindGateway       Kind = "gateway_failure"
	KindTimeout       Kind = "timeout"
	KindAuthorization Kind = "authorization_failure"
	KindNotFound      Kind = "not_found"
)

// Error is the core structured error type. CorrelationID is set only by
// WithCorrelation; New and Wrap leave it empty, and no component in this
// module attaches one to the errors it returns.
type Error struct {
	Kind          Kind
	Message       string
	CorrelationID string
	Err           error
}

func (e *Error) Error() string {
	if e.CorrelationID != "" {
		return fmt.Sprintf("[%s] %s (correlation_id=%s)", e.Kind, e.Message, e.CorrelationID)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a core error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a core error of the given kind wrapping an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithCorrelation returns a copy of err with the correlation id attached.
func WithCorrelation(err *Error, correlationID string) *Error {
	if err == nil {
		return nil
	}
	cp := *err
	cp.CorrelationID = correlationID
	return &cp
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var ce *Error
	if e, ok := err.(*Error); ok {
		ce = e
	} else {
		return false
	}
	return ce.Kind == kind
}

// ConcurrencyConflict is returned by the event store when an append's
// expected_version does not match the stream's current version
// (spec.md §4.1, invariant "Append-or-fail").
type ConcurrencyConflict struct {
	StreamID string
	Expected *uint64
	Actual   uint64
}

func (e *ConcurrencyConflict) Error() string {
	exp := "none"
	if e.Expected != nil {
		exp = fmt.Sprintf("%d", *e.Expected)
	}
	return fmt.Sprintf("concurrency conflict on stream %q: expected version %s, actual %d", e.StreamID, exp, e.Actual)
}

// AsCoreError wraps a ConcurrencyConflict in the taxonomy.
func (e *ConcurrencyConflict) AsCoreError() *Error {
	return Wrap(KindConcurrency, e.Error(), e)
}
