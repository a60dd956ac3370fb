// Package errs defines the closed set of error kinds used across the
// control plane (spec §7), replacing ad-hoc error strings with a single
// inspectable type every caller can switch on.
package errs

import (
	"errors"
	"fmt"
)

// Kind enumerates the recognized failure categories. The zero value is
// intentionally invalid so a forgotten Kind assignment fails loudly.
type Kind uint8

const (
	// KindUnspecified must never be returned; its presence indicates a bug.
	KindUnspecified Kind = iota
	// KindValidation covers malformed inputs: missing fields, options not in
	// a proposal, negative amounts. No state mutation occurs.
	KindValidation
	// KindAuthorizationDenied covers membership or balance requirements not
	// met by the caller.
	KindAuthorizationDenied
	// KindNotFound covers a referenced id that does not exist.
	KindNotFound
	// KindConflict covers duplicate votes, already-terminal intents, and
	// broken hash chains on append.
	KindConflict
	// KindTimeout covers an external capability exceeding its deadline.
	KindTimeout
	// KindIntegrityViolation covers hash-chain breaks, vector-clock
	// regressions, and input/output hash mismatches mid-pipeline.
	KindIntegrityViolation
	// KindExhausted covers consensus recovery attempts or gossipsub backoff
	// being exhausted.
	KindExhausted
	// KindInternal covers unexpected failures that are never swallowed
	// silently.
	KindInternal
)

// String renders the kind for logs and error messages.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorizationDenied:
		return "authorization_denied"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTimeout:
		return "timeout"
	case KindIntegrityViolation:
		return "integrity_violation"
	case KindExhausted:
		return "exhausted"
	case KindInternal:
		return "internal"
	default:
		return "unspecified"
	}
}

// Error is the single error type surfaced to callers across the control
// plane. Every user-visible failure carries a kind, a message, and a
// correlation id for cross-system tracing.
type Error struct {
	Kind          Kind
	Message       string
	CorrelationID string
	cause         error
}

// New constructs an Error with a formatted message.
func New(kind Kind, correlationID, format string, args ...any) *Error {
	return &Error{
		Kind:          kind,
		Message:       fmt.Sprintf(format, args...),
		CorrelationID: correlationID,
	}
}

// Wrap constructs an Error that preserves an underlying cause for errors.Is/As
// chains while still exposing a stable Kind.
func Wrap(kind Kind, correlationID string, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:          kind,
		Message:       fmt.Sprintf(format, args...),
		CorrelationID: correlationID,
		cause:         cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.CorrelationID == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (correlation_id=%s)", e.Kind, e.Message, e.CorrelationID)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, &errs.Error{Kind: errs.KindNotFound}).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// Recoverable reports whether the error kind is handled locally with
// best-effort retries rather than surfaced as a terminal failure.
func (k Kind) Recoverable() bool {
	switch k {
	case KindTimeout:
		return true
	default:
		return false
	}
}

// OfKind reports whether err is an *Error of the given kind.
func OfKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
