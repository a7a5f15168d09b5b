package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for the layer's error taxonomy. Every error surfaced by a
// repository wraps exactly one of these, so callers classify with errors.Is
// and never see driver-specific shapes.
var (
	// ErrValidation indicates the caller supplied a malformed entity or
	// out-of-range parameter. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates an update or delete targeted a missing row.
	// FindByID-style lookups return (nil, nil) instead.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a unique-constraint violation, most importantly
	// a status-list index collision. Callers may retry by re-allocating.
	ErrConflict = errors.New("conflict")

	// ErrCorrupt indicates stored data failed to decode: bitstring length
	// mismatch, unparseable JSON, or an invalid boolean integer.
	ErrCorrupt = errors.New("corrupt data")

	// ErrUnavailable indicates the backend connection is lost, timed out,
	// or the pool is exhausted. Surfaced so the caller can degrade.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrInternal indicates a mapper or repository precondition violation.
	ErrInternal = errors.New("internal error")
)

// Error carries the operation context alongside the classified kind.
type Error struct {
	Kind   error  // one of the sentinels above
	Op     string // e.g. "issuer.Update"
	Entity string // e.g. "issuer"
	ID     string // entity id when known
	Err    error  // underlying cause, already scrubbed of sensitive payloads
}

// Error renders the operation, id, and cause.
func (e *Error) Error() string {
	msg := e.Op
	if e.ID != "" {
		msg += " " + e.ID
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// NewError builds a classified error with operation context.
func NewError(kind error, op, entity, id string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Entity: entity, ID: id, Err: cause}
}

// Validationf builds an ErrValidation with a formatted cause.
func Validationf(op, entity, id, format string, args ...any) *Error {
	return NewError(ErrValidation, op, entity, id, fmt.Errorf(format, args...))
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is or wraps ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsValidation reports whether err is or wraps ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsCorrupt reports whether err is or wraps ErrCorrupt.
func IsCorrupt(err error) bool { return errors.Is(err, ErrCorrupt) }
