// Package faults defines the error taxonomy shared by every capsule
// operation. Callers classify failures by Kind, not by concrete type;
// the API layer maps kinds onto HTTP statuses.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure.
type Kind int

const (
	// KindInternal is the zero value so unclassified errors map to 500.
	KindInternal Kind = iota
	KindNotFound
	KindUnauthorized
	KindInvalidArgument
	KindConflict
	KindResourceExhausted
	KindNotImplemented
)

// String returns a stable snake_case name for logs and JSON payloads.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindConflict:
		return "conflict"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindNotImplemented:
		return "not_implemented"
	default:
		return "internal"
	}
}

// Error carries a kind plus a human message; Unwrap exposes any cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with a formatted message.
func New(k Kind, format string, args ...any) error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. A nil cause yields nil.
func Wrap(k Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, or KindInternal when unclassified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, k Kind) bool { return err != nil && KindOf(err) == k }

// Convenience constructors for the common kinds.

func NotFound(format string, args ...any) error {
	return New(KindNotFound, format, args...)
}

func Unauthorized(format string, args ...any) error {
	return New(KindUnauthorized, format, args...)
}

func InvalidArgument(format string, args ...any) error {
	return New(KindInvalidArgument, format, args...)
}

func Conflict(format string, args ...any) error {
	return New(KindConflict, format, args...)
}
