// Package apperr classifies failures so HTTP handlers and the task queue
// can decide what to do with them without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind buckets an error by how the caller should react.
type Kind int

const (
	// KindUnknown is any error that was never classified.
	KindUnknown Kind = iota
	// KindValidation is a bad request; never retried.
	KindValidation
	// KindUnauthorized means the caller is not identified.
	KindUnauthorized
	// KindForbidden means the caller is identified but not allowed.
	KindForbidden
	// KindNotFound means the referenced order/session/token does not exist.
	KindNotFound
	// KindTransient is a flaky dependency failure, safe to retry.
	KindTransient
)

// Error carries a kind alongside a message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with a formatted message.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error, keeping it unwrappable.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from an error chain, KindUnknown if absent.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
