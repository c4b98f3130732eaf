package errortaxonomy

import (
	"errors"
	"fmt"
)

// Error is the gateway's domain error. Every boundary (pipeline edge, DIMSE
// command handler, backend driver) wraps failures in an Error so the Kind is
// always available for status mapping and logging, instead of inspecting
// error strings.
type Error struct {
	Kind    Kind
	Message string

	// Hint provides optional additional guidance for API clients.
	// WARNING: never include sensitive information or internal error
	// details in Hint.
	Hint string

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As chaining.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an Error of the given Kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error of the given Kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithHint attaches a client-facing hint and returns the same Error for
// chaining: errortaxonomy.New(...).WithHint("...").
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// Wrap creates an Error of the given Kind that wraps an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// As extracts an *Error from err, if any is present in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// KindOf returns the Kind of err if it wraps an *Error, or Network as a
// conservative default for unclassified errors reaching a boundary.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Network
}
