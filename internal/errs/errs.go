// Package errs implements the structured error taxonomy shared across the
// connection pool, persistent session, session manager, and shell formatter.
package errs

import "fmt"

// Kind identifies the class of failure a core operation returned. Callers
// use Is/As (or a direct type switch on *Error) to branch on it; the core
// never returns a bare error for a condition this taxonomy names.
type Kind string

const (
	InvalidArgument   Kind = "invalid_argument"
	NotFound          Kind = "not_found"
	Duplicate         Kind = "duplicate"
	LimitExceeded     Kind = "limit_exceeded"
	PolicyDenied      Kind = "policy_denied"
	KeyUnavailable    Kind = "key_unavailable"
	ConnectionTimeout Kind = "connection_timeout"
	ConnectionFailed  Kind = "connection_failed"
	ShellFailure      Kind = "shell_failure"
	StreamError       Kind = "stream_error"
	CommandTimeout    Kind = "command_timeout"
	SessionInactive   Kind = "session_inactive"
)

// Error is the concrete error type returned by every core entry point for a
// condition the taxonomy names.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, errs.New(errs.NotFound, "")) style checks, though the
// idiomatic path is errs.KindOf(err) == errs.NotFound.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates an Error with no wrapped cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error carrying an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, or ""
// otherwise.
func KindOf(err error) Kind {
	var e *Error
	if asError(err, &e) {
		return e.Kind
	}
	return ""
}

// asError is a tiny errors.As shim kept local to avoid importing errors just
// for this one call site in KindOf's hot path.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
