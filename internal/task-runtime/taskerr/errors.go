// Package taskerr defines the stable error taxonomy surfaced by the task
// runtime. Every caller-visible failure carries a machine-readable kind and a
// human-readable message; none of them are retried automatically.
package taskerr

import (
	"errors"
	"fmt"
)

// Kind is the stable, machine-readable error classification.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindInvalidTask    Kind = "invalid_task"
	KindExecutionError Kind = "execution_error"
	KindTimeout        Kind = "timeout"
	KindUnauthorized   Kind = "unauthorized"
	KindForbidden      Kind = "forbidden"
	KindBadRequest     Kind = "bad_request"
)

// Error pairs a Kind with a message. The message of a thrown task error is
// preserved verbatim.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// KindOf extracts the Kind from err, defaulting to execution_error for
// unclassified failures.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindExecutionError
}

// Message returns the bare message of err without the kind prefix.
func Message(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func InvalidTask(format string, args ...any) error {
	return &Error{Kind: KindInvalidTask, Msg: fmt.Sprintf(format, args...)}
}

func Execution(format string, args ...any) error {
	return &Error{Kind: KindExecutionError, Msg: fmt.Sprintf(format, args...)}
}

func Timeout(format string, args ...any) error {
	return &Error{Kind: KindTimeout, Msg: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...any) error {
	return &Error{Kind: KindUnauthorized, Msg: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

func BadRequest(format string, args ...any) error {
	return &Error{Kind: KindBadRequest, Msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == k
}
