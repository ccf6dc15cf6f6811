// Package errz defines the structured error type surfaced by the riv
// compiler and virtual machine.
package errz

import (
	"fmt"

	"github.com/deepnoodle-ai/riv/sexp"
)

// ErrorKind represents the category of an error.
type ErrorKind int

const (
	// ErrUnboundVariable indicates a variable or function lookup failure.
	ErrUnboundVariable ErrorKind = iota
	// ErrMissingArgument indicates use of a missing argument.
	ErrMissingArgument
	// ErrNonFunction indicates an attempt to apply a non-callable value.
	ErrNonFunction
	// ErrBadCondition indicates a condition value with no single truth value.
	ErrBadCondition
	// ErrBadAssignmentTarget indicates a malformed assignment left-hand side.
	ErrBadAssignmentTarget
	// ErrOutOfRange indicates an index beyond a vector's length.
	ErrOutOfRange
	// ErrRuntime indicates a general evaluation error, including conditions
	// raised by user code.
	ErrRuntime
	// ErrInternal indicates a bug in opcode dispatch or frame bookkeeping.
	ErrInternal
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrUnboundVariable:
		return "unbound variable"
	case ErrMissingArgument:
		return "missing argument"
	case ErrNonFunction:
		return "non-function"
	case ErrBadCondition:
		return "bad condition"
	case ErrBadAssignmentTarget:
		return "bad assignment target"
	case ErrOutOfRange:
		return "out of range"
	case ErrRuntime:
		return "error"
	case ErrInternal:
		return "internal error"
	default:
		return "error"
	}
}

// Error is a structured evaluation error carrying its kind and, when
// available, the call AST in whose evaluation it arose.
type Error struct {
	Kind    ErrorKind
	Message string
	Call    sexp.Value
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Call == nil || sexp.IsNil(e.Call) {
		return fmt.Sprintf("Error: %s", e.Message)
	}
	return fmt.Sprintf("Error in %s : %s", e.Call.String(), e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *Error) Unwrap() error { return e.Cause }

// IsFatal reports whether the error is unrecoverable. Only internal errors
// are fatal; everything else propagates to the nearest installed frame.
func (e *Error) IsFatal() bool { return e.Kind == ErrInternal }

// New creates an error of the given kind.
func New(kind ErrorKind, call sexp.Value, message string) *Error {
	return &Error{Kind: kind, Message: message, Call: call}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind ErrorKind, call sexp.Value, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Call: call}
}

// WithCause wraps the error with a cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// KindOf returns the kind of err when it is a structured error, and
// ErrRuntime otherwise.
func KindOf(err error) ErrorKind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ErrRuntime
}
