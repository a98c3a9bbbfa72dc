// Package perror provides the closed error taxonomy every public
// operation in this module reports through. The record shape (category
// code, stable symbolic name, human message, caller) is carried over
// from the teacher's internal/errors.StandardError, generalized from a
// handful of ad-hoc categories to the fixed Kind enumeration this
// library's contract requires.
package perror

import (
	"fmt"
	"runtime"
)

// Kind enumerates the closed error taxonomy. Names are part of the
// contract: they appear in logs and must stay stable across releases.
type Kind int

const (
	Success Kind = iota
	Unexpected
	Async
	RepeatAction
	Timeout
	Initialization
	InvalidValue
	InvalidOption
	Format
	AccessViolation
	AddressInUse
	AddressNotAvailable
	NetworkUnreachable
	ConnectionRefused
	ConnectionAborted
	NoConnection
	NumFiles
	NumItems
	OutOfMemory
	FSError
	UnsupportedAction
	EmptyCallback
	Aborted
	NotImplemented
)

var names = [...]string{
	Success:             "success",
	Unexpected:          "unexpected",
	Async:               "async",
	RepeatAction:        "repeat_action",
	Timeout:             "timeout",
	Initialization:      "initialization",
	InvalidValue:        "invalid_value",
	InvalidOption:       "invalid_option",
	Format:              "format",
	AccessViolation:     "access_violation",
	AddressInUse:        "address_in_use",
	AddressNotAvailable: "address_not_available",
	NetworkUnreachable:  "network_unreachable",
	ConnectionRefused:   "connection_refused",
	ConnectionAborted:   "connection_aborted",
	NoConnection:        "no_connection",
	NumFiles:            "num_files",
	NumItems:            "num_items",
	OutOfMemory:         "out_of_memory",
	FSError:             "fs_error",
	UnsupportedAction:   "unsupported_action",
	EmptyCallback:       "empty_callback",
	Aborted:             "aborted",
	NotImplemented:      "not_implemented",
}

var descriptions = [...]string{
	Success:             "operation completed successfully",
	Unexpected:          "an unexpected condition was encountered",
	Async:               "operation is in progress; poll readiness and retry",
	RepeatAction:        "an equivalent action is already pending; no new action scheduled",
	Timeout:             "operation timed out before completing",
	Initialization:      "connector is not in a valid state for this operation",
	InvalidValue:        "an argument has an invalid value",
	InvalidOption:       "the requested connector option is not supported",
	Format:              "a value could not be parsed",
	AccessViolation:     "access to the requested resource was denied",
	AddressInUse:        "the requested address is already in use",
	AddressNotAvailable: "the requested address is not available on this host",
	NetworkUnreachable:  "the destination network is unreachable",
	ConnectionRefused:   "the remote peer refused the connection",
	ConnectionAborted:   "the connection was aborted",
	NoConnection:        "no connection is established",
	NumFiles:            "the process file descriptor limit was reached",
	NumItems:            "a fixed-size collection is full",
	OutOfMemory:         "allocation failed",
	FSError:             "a filesystem operation failed",
	UnsupportedAction:   "this connector kind does not support the requested action",
	EmptyCallback:       "a callback is required but was nil",
	Aborted:             "the operation was aborted",
	NotImplemented:      "this platform does not implement the requested capability",
}

// String returns the stable symbolic name for k.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(names) || names[k] == "" {
		return "unknown"
	}
	return names[k]
}

// Description returns the stable human-readable message for k.
func (k Kind) Description() string {
	if k < 0 || int(k) >= len(descriptions) || descriptions[k] == "" {
		return "unknown error"
	}
	return descriptions[k]
}

// Error is the concrete error type returned at every operation boundary.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
	Caller  string
	cause   error
}

// New creates an *Error of the given kind, recording the immediate caller
// for diagnostics the way the teacher's NewStandardError does.
func New(kind Kind, message string, context map[string]any) *Error {
	pc, _, _, ok := runtime.Caller(1)
	caller := "unknown"

	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &Error{Kind: kind, Message: message, Context: context, Caller: caller}
}

// Wrap creates an *Error of the given kind that chains cause for
// errors.Unwrap, preserving the underlying OS/library error.
func Wrap(kind Kind, cause error, message string) *Error {
	e := New(kind, message, nil)
	e.cause = cause

	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v (caller: %s)", e.Kind, e.Message, e.cause, e.Caller)
	}

	return fmt.Sprintf("[%s] %s (caller: %s)", e.Kind, e.Message, e.Caller)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is a *Error with the same Kind, so that
// errors.Is(err, perror.New(perror.Async, "", nil)) style checks aren't
// required; callers instead compare against the sentinel values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Kind == t.Kind
}

// Sentinel values for errors.Is comparisons against a specific Kind
// without constructing a new *Error, e.g. errors.Is(err, perror.ErrAsync).
var (
	ErrAsync             = &Error{Kind: Async, Message: descriptions[Async]}
	ErrRepeatAction      = &Error{Kind: RepeatAction, Message: descriptions[RepeatAction]}
	ErrTimeout           = &Error{Kind: Timeout, Message: descriptions[Timeout]}
	ErrInitialization    = &Error{Kind: Initialization, Message: descriptions[Initialization]}
	ErrInvalidValue      = &Error{Kind: InvalidValue, Message: descriptions[InvalidValue]}
	ErrInvalidOption     = &Error{Kind: InvalidOption, Message: descriptions[InvalidOption]}
	ErrUnsupportedAction = &Error{Kind: UnsupportedAction, Message: descriptions[UnsupportedAction]}
	ErrEmptyCallback     = &Error{Kind: EmptyCallback, Message: descriptions[EmptyCallback]}
	ErrAborted           = &Error{Kind: Aborted, Message: descriptions[Aborted]}
	ErrNotImplemented    = &Error{Kind: NotImplemented, Message: descriptions[NotImplemented]}
)

// Of reports the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if as(err, &e) {
		return e.Kind, true
	}

	return Unexpected, false
}

// as is a tiny local shim so this package doesn't need to import errors
// just for As in the one place it's used internally.
func as(err error, target **Error) bool {
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
