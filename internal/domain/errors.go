package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain failures so transports can map them to status codes.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "not_found"
	KindConflict        ErrorKind = "conflict"
	KindInvalidArgument ErrorKind = "invalid_argument"
	KindInvalidState    ErrorKind = "invalid_state"
	KindUnavailable     ErrorKind = "unavailable"
)

// Error is a typed domain outcome. Two errors match under errors.Is when the
// target carries no message and both share the same kind.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches bare kind sentinels such as ErrConflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrInvalidState    = &Error{Kind: KindInvalidState}
	ErrUnavailable     = &Error{Kind: KindUnavailable}
)

var (
	// ErrRunningTimesheetExists is returned when a start would open a second running interval.
	ErrRunningTimesheetExists = Conflict("You already have a running timesheet. Please stop it before starting a new one.")
	// ErrNoRunningTimesheet is returned by stop when the user has nothing running.
	ErrNoRunningTimesheet = NotFound("No running timesheet found")
	// ErrTimesheetNotFound covers missing intervals and intervals owned by someone else.
	ErrTimesheetNotFound = NotFound("Timesheet not found")
	// ErrActivityNotFound is returned when the activity is missing or belongs to another user.
	ErrActivityNotFound = NotFound("Activity not found or not accessible")
	// ErrEndBeforeStart enforces strict ordering of interval bounds.
	ErrEndBeforeStart = InvalidArgument("End time must be after start time")
	// ErrDeleteRunning rejects deletion of an interval that is still open.
	ErrDeleteRunning = InvalidState("Cannot delete a running timesheet. Please stop it first.")
)

func NotFound(msg string) *Error        { return &Error{Kind: KindNotFound, Message: msg} }
func Conflict(msg string) *Error        { return &Error{Kind: KindConflict, Message: msg} }
func InvalidArgument(msg string) *Error { return &Error{Kind: KindInvalidArgument, Message: msg} }
func InvalidState(msg string) *Error    { return &Error{Kind: KindInvalidState, Message: msg} }

// Unavailable wraps a transient infrastructure failure the client may retry.
func Unavailable(msg string, err error) *Error {
	return &Error{Kind: KindUnavailable, Message: msg, Err: err}
}

// KindOf extracts the kind of a domain error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
