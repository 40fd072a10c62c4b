package sq3

import (
	"fmt"

	"github.com/ha1tch/sq3/engine"
)

// Error is an immutable snapshot of an engine diagnostic at the moment of
// translation: the status code the engine reported and its diagnostic
// text for the owning connection at that time. It carries no retry state.
type Error struct {
	Status  engine.Status
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Status.String()
	}
	return e.Message
}

// NewError constructs an Error from a literal message rather than a live
// connection.
func NewError(msg string) *Error {
	return &Error{Status: engine.Err, Message: msg}
}

// errStatus captures the connection's diagnostic text for a non-OK
// status. This is the single translation point between raw statuses and
// errors; status-returning entry points never call it.
func (db *Database) errStatus(rc engine.Status) error {
	msg := rc.String()
	if db.conn != nil {
		if m := db.conn.ErrMsg(); m != "" {
			msg = m
		}
	}
	return &Error{Status: rc, Message: msg}
}

// UsageFault is the panic value raised when a caller violates an API
// precondition, such as binding a named placeholder the statement does
// not contain. It marks a programming error, not a recoverable condition.
type UsageFault string

func (f UsageFault) Error() string { return string(f) }

func usageFault(format string, args ...any) {
	panic(UsageFault(fmt.Sprintf(format, args...)))
}
