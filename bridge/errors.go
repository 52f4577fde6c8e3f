package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrConnClosed reports that the child's output ended before a reply
	// line was produced.
	ErrConnClosed = errors.New("connection closed")

	// ErrReplyTimeout reports that no reply line arrived within the query
	// bound. The reply stays owed on the pipe and is discarded later.
	ErrReplyTimeout = errors.New("response timeout")

	// ErrEmptyReply reports a reply line that was empty or all whitespace.
	ErrEmptyReply = errors.New("empty reply line")

	// ErrNotReady reports a call that requires a state the bridge is not in.
	ErrNotReady = errors.New("bridge not ready")

	// ErrClosed reports a call against a bridge whose process is gone.
	ErrClosed = errors.New("bridge closed")
)

// ProcessError is the failure kind for everything that goes wrong talking to
// the child process, from spawning it through any single query.
type ProcessError struct {
	Op  string
	Err error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

func procErr(op string, err error) *ProcessError {
	return &ProcessError{Op: op, Err: err}
}
