package track

import "errors"

var (
	// ErrJobMismatch means the session is bound to a different job than the
	// one named by the caller.
	ErrJobMismatch = errors.New("tracking session is bound to a different job")

	// ErrSessionBusy means an active binding would be overwritten: a
	// standalone toggle over a job-bound session, or vice versa.
	ErrSessionBusy = errors.New("tracking session is already active")

	// ErrOperationInProgress means a standalone toggle is already in flight.
	ErrOperationInProgress = errors.New("a tracking toggle is already in progress")

	// ErrStopped means the session was torn down while an acquisition was in
	// flight; the late fix was discarded.
	ErrStopped = errors.New("tracking session was stopped before the fix resolved")
)
