package attempt

import (
	"errors"
	"fmt"
)

// Command errors returned when an operation is not valid in the current state.
var (
	ErrNotStarted       = errors.New("attempt view has not been loaded")
	ErrNotReady         = errors.New("attempt is not ready to start")
	ErrStartInFlight    = errors.New("start request already in flight")
	ErrNotInProgress    = errors.New("attempt is not in progress")
	ErrAlreadySubmitted = errors.New("attempt has already been submitted")
	ErrLedgerFrozen     = errors.New("answers are frozen for submission")
	ErrInvalidOption    = errors.New("option must be one of A, B, C, D")
	ErrUnknownQuestion  = errors.New("question does not belong to this exam")
	ErrClosed           = errors.New("attempt has been closed")
	ErrClockStarted     = errors.New("countdown already started")
	ErrInvalidDuration  = errors.New("countdown duration must be positive")
	ErrLatchNotHeld     = errors.New("submission latch not held")
)

// LoadError reports a failure to fetch the exam or its questions.
// It is fatal to the attempt view.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load exam: %v", e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// StartError reports a failed start-attempt call. The attempt stays Ready and
// the user may retry.
type StartError struct {
	Err error
}

func (e *StartError) Error() string { return fmt.Sprintf("start attempt: %v", e.Err) }
func (e *StartError) Unwrap() error { return e.Err }

// SubmitError reports a failed submission. Recoverable reports whether the
// attempt went back to InProgress (manual submit with time remaining).
type SubmitError struct {
	Trigger     Trigger
	Recoverable bool
	Err         error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit attempt (%s): %v", e.Trigger, e.Err)
}
func (e *SubmitError) Unwrap() error { return e.Err }
