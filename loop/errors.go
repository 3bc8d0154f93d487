package loop

import (
	"errors"
	"fmt"
)

// Sentinel errors returned directly by Loop methods. Stream- and
// Yield-level failures use the taxonomy in package stream instead; these
// are specific to the scheduling primitives (timers, events, fd
// registrations) Loop itself owns.
var (
	// ErrTimerNotPending is returned by TimerCancel for a timer that has
	// already fired or was already canceled. Canceling twice, or
	// canceling after the callback has run, is defined behavior here
	// rather than undefined: it simply reports nothing was pending.
	ErrTimerNotPending = errors.New("goasync/loop: timer not pending")

	// ErrEventNotPending is returned by Event.Cancel for an event that is
	// not currently in the TRIGGERED state.
	ErrEventNotPending = errors.New("goasync/loop: event not pending")

	// ErrEventZombie is returned by Event.Cancel after Event.Destroy has
	// been called on the event (Event.Trigger on it is a silent no-op).
	ErrEventZombie = errors.New("goasync/loop: event destroyed")

	// ErrClosed is returned by Loop methods that reach the platform poller
	// after Close, and by Wake when no RunProtected call is in flight.
	ErrClosed = errors.New("goasync/loop: loop closed")

	// ErrFDAlreadyRegistered is returned by Register/RegisterLevel when
	// the file descriptor already has a registration.
	ErrFDAlreadyRegistered = errors.New("goasync/loop: fd already registered")

	// ErrFDNotRegistered is returned by ModifyLevel/Unregister for a file
	// descriptor that has no active registration.
	ErrFDNotRegistered = errors.New("goasync/loop: fd not registered")

	// ErrFDOutOfRange is returned by Register/RegisterLevel for a file
	// descriptor outside the range the platform poller can index.
	ErrFDOutOfRange = errors.New("goasync/loop: fd out of range")
)

// FatalError reports that a callback invoked by the loop panicked and the
// loop captured it instead of letting it unwind past Run, per the
// run-protected contract (Loop.RunProtected). Cause is always non-nil and
// is the recovered panic value, coerced to an error when possible.
type FatalError struct {
	Cause   error
	Message string
}

func (e *FatalError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("goasync/loop: callback panicked: %v", e.Cause)
	}
	return e.Message
}

func (e *FatalError) Unwrap() error {
	return e.Cause
}

// recoverToError coerces a recovered panic value into a FatalError (a
// non-error value is first formatted with %v) so RunProtected always
// reports an error, never a bare any.
func recoverToError(r any) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return &FatalError{Cause: err}
	}
	return &FatalError{Cause: fmt.Errorf("%v", r), Message: fmt.Sprintf("goasync/loop: callback panicked: %v", r)}
}
