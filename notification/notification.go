// Package notification provides Notification, a pipe-backed object whose
// Issue method may be called safely from any goroutine (or, on platforms
// where it matters, a signal handler): it writes a single byte into a
// non-blocking pipe whose read end is registered with a Loop. On callback,
// all pending bytes are drained and the configured action is invoked
// exactly once per burst, converting an arbitrary number of concurrent
// Issue calls arriving between two polls into a single loop-side dispatch.
//
// This is the cross-thread entry point into an otherwise single-threaded
// Loop for code outside the loop package: apart from Loop.Wake, Loop.Close
// and goroutines holding the RunProtected lock while the loop is blocked in
// its poll step, Loop methods must only be called from the goroutine
// currently running Run, RunProtected, or Flush/Poll.
package notification

import (
	"sync/atomic"

	"github.com/solaris-labs/goasync/action"
	"github.com/solaris-labs/goasync/loop"
)

// Notification converts cross-thread or signal-driven events into a single
// loop-goroutine callback. The zero value is not usable; construct one with
// New.
type Notification struct {
	readFD, writeFD int
	closed          atomic.Bool
	l               *loop.Loop
}

// New creates a Notification registered with l, such that a.Invoke() runs on
// l's goroutine once per burst of one or more Issue calls observed between
// two polls. The registration is edge-triggered: Issue may be called any
// number of times before the loop next polls and the action still fires
// exactly once, since all pending bytes are drained before invoking a.
func New(l *loop.Loop, a action.Action) (*Notification, error) {
	readFD, writeFD, err := createWakeFd()
	if err != nil {
		return nil, err
	}
	n := &Notification{readFD: readFD, writeFD: writeFD, l: l}
	if err := l.Register(readFD, loop.EventRead, func(loop.IOEvents) {
		drainWakeFd(readFD)
		a.Invoke()
	}); err != nil {
		_ = closeWakeFd(readFD, writeFD)
		return nil, err
	}
	return n, nil
}

// Issue signals the notification, waking the loop if it is blocked in a
// poll and arranging for the registered action to run on the loop's
// goroutine. Safe to call from any goroutine, including concurrently with
// itself and with the loop's own goroutine.
func (n *Notification) Issue() error {
	if n.closed.Load() {
		return loop.ErrClosed
	}
	return signalWakeFd(n.writeFD)
}

// Close unregisters the notification's fd from the loop and releases the
// underlying pipe. Close must be called from the loop's goroutine, like any
// other Loop.Unregister caller. Idempotent.
func (n *Notification) Close() error {
	if n.closed.Swap(true) {
		return nil
	}
	_ = n.l.Unregister(n.readFD)
	return closeWakeFd(n.readFD, n.writeFD)
}
