// Package action provides Action, the library's universal unit of deferred
// work: a value type pairing a receiver with the method that acts on it.
//
// Every callback slot in goasync — timer actions, event triggers, stream
// readiness hints — is an Action rather than a bare func(). The distinction
// matters for one reason: Action is always constructed up front (typically
// once, at the call site that owns the receiver) and is then copied and
// scheduled by value. Nothing in this package or its callers is expected to
// allocate a new Action per registration; a func() literal that closes over
// its receiver is exactly the "(receiver, method)" pair the original C
// library expressed with a struct of two pointers, so Action is a thin,
// comparable-free wrapper around that closure rather than a second layer of
// indirection.
package action

// Action is a scheduled unit of work. The zero value is Noop: invoking it
// does nothing, and it is the default for every optional callback slot in
// the library.
type Action struct {
	fn func()
}

// New wraps fn as an Action. A nil fn is equivalent to Noop.
func New(fn func()) Action {
	return Action{fn: fn}
}

// Noop is the nullary action. It is always safe to invoke and always safe
// to store in place of an action that should be defused (see the posthumous
// callback pattern documented on the stream package).
var Noop = Action{}

// Invoke calls the wrapped function. Invoking Noop, or the zero Action, is a
// no-op.
func (a Action) Invoke() {
	if a.fn != nil {
		a.fn()
	}
}

// IsNoop reports whether a is the nullary action.
func (a Action) IsNoop() bool {
	return a.fn == nil
}
