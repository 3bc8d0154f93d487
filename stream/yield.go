package stream

import "github.com/solaris-labs/goasync/action"

// Yield is a lazy, polymorphic sequence of T, the generic counterpart of
// spec §3's Yield type. It is the production-side contract for anything
// that hands out a stream of sub-objects one at a time without blocking —
// the Deserializer's stream-of-ByteStream2 being the motivating case, but
// the type itself is data-agnostic, so it generalizes across every
// instantiation the library needs via a single Go generic rather than the
// original's void*-and-vtable indirection.
//
// Receive has four possible outcomes, mirroring the original's
// EAGAIN/exhausted/errored trichotomy:
//
//   - (value, nil): a value is ready now.
//   - (zero, io.EOF): the sequence is exhausted; every subsequent call
//     returns the same.
//   - (zero, ErrWouldBlock): no value is ready yet; register a callback
//     and retry after it fires.
//   - (zero, err) for any other err: a terminal error latched for all
//     subsequent calls.
type Yield[T any] interface {
	// Receive returns the next value, or an error per the type docstring.
	Receive() (T, error)

	// Close releases the sequence and anything it still owns (e.g.
	// un-yielded sub-streams). Calling Close twice returns ErrClosed.
	Close() error

	// RegisterCallback arms a readiness hint, with the same at-least-once,
	// never-synchronous, possibly-posthumous contract as ByteStream's.
	RegisterCallback(a action.Action)

	// UnregisterCallback withdraws any previously registered callback.
	UnregisterCallback()
}
