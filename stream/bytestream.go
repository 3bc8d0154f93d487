// Package stream defines the two capability contracts every composable
// stream in goasync implements — ByteStream / ByteStream2 for byte data and
// Yield for lazy sequences of sub-objects — plus the shared error taxonomy
// both are built on. It deliberately holds no concrete stream types: those
// live in their own packages (queuestream, chunked, naive, reservoir,
// pacer, nicestream) and are glued together purely through these
// interfaces, the same "small, interface-only contracts" role the
// distilled spec assigns this layer (§2).
package stream

import (
	"io"

	"github.com/solaris-labs/goasync/action"
)

// ByteStream is the nonblocking, edge-triggered byte-source capability
// every producer and wrapper in the library exposes (spec §3, "ByteStream
// v1").
//
// Read follows io.Reader's EOF convention: (n > 0, nil) or (n > 0, io.EOF)
// for delivered bytes, (0, io.EOF) for a clean end of stream, and
// (0, stream.ErrWouldBlock) when no bytes are available right now — the
// Go-idiomatic rendering of the spec's "negative return + EAGAIN errno"
// signal. Any other non-nil error is terminal: once observed, a
// well-behaved ByteStream returns the same error on every subsequent Read
// (the "latched error" rule, spec §4.6/§7).
//
// RegisterCallback/UnregisterCallback implement the readiness-hint contract
// of spec §4.5: the callback is invoked at least once after a state change
// that may make progress possible, is never guaranteed synchronously with
// registration, and may be invoked spuriously or posthumously (after Close
// — see the package-level note below). Registering replaces any previously
// registered action; the zero action.Action is the implicit default.
//
// Close is idempotent from the caller's point of view — once a caller has
// called Close, it must never call it again on the same instance — but an
// implementation must not silently succeed on a genuine double Close,
// because the second call may race a posthumous callback still in flight.
// Implementations report a repeat Close with ErrClosed rather than
// panicking or corrupting state, the Go-idiomatic stand-in for the
// original's "undefined behaviour on double free".
//
// # Posthumous callbacks
//
// A stream's callback may still fire after the consumer has called Close.
// ByteStream implementations in this module that keep their own registered
// action stop running it once closed: QueueStream, NiceStream and
// Reservoir replace it with action.Noop in Close, and PacerStream's retry
// returns early when closed. Decoders and encoders that only forward
// registration to their source leave the source's registration as it is.
// Every wrapper that holds a reference to another stream's allocation
// behind a scheduled callback must tolerate that reference no longer being
// valid — see loop.Loop.Wound for the deferred-destruction primitive this
// pattern relies on.
type ByteStream interface {
	// Read reads up to len(buf) bytes into buf. See the type docstring for
	// the exact EOF/would-block/error contract.
	Read(buf []byte) (int, error)

	// Close releases the stream. Calling Close more than once on the same
	// instance returns ErrClosed.
	Close() error

	// RegisterCallback arms a (coalesced) readiness hint; see §4.5.
	RegisterCallback(a action.Action)

	// UnregisterCallback withdraws any previously registered callback.
	// Equivalent to RegisterCallback(action.Noop).
	UnregisterCallback()
}

// ByteStream2 extends ByteStream with the capabilities spec §3 assigns
// "ByteStream v2": a best-effort remaining-length query and the leftover
// protocol that lets a decoder hand back over-read bytes once it reaches
// its own logical EOF.
//
// Every ByteStream2 is trivially usable wherever a ByteStream is expected,
// because Go interface values carry their own dispatch table — there is no
// analogue needed here of the original C library's "v2's vtable is a
// layout-prefix of v1's vtable" trick; embedding already gives a zero-cost,
// compile-time-checked narrowing.
type ByteStream2 interface {
	ByteStream

	// Remaining reports the number of bytes the stream expects to yield
	// before EOF, if it can determine that without consuming input.
	// Streams that cannot report a length return (0, ErrUnsupported).
	Remaining() (int64, error)

	// LeftoverSize returns the number of bytes available via
	// LeftoverBytes. It is only meaningful after Read has returned
	// (0, io.EOF); its value before that point is not defined by this
	// interface.
	LeftoverSize() int

	// LeftoverBytes returns bytes the stream consumed from its underlying
	// source past its own logical EOF. The returned slice is valid only
	// until the next call to Read or Close and must be copied by the
	// caller if retained (it is frequently backed by the stream's own
	// internal buffer to avoid an allocation on the common case where
	// there is nothing left over).
	LeftoverBytes() []byte
}

// ensure io.EOF is always the sentinel used for clean stream exhaustion;
// referenced here so godoc links resolve and to make the dependency
// explicit for readers scanning imports.
var _ = io.EOF
