package stream

import "errors"

// Sentinel errors forming the library's error taxonomy (spec §7). Every
// stream, Yield and decoder in goasync reports failure using one of these
// (wrapped with additional context via fmt.Errorf's %w where useful), so
// callers can branch with errors.Is regardless of which component produced
// the error.
var (
	// ErrWouldBlock is the in-band "not ready, retry after the next
	// callback" signal (EAGAIN). It is never a terminal condition: a
	// consumer observing ErrWouldBlock must register a callback (if it
	// hasn't already) and retry later. It is returned with n == 0.
	ErrWouldBlock = errors.New("goasync/stream: would block")

	// ErrProtocol indicates the upstream source violated the wire format
	// the decoder expects (EPROTO). Terminal: once returned, a decoder
	// latches it and returns it again on every subsequent call.
	ErrProtocol = errors.New("goasync/stream: protocol violation")

	// ErrTooLarge indicates a frame or chunk length exceeded a configured
	// or structural limit (EMSGSIZE).
	ErrTooLarge = errors.New("goasync/stream: frame too large")

	// ErrNoSpace indicates a bounded buffer (the Reservoir) has no room
	// left for the requested write (ENOSPC).
	ErrNoSpace = errors.New("goasync/stream: no space available")

	// ErrUnsupported indicates a capability that does not apply to this
	// concrete stream (ENOTSUP), e.g. Remaining on a stream that cannot
	// report a length.
	ErrUnsupported = errors.New("goasync/stream: capability not supported")

	// ErrClosed is returned by operations attempted on a stream or Yield
	// that the caller has already closed.
	ErrClosed = errors.New("goasync/stream: already closed")
)
