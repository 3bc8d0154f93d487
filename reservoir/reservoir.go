// Package reservoir implements Reservoir, a bounded buffer sitting in
// front of a ByteStream source: Fill pulls bytes from the source into an
// internal buffer up to a fixed capacity, and Read drains that buffer
// independently, so a consumer downstream never blocks on the source
// directly and a producer upstream never overflows unbounded memory.
package reservoir

import (
	"bytes"
	"errors"
	"io"

	"github.com/solaris-labs/goasync/action"
	"github.com/solaris-labs/goasync/stream"
)

var (
	_ stream.ByteStream  = (*Reservoir)(nil)
	_ stream.ByteStream2 = (*Reservoir)(nil)
)

// Reservoir buffers up to capacity bytes pulled from an underlying
// ByteStream source, and is itself a ByteStream: downstream reads drain
// the buffer, upstream Fill calls refill it.
//
// The internal buffer is a bytes.Buffer rather than a fixed ring: its
// automatic compaction on Read gives the bounded-capacity behavior this
// type needs for free, and nothing in the example pack offers a byte-slice
// ring buffer with a public API (go-catrate's ringBuffer[E] is a generic
// numeric ring used internally for rate-limiting timestamps, not an
// exported byte-buffering primitive).
type Reservoir struct {
	source     stream.ByteStream
	capacity   int
	buf        bytes.Buffer
	sourceEOF  bool
	latched    error
	cb         action.Action
	closed     bool
	leftover   []byte
	leftoverSz int
}

// New constructs a Reservoir over source with the given maximum buffered
// byte capacity.
func New(source stream.ByteStream, capacity int) *Reservoir {
	return &Reservoir{source: source, capacity: capacity}
}

// Fill pulls bytes from the source into the internal buffer until the
// source yields ErrWouldBlock or io.EOF, or the buffer's capacity is
// reached. Calling Fill when the buffer already has zero free capacity
// returns ErrNoSpace immediately without touching the source — the caller
// must Read first to make room.
func (r *Reservoir) Fill() error {
	if r.closed {
		return stream.ErrClosed
	}
	if r.latched != nil {
		return r.latched
	}
	for {
		free := r.capacity - r.buf.Len()
		if free <= 0 {
			if r.sourceEOF {
				return io.EOF
			}
			return stream.ErrNoSpace
		}
		scratch := make([]byte, free)
		n, err := r.source.Read(scratch)
		if n > 0 {
			r.buf.Write(scratch[:n])
		}
		if err == nil {
			continue
		}
		switch {
		case errors.Is(err, stream.ErrWouldBlock):
			return stream.ErrWouldBlock
		case errors.Is(err, io.EOF):
			r.sourceEOF = true
			if v2, ok := r.source.(stream.ByteStream2); ok {
				if n := v2.LeftoverSize(); n > 0 {
					r.leftover = append(r.leftover[:0], v2.LeftoverBytes()...)
					r.leftoverSz = n
				}
			}
			return io.EOF
		default:
			r.latched = err
			return err
		}
	}
}

// Read implements stream.ByteStream, draining the buffer filled by Fill.
// It never itself calls Read on the source; a caller that wants the
// reservoir kept topped up must call Fill (directly, or via a registered
// callback cascading from the source becoming ready — see RegisterCallback).
func (r *Reservoir) Read(buf []byte) (int, error) {
	if r.closed {
		return 0, stream.ErrClosed
	}
	if r.buf.Len() > 0 {
		return r.buf.Read(buf)
	}
	if r.latched != nil {
		return 0, r.latched
	}
	if r.sourceEOF {
		return 0, io.EOF
	}
	return 0, stream.ErrWouldBlock
}

// Remaining reports the number of bytes currently buffered and available
// to Read without a further Fill. It does not account for bytes the
// source has yet to yield.
func (r *Reservoir) Remaining() (int64, error) {
	return int64(r.buf.Len()), nil
}

// LeftoverSize and LeftoverBytes expose bytes the underlying source left
// over past its own logical EOF, captured the first time Fill observes
// source EOF, if the source is itself a ByteStream2.
func (r *Reservoir) LeftoverSize() int { return r.leftoverSz }

func (r *Reservoir) LeftoverBytes() []byte { return r.leftover }

// RegisterCallback arms a: the callback is invoked whenever the
// underlying source reports readiness, on the assumption the caller
// will respond by calling Fill and then Read again. Reservoir does not
// call Fill automatically — only the caller knows the right moment to
// reclaim buffer capacity.
func (r *Reservoir) RegisterCallback(a action.Action) {
	r.cb = a
	r.source.RegisterCallback(action.New(r.onSourceReady))
}

func (r *Reservoir) onSourceReady() {
	r.cb.Invoke()
}

// UnregisterCallback implements stream.ByteStream.
func (r *Reservoir) UnregisterCallback() {
	r.cb = action.Noop
	r.source.UnregisterCallback()
}

// Close releases the reservoir and its underlying source. Idempotent:
// a repeat call returns ErrClosed.
func (r *Reservoir) Close() error {
	if r.closed {
		return stream.ErrClosed
	}
	r.closed = true
	r.cb = action.Noop
	return r.source.Close()
}
