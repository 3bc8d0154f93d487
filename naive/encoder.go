package naive

import (
	"errors"
	"io"

	"github.com/solaris-labs/goasync/action"
	"github.com/solaris-labs/goasync/stream"
)

type encoderState int

const (
	encStateReading encoderState = iota
	encStatePendingLiteral
	encStateExhausted
	encStateTerminated
	encStateError
)

var _ stream.ByteStream = (*Encoder)(nil)

// Encoder escapes a source byte stream so that it may be framed by a
// single terminator byte: any source byte equal to the terminator or the
// escape byte is preceded on the wire by the escape byte, and the whole
// stream ends with one unescaped terminator byte.
//
// If terminator equals escape, escaping is disabled: a source byte equal
// to that value cannot be represented and is a protocol error.
type Encoder struct {
	source             stream.ByteStream
	state              encoderState
	terminator, escape byte
	pending            byte
	buf                [2000]byte
	low, high          int
	closed             bool
}

// NewEncoder constructs an Encoder.
func NewEncoder(source stream.ByteStream, terminator, escape byte) *Encoder {
	return &Encoder{source: source, terminator: terminator, escape: escape}
}

// Read implements stream.ByteStream.
func (e *Encoder) Read(buf []byte) (int, error) {
	if e.closed {
		return 0, stream.ErrClosed
	}
	for {
		switch e.state {
		case encStatePendingLiteral:
			if len(buf) == 0 {
				return 0, nil
			}
			buf[0] = e.pending
			e.state = encStateReading
			return 1, nil
		case encStateReading:
			if e.low >= e.high {
				n, err := e.source.Read(e.buf[:])
				if err != nil && !errors.Is(err, io.EOF) {
					return 0, err
				}
				if n == 0 {
					e.state = encStateExhausted
					continue
				}
				e.low, e.high = 0, n
			}
			n := 0
			for n < len(buf) && e.low < e.high {
				b := e.buf[e.low]
				if b == e.terminator || b == e.escape {
					if e.terminator == e.escape {
						e.state = encStateError
						return 0, stream.ErrProtocol
					}
					e.low++
					buf[n] = e.escape
					n++
					// The byte being escaped is held back and delivered
					// literally as the very next output byte, even if
					// that spills into a later Read call, so the escape
					// marker on the wire is always immediately followed
					// by the real value rather than by whatever source
					// byte happens to come after it.
					e.pending = b
					e.state = encStatePendingLiteral
					return n, nil
				}
				e.low++
				buf[n] = b
				n++
			}
			return n, nil
		case encStateExhausted:
			if len(buf) == 0 {
				return 0, nil
			}
			buf[0] = e.terminator
			e.state = encStateTerminated
			return 1, nil
		case encStateTerminated:
			return 0, io.EOF
		default:
			return 0, stream.ErrProtocol
		}
	}
}

// Close implements stream.ByteStream.
func (e *Encoder) Close() error {
	if e.closed {
		return stream.ErrClosed
	}
	e.closed = true
	return e.source.Close()
}

// RegisterCallback implements stream.ByteStream.
func (e *Encoder) RegisterCallback(a action.Action) { e.source.RegisterCallback(a) }

// UnregisterCallback implements stream.ByteStream.
func (e *Encoder) UnregisterCallback() { e.source.UnregisterCallback() }
