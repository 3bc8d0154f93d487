// Package naive implements single-byte terminator/escape framing: a
// decoder and encoder pair, and a framer that combines the decoder with
// the deserializer package to cut a stream of naive-framed messages into
// successive frames.
package naive

import (
	"errors"
	"io"

	"github.com/solaris-labs/goasync/action"
	"github.com/solaris-labs/goasync/stream"
)

// Mode selects whether a Decoder detaches from or adopts its source.
type Mode int

const (
	// Detach leaves the underlying source open once the frame
	// terminates; the decoder may have over-read past the terminator,
	// and those bytes are available via LeftoverBytes/LeftoverSize.
	Detach Mode = iota
	// AdoptInput verifies the underlying source also ends at the
	// terminator (ErrProtocol otherwise) and closes it on Close.
	AdoptInput
)

type decoderState int

const (
	decStateReading decoderState = iota
	decStateEscaped
	decStateTerminated
	decStateExhausted
	decStateError
)

var _ stream.ByteStream2 = (*Decoder)(nil)

// Decoder decodes a source framed as a run of payload/escaped bytes
// ended by a single terminator byte. The zero value is not usable;
// construct one with NewDecoder.
type Decoder struct {
	source             stream.ByteStream
	mode               Mode
	state              decoderState
	terminator, escape byte
	buf                [5000]byte
	low, high          int
	closed             bool
}

// NewDecoder constructs a Decoder. If escape equals terminator, escaping
// is disabled: the terminator check comes first, so a byte equal to both
// always ends the frame.
func NewDecoder(source stream.ByteStream, mode Mode, terminator, escape byte) *Decoder {
	return &Decoder{source: source, mode: mode, terminator: terminator, escape: escape}
}

func (d *Decoder) fail() (int, error) {
	d.state = decStateError
	return 0, stream.ErrProtocol
}

// Read implements stream.ByteStream2.
func (d *Decoder) Read(buf []byte) (int, error) {
	if d.closed {
		return 0, stream.ErrClosed
	}
	for {
		switch d.state {
		case decStateReading, decStateEscaped:
			if d.low >= d.high {
				more, err := d.source.Read(d.buf[:])
				if err != nil && !errors.Is(err, io.EOF) {
					return 0, err
				}
				if more == 0 {
					return d.fail()
				}
				d.low, d.high = 0, more
			}
			if len(buf) == 0 {
				return 0, nil
			}
			n := 0
			for n < len(buf) && d.low < d.high {
				b := d.buf[d.low]
				d.low++
				if d.state == decStateEscaped {
					d.state = decStateReading
				} else if b == d.terminator {
					d.state = decStateTerminated
					break
				} else if b == d.escape {
					d.state = decStateEscaped
					continue
				}
				buf[n] = b
				n++
			}
			if n == 0 && d.state != decStateReading {
				continue
			}
			return n, nil
		case decStateTerminated:
			if d.mode == Detach {
				return 0, io.EOF
			}
			if d.low < d.high {
				// Bytes already read past the terminator and sitting in
				// our own buffer are just as much trailing garbage as
				// anything still unread on the source.
				return d.fail()
			}
			var c [1]byte
			m, err := d.source.Read(c[:])
			if err != nil && !errors.Is(err, io.EOF) {
				return 0, err
			}
			if m == 0 {
				d.state = decStateExhausted
				return 0, io.EOF
			}
			return d.fail()
		case decStateExhausted:
			return 0, io.EOF
		default:
			return 0, stream.ErrProtocol
		}
	}
}

// Close implements stream.ByteStream. In AdoptInput mode it also closes
// the underlying source.
func (d *Decoder) Close() error {
	if d.closed {
		return stream.ErrClosed
	}
	d.closed = true
	if d.mode == AdoptInput {
		return d.source.Close()
	}
	return nil
}

// RegisterCallback implements stream.ByteStream.
func (d *Decoder) RegisterCallback(a action.Action) { d.source.RegisterCallback(a) }

// UnregisterCallback implements stream.ByteStream.
func (d *Decoder) UnregisterCallback() { d.source.UnregisterCallback() }

// Remaining implements stream.ByteStream2; a naive-framed length is
// unknown until the terminator is found.
func (d *Decoder) Remaining() (int64, error) { return 0, stream.ErrUnsupported }

// LeftoverSize implements stream.ByteStream2.
func (d *Decoder) LeftoverSize() int { return d.high - d.low }

// LeftoverBytes implements stream.ByteStream2.
func (d *Decoder) LeftoverBytes() []byte { return d.buf[d.low:d.high] }
