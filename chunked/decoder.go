// Package chunked implements a decoder and encoder for RFC 7230 chunked
// transfer encoding, each built as an explicit state machine over an
// internal read-ahead buffer, the same style the loop kernel's own state
// machines (Event, Timer) are built in.
package chunked

import (
	"errors"
	"io"

	"github.com/solaris-labs/goasync/action"
	"github.com/solaris-labs/goasync/stream"
)

// Mode selects where a Decoder stops and whether it adopts its source.
type Mode int

const (
	// DetachAtTrailer stops at the start of the trailer (present or not),
	// leaving the final CRLF in the source. Leftover bytes, if any, are
	// available via LeftoverBytes/LeftoverSize once Read returns io.EOF.
	DetachAtTrailer Mode = iota
	// DetachAfterTrailer skips the trailer and reads out the final CRLF.
	DetachAfterTrailer
	// AdoptInput skips the trailer, reads out the final CRLF, and verifies
	// the underlying source ends exactly where the chunked encoding does
	// (ErrProtocol otherwise). Close also closes the source.
	AdoptInput
	// DetachAtFinalExtensions stops at the end of the final 0-length
	// chunk's size line, leaving any final extensions in the source.
	DetachAtFinalExtensions
)

type decoderState int

const (
	stateReadingLength decoderState = iota
	stateReadingExtensions
	stateReadingChunkData
	stateReadingChunkTerminator
	stateReadingChunkTerminatorCR
	stateReadingTrailer
	stateReadingTrailerSkip
	stateReadingTrailerCR
	stateReadingExhaustedCheckEOF
	stateReadingExhausted
	stateReadingErrored
)

// maxChunkLength bounds chunk_length accumulation (spec §4.8 "Arithmetic");
// the accumulator is sized for the widest practical chunk length a 64-bit
// read count could ever need.
const maxChunkLength uint64 = 1<<64 - 1

var _ stream.ByteStream2 = (*Decoder)(nil)

// Decoder decodes a chunk-encoded source per Mode. The zero value is not
// usable; construct one with NewDecoder.
type Decoder struct {
	source      stream.ByteStream
	mode        Mode
	state       decoderState
	chunkLength uint64
	buf         [32]byte
	low, high   int
	closed      bool
}

// NewDecoder constructs a Decoder reading chunk-encoded data from source.
func NewDecoder(source stream.ByteStream, mode Mode) *Decoder {
	return &Decoder{source: source, mode: mode, state: stateReadingLength}
}

func hexDigitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}

// replenish refills the internal buffer from source. The buffer is only
// repositioned on a successful (possibly zero-length, EOF) read, mirroring
// the original's "amount >= 0" guard: an error or would-block leaves low/high
// untouched so a caller can retry the same state later without data loss.
// Source EOF is reported as a zero count with a nil error, which every
// caller treats as a truncated encoding (ErrProtocol).
func (d *Decoder) replenish() (int, error) {
	n, err := d.source.Read(d.buf[:])
	if err == nil || errors.Is(err, io.EOF) {
		d.low, d.high = 0, n
		return n, nil
	}
	return n, err
}

func (d *Decoder) fail() (int, error, bool) {
	d.state = stateReadingErrored
	return 0, stream.ErrProtocol, false
}

func (d *Decoder) readLength(buf []byte) (int, error, bool) {
	for {
		for d.low < d.high {
			digit := hexDigitValue(d.buf[d.low])
			if digit < 0 {
				if d.chunkLength == 0 && d.mode == DetachAtFinalExtensions {
					d.state = stateReadingExhausted
				} else {
					d.state = stateReadingExtensions
				}
				return 0, nil, true
			}
			if d.chunkLength > maxChunkLength/16 {
				return d.fail()
			}
			d.chunkLength *= 16
			if uint64(digit) > maxChunkLength-d.chunkLength {
				return d.fail()
			}
			d.chunkLength += uint64(digit)
			d.low++
		}
		n, err := d.replenish()
		if err != nil {
			return 0, err, false
		}
		if n == 0 {
			return d.fail()
		}
	}
}

func (d *Decoder) readExtensions(buf []byte) (int, error, bool) {
	for {
		for d.low < d.high {
			c := d.buf[d.low]
			d.low++
			if c == '\n' {
				switch {
				case d.chunkLength > 0:
					d.state = stateReadingChunkData
				case d.mode == DetachAtTrailer:
					d.state = stateReadingExhausted
				default:
					d.state = stateReadingTrailer
				}
				return 0, nil, true
			}
		}
		n, err := d.replenish()
		if err != nil {
			return 0, err, false
		}
		if n == 0 {
			return d.fail()
		}
	}
}

func (d *Decoder) readChunkData(buf []byte) (int, error, bool) {
	if d.chunkLength == 0 {
		d.state = stateReadingChunkTerminator
		return 0, nil, true
	}
	available := d.high - d.low
	if available == 0 {
		want := len(buf)
		if uint64(want) > d.chunkLength {
			want = int(d.chunkLength)
		}
		n, err := d.source.Read(buf[:want])
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err, false
		}
		if n == 0 {
			return d.fail()
		}
		d.chunkLength -= uint64(n)
		return n, nil, false
	}
	if uint64(available) > d.chunkLength {
		available = int(d.chunkLength)
	}
	if available > len(buf) {
		available = len(buf)
	}
	copy(buf, d.buf[d.low:d.low+available])
	d.low += available
	d.chunkLength -= uint64(available)
	return available, nil, false
}

func (d *Decoder) readChunkTerminator(buf []byte) (int, error, bool) {
	if d.low == d.high {
		n, err := d.replenish()
		if err != nil {
			return 0, err, false
		}
		if n == 0 {
			return d.fail()
		}
	}
	c := d.buf[d.low]
	d.low++
	switch c {
	case '\n':
		d.state = stateReadingLength
	case '\r':
		d.state = stateReadingChunkTerminatorCR
	default:
		return d.fail()
	}
	return 0, nil, true
}

func (d *Decoder) readChunkTerminatorCR(buf []byte) (int, error, bool) {
	if d.low == d.high {
		n, err := d.replenish()
		if err != nil {
			return 0, err, false
		}
		if n == 0 {
			return d.fail()
		}
	}
	c := d.buf[d.low]
	d.low++
	if c != '\n' {
		return d.fail()
	}
	d.state = stateReadingLength
	return 0, nil, true
}

func (d *Decoder) readTrailer(buf []byte) (int, error, bool) {
	if d.low == d.high {
		n, err := d.replenish()
		if err != nil {
			return 0, err, false
		}
		if n == 0 {
			return d.fail()
		}
	}
	c := d.buf[d.low]
	d.low++
	switch c {
	case '\n':
		if d.mode == AdoptInput {
			d.state = stateReadingExhaustedCheckEOF
		} else {
			d.state = stateReadingExhausted
		}
	case '\r':
		d.state = stateReadingTrailerCR
	default:
		d.state = stateReadingTrailerSkip
	}
	return 0, nil, true
}

func (d *Decoder) readTrailerSkip(buf []byte) (int, error, bool) {
	for {
		for d.low < d.high {
			c := d.buf[d.low]
			d.low++
			if c == '\n' {
				d.state = stateReadingTrailer
				return 0, nil, true
			}
		}
		n, err := d.replenish()
		if err != nil {
			return 0, err, false
		}
		if n == 0 {
			return d.fail()
		}
	}
}

func (d *Decoder) readTrailerCR(buf []byte) (int, error, bool) {
	if d.low == d.high {
		n, err := d.replenish()
		if err != nil {
			return 0, err, false
		}
		if n == 0 {
			return d.fail()
		}
	}
	c := d.buf[d.low]
	d.low++
	switch c {
	case '\n':
		if d.mode == AdoptInput {
			d.state = stateReadingExhaustedCheckEOF
		} else {
			d.state = stateReadingExhausted
		}
	default:
		d.state = stateReadingTrailerSkip
	}
	return 0, nil, true
}

func (d *Decoder) readExhaustedCheckEOF(buf []byte) (int, error, bool) {
	if d.LeftoverSize() > 0 {
		return d.fail()
	}
	var c [1]byte
	n, err := d.source.Read(c[:])
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err, false
	}
	if n > 0 {
		return d.fail()
	}
	d.state = stateReadingExhausted
	return 0, nil, true
}

// Read implements stream.ByteStream2.
func (d *Decoder) Read(buf []byte) (int, error) {
	for {
		switch d.state {
		case stateReadingExhausted:
			return 0, io.EOF
		case stateReadingErrored:
			return 0, stream.ErrProtocol
		}
		if len(buf) == 0 {
			return 0, nil
		}
		var n int
		var err error
		var cont bool
		switch d.state {
		case stateReadingLength:
			n, err, cont = d.readLength(buf)
		case stateReadingExtensions:
			n, err, cont = d.readExtensions(buf)
		case stateReadingChunkData:
			n, err, cont = d.readChunkData(buf)
		case stateReadingChunkTerminator:
			n, err, cont = d.readChunkTerminator(buf)
		case stateReadingChunkTerminatorCR:
			n, err, cont = d.readChunkTerminatorCR(buf)
		case stateReadingTrailer:
			n, err, cont = d.readTrailer(buf)
		case stateReadingTrailerSkip:
			n, err, cont = d.readTrailerSkip(buf)
		case stateReadingTrailerCR:
			n, err, cont = d.readTrailerCR(buf)
		case stateReadingExhaustedCheckEOF:
			n, err, cont = d.readExhaustedCheckEOF(buf)
		}
		if !cont {
			return n, err
		}
	}
}

// Close releases the Decoder. In AdoptInput mode it also closes the
// underlying source; the detaching modes leave the source open, so a
// caller wanting controlled synchronization must read the Decoder to EOF
// before closing it.
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

// RegisterCallback implements stream.ByteStream, forwarding registration
// straight to the underlying source.
func (d *Decoder) RegisterCallback(a action.Action) { d.source.RegisterCallback(a) }

// UnregisterCallback implements stream.ByteStream.
func (d *Decoder) UnregisterCallback() { d.source.UnregisterCallback() }

// Remaining implements stream.ByteStream2; a chunked decoder can never
// determine its total length in advance.
func (d *Decoder) Remaining() (int64, error) { return 0, stream.ErrUnsupported }

// LeftoverSize implements stream.ByteStream2.
func (d *Decoder) LeftoverSize() int { return d.high - d.low }

// LeftoverBytes implements stream.ByteStream2.
func (d *Decoder) LeftoverBytes() []byte { return d.buf[d.low:d.high] }
