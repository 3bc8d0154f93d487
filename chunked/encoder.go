package chunked

import (
	"errors"
	"io"

	"github.com/solaris-labs/goasync/action"
	"github.com/solaris-labs/goasync/stream"
)

const (
	minChunkSize = 2
	maxChunkSize = 16 * 1024 * 1024
	// maxLengthLength reserves room for a CRLF-terminated (and, after the
	// first chunk, CRLF-prefixed) hex length line: 2 + up to 7 hex digits
	// (2^28 fits maxChunkSize comfortably) + 2.
	maxLengthLength = 2 + 7 + 2
)

const hexDigits = "0123456789abcdef"

// Termination selects how an Encoder signals the final, zero-length chunk.
type Termination int

const (
	// Simple terminates with "0\r\n\r\n": a bare final chunk, no trailer.
	Simple Termination = iota
	// StopAtTrailer terminates with "0\r\n", leaving room for the caller
	// to append its own trailer header lines followed by a final CRLF.
	StopAtTrailer
	// StopAtFinalExtensions terminates with a bare "0", leaving room for
	// the caller to append chunk extensions before the final CRLF CRLF.
	StopAtFinalExtensions
)

var _ stream.ByteStream = (*Encoder)(nil)

// Encoder reads source and re-emits it as HTTP chunked transfer encoding.
// The zero value is not usable; construct one with NewEncoder.
type Encoder struct {
	source      stream.ByteStream
	maxChunk    int
	termination Termination
	chunkbuf    []byte
	// next..eoc is the unread slice of chunkbuf: for every chunk after the
	// first, the CRLF ending the previous chunk's data, then the current
	// chunk's size line and its data (plus, for the final chunk, whatever
	// its Termination appends).
	next, eoc  int
	chunkCount int
	eofPending bool
	closed     bool
}

// NewEncoder constructs an Encoder that splits source into chunks no
// larger than maxChunkSz (clamped to [2, 16 MiB]) and terminates the
// encoding per termination.
func NewEncoder(source stream.ByteStream, maxChunkSz int, termination Termination) *Encoder {
	switch {
	case maxChunkSz > maxChunkSize:
		maxChunkSz = maxChunkSize
	case maxChunkSz < minChunkSize:
		maxChunkSz = minChunkSize
	}
	buf := make([]byte, maxChunkSz+maxLengthLength)
	// The CRLF ending every chunk's size line sits at a fixed offset, just
	// before the data region; write it once since every size line ends there.
	buf[maxLengthLength-2] = '\r'
	buf[maxLengthLength-1] = '\n'
	return &Encoder{
		source:      source,
		maxChunk:    maxChunkSz,
		termination: termination,
		chunkbuf:    buf,
	}
}

// fillNextChunk reads up to maxChunk bytes from source into the data
// region of chunkbuf, frames it with a hex length line (and, for every
// chunk after the first, a separating CRLF), and positions next/eoc over
// the bytes ready to be copied out.
func (e *Encoder) fillNextChunk() error {
	n, err := e.source.Read(e.chunkbuf[maxLengthLength:])
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if n == 0 {
		e.eofPending = true
		e.eoc = maxLengthLength
		switch e.termination {
		case Simple:
			e.chunkbuf[e.eoc] = '\r'
			e.chunkbuf[e.eoc+1] = '\n'
			e.eoc += 2
		case StopAtTrailer:
			// nothing further to append
		case StopAtFinalExtensions:
			e.eoc -= 2
		}
	} else {
		e.eoc = maxLengthLength + n
	}
	e.next = maxLengthLength - 2
	length := n
	for {
		e.next--
		e.chunkbuf[e.next] = hexDigits[length%16]
		length /= 16
		if length == 0 {
			break
		}
	}
	if e.chunkCount > 0 {
		e.next--
		e.chunkbuf[e.next] = '\n'
		e.next--
		e.chunkbuf[e.next] = '\r'
	}
	e.chunkCount++
	return nil
}

// Read implements stream.ByteStream.
func (e *Encoder) Read(buf []byte) (int, error) {
	if e.closed {
		return 0, stream.ErrClosed
	}
	if len(buf) == 0 {
		return 0, nil
	}
	if e.next >= e.eoc {
		if e.eofPending {
			return 0, io.EOF
		}
		if err := e.fillNextChunk(); err != nil {
			return 0, err
		}
	}
	want := len(buf)
	if want > e.eoc-e.next {
		want = e.eoc - e.next
	}
	copy(buf, e.chunkbuf[e.next:e.next+want])
	e.next += want
	return want, nil
}

// Close closes the Encoder and its underlying source.
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
