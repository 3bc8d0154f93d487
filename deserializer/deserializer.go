// Package deserializer implements Deserializer, a Yield of sub-streams cut
// out of a single underlying ByteStream by a user-supplied decoder factory.
// Each sub-stream it hands out must be read to completion (or explicitly
// skipped) before the next one becomes available; bytes a decoder
// over-reads past its own logical end are pushed back atomically onto the
// underlying source, via an internal queuestream.QueueStream, so the next
// frame never loses data to the previous one's read-ahead.
package deserializer

import (
	"errors"
	"io"

	"github.com/solaris-labs/goasync/action"
	"github.com/solaris-labs/goasync/loop"
	"github.com/solaris-labs/goasync/queuestream"
	"github.com/solaris-labs/goasync/stream"
)

// DecoderFactory produces the ByteStream2 for the next frame, given a
// source positioned at that frame's first byte. The returned decoder owns
// reads against source until it reaches its own logical EOF.
type DecoderFactory func(source stream.ByteStream) stream.ByteStream2

type state int

const (
	stateCleanBreak state = iota
	stateReadingFrame
	stateSkippingFrame
	stateAfterFrame
	stateEOF
	stateClosed
)

var _ stream.Yield[stream.ByteStream] = (*Deserializer)(nil)

// Deserializer adapts source into a Yield of sub-streams, each produced by
// factory. The zero value is not usable; construct one with New.
type Deserializer struct {
	l        *loop.Loop
	state    state
	factory  DecoderFactory
	callback action.Action
	source   *queuestream.QueueStream
	decoder  stream.ByteStream2
	frame    *frame
}

// New constructs a Deserializer reading frames out of source, each decoded
// by factory.
func New(l *loop.Loop, source stream.ByteStream, factory DecoderFactory) *Deserializer {
	d := &Deserializer{
		l:        l,
		state:    stateCleanBreak,
		factory:  factory,
		callback: action.Noop,
		source:   queuestream.New(l),
	}
	d.frame = &frame{d: d}
	d.source.Enqueue(source)
	d.source.Terminate()
	d.source.RegisterCallback(action.New(d.probe))
	return d
}

// probe fires when the internal source becomes ready while no frame is
// outstanding (CLEAN_BREAK) or while a closed frame is being drained
// (SKIPPING_FRAME); it is a spurious wake-up in every other state, since
// the current frame's decoder (not the source) owns readiness then.
func (d *Deserializer) probe() {
	switch d.state {
	case stateCleanBreak, stateSkippingFrame:
		d.callback.Invoke()
	}
}

// concludeFrame pushes a finished decoder's leftover bytes back onto the
// internal source, closes the decoder, and returns to CLEAN_BREAK.
func (d *Deserializer) concludeFrame() {
	if d.decoder != nil {
		if leftover := d.decoder.LeftoverBytes(); len(leftover) > 0 {
			d.source.PushBytes(leftover)
		}
		_ = d.decoder.Close()
		d.decoder = nil
	}
	d.source.RegisterCallback(action.New(d.probe))
	d.state = stateCleanBreak
}

func (d *Deserializer) receiveAtCleanBreak() (stream.ByteStream, error) {
	var peek [1]byte
	n, err := d.source.Read(peek[:])
	if errors.Is(err, io.EOF) {
		d.state = stateEOF
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	d.source.PushBytes(peek[:n])
	d.decoder = d.factory(d.source)
	d.source.UnregisterCallback()
	d.state = stateReadingFrame
	return d.frame, nil
}

func (d *Deserializer) receiveSkippingFrame() (stream.ByteStream, error) {
	var buf [2000]byte
	n, err := d.decoder.Read(buf[:])
	if errors.Is(err, io.EOF) {
		d.concludeFrame()
		return d.receive()
	}
	if err != nil {
		return nil, err
	}
	if n > 0 {
		d.l.Execute(d.callback)
	}
	return nil, stream.ErrWouldBlock
}

func (d *Deserializer) receive() (stream.ByteStream, error) {
	switch d.state {
	case stateCleanBreak:
		return d.receiveAtCleanBreak()
	case stateReadingFrame, stateAfterFrame:
		return nil, stream.ErrWouldBlock
	case stateSkippingFrame:
		return d.receiveSkippingFrame()
	case stateEOF:
		return nil, io.EOF
	default:
		return nil, stream.ErrClosed
	}
}

// Receive implements stream.Yield[stream.ByteStream]. It returns the same
// frame object for as long as the caller keeps it open; a second Receive
// without closing the current frame returns ErrWouldBlock.
func (d *Deserializer) Receive() (stream.ByteStream, error) {
	return d.receive()
}

// Close releases the Deserializer, its internal source, and the current
// frame if one is outstanding.
func (d *Deserializer) Close() error {
	switch d.state {
	case stateCleanBreak, stateEOF:
	case stateReadingFrame, stateSkippingFrame, stateAfterFrame:
		_ = d.decoder.Close()
	default:
		return stream.ErrClosed
	}
	_ = d.source.Close()
	d.callback = action.Noop
	d.state = stateClosed
	return nil
}

// RegisterCallback arms the readiness hint for Receive.
func (d *Deserializer) RegisterCallback(a action.Action) {
	d.callback = a
}

// UnregisterCallback withdraws any previously registered callback.
func (d *Deserializer) UnregisterCallback() {
	d.callback = action.Noop
}

// frame is the ByteStream handed out by Receive while READING_FRAME or
// SKIPPING_FRAME. It exists only because Go, unlike the C library's
// obj+vtable pairs, cannot bind two different method sets to the same
// receiver type; it forwards every call back onto the owning Deserializer.
type frame struct{ d *Deserializer }

var _ stream.ByteStream = (*frame)(nil)

func (f *frame) Read(buf []byte) (int, error) {
	d := f.d
	switch d.state {
	case stateReadingFrame:
		if len(buf) == 0 {
			return 0, nil
		}
		n, err := d.decoder.Read(buf)
		if errors.Is(err, io.EOF) {
			d.state = stateAfterFrame
			return n, io.EOF
		}
		return n, err
	case stateAfterFrame:
		return 0, io.EOF
	default:
		return 0, stream.ErrClosed
	}
}

func (f *frame) Close() error {
	d := f.d
	switch d.state {
	case stateReadingFrame:
		d.decoder.RegisterCallback(action.New(d.probe))
		d.state = stateSkippingFrame
		return nil
	case stateAfterFrame:
		d.concludeFrame()
		return nil
	default:
		return stream.ErrClosed
	}
}

func (f *frame) RegisterCallback(a action.Action) {
	if f.d.state == stateReadingFrame {
		f.d.decoder.RegisterCallback(a)
	}
}

func (f *frame) UnregisterCallback() {
	if f.d.state == stateReadingFrame {
		f.d.decoder.UnregisterCallback()
	}
}
