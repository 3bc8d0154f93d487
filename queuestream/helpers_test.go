package queuestream_test

import (
	"errors"
	"io"

	"github.com/solaris-labs/goasync/action"
	"github.com/solaris-labs/goasync/stream"
)

var assertErrBoom = errors.New("boom")

// trackedCloseStream is an already-exhausted stream that records whether
// Close was called on it.
type trackedCloseStream struct {
	closed bool
}

func newTrackedCloseStream() *trackedCloseStream { return &trackedCloseStream{} }

func (s *trackedCloseStream) Read([]byte) (int, error) { return 0, io.EOF }
func (s *trackedCloseStream) Close() error {
	s.closed = true
	return nil
}
func (*trackedCloseStream) RegisterCallback(action.Action) {}
func (*trackedCloseStream) UnregisterCallback()            {}

var _ stream.ByteStream = (*trackedCloseStream)(nil)

// errorStream always returns a fixed terminal error.
type errorStream struct {
	err error
}

func (s errorStream) Read([]byte) (int, error)     { return 0, s.err }
func (errorStream) Close() error                   { return nil }
func (errorStream) RegisterCallback(action.Action) {}
func (errorStream) UnregisterCallback()            {}

var _ stream.ByteStream = errorStream{}

// pendingStream starts in ErrWouldBlock state and transitions to yielding
// data once becomeReady is called, invoking whatever callback was most
// recently registered.
type pendingStream struct {
	data  []byte
	ready bool
	cb    action.Action
}

func newPendingStream() *pendingStream {
	return &pendingStream{cb: action.Noop}
}

func (p *pendingStream) Read(buf []byte) (int, error) {
	if !p.ready {
		return 0, stream.ErrWouldBlock
	}
	if len(p.data) == 0 {
		return 0, io.EOF
	}
	n := copy(buf, p.data)
	p.data = p.data[n:]
	return n, nil
}

func (p *pendingStream) Close() error { return nil }

func (p *pendingStream) RegisterCallback(a action.Action) { p.cb = a }

func (p *pendingStream) UnregisterCallback() { p.cb = action.Noop }

func (p *pendingStream) becomeReady(data []byte) {
	p.data = data
	p.ready = true
	p.cb.Invoke()
}

var _ stream.ByteStream = (*pendingStream)(nil)
