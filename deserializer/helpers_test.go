package deserializer_test

import (
	"errors"
	"io"

	"github.com/solaris-labs/goasync/action"
	"github.com/solaris-labs/goasync/deserializer"
	"github.com/solaris-labs/goasync/stream"
)

// testSource is a minimal push-fed ByteStream for driving a Deserializer
// under test. Data preloaded via newTestSource is available immediately;
// push/terminate can be used to simulate asynchronous arrival mid-test.
type testSource struct {
	data       []byte
	terminated bool
	closed     bool
	cb         action.Action
}

func newTestSource(data []byte) *testSource {
	return &testSource{data: append([]byte(nil), data...), terminated: true, cb: action.Noop}
}

func (s *testSource) Read(buf []byte) (int, error) {
	if len(s.data) == 0 {
		if s.terminated {
			return 0, io.EOF
		}
		return 0, stream.ErrWouldBlock
	}
	n := copy(buf, s.data)
	s.data = s.data[n:]
	return n, nil
}

func (s *testSource) Close() error {
	if s.closed {
		return stream.ErrClosed
	}
	s.closed = true
	return nil
}

func (s *testSource) RegisterCallback(a action.Action) { s.cb = a }
func (s *testSource) UnregisterCallback()              { s.cb = action.Noop }

var _ stream.ByteStream = (*testSource)(nil)

// fixedFrameDecoder decodes exactly n bytes and then reports EOF, without
// ever overreading (LeftoverBytes is always empty).
type fixedFrameDecoder struct {
	source    stream.ByteStream
	remaining int
	closed    bool
}

func newFixedFrameDecoder(n int) deserializer.DecoderFactory {
	return func(source stream.ByteStream) stream.ByteStream2 {
		return &fixedFrameDecoder{source: source, remaining: n}
	}
}

func (d *fixedFrameDecoder) Read(buf []byte) (int, error) {
	if d.closed {
		return 0, stream.ErrClosed
	}
	if d.remaining <= 0 {
		return 0, io.EOF
	}
	want := len(buf)
	if want > d.remaining {
		want = d.remaining
	}
	n, err := d.source.Read(buf[:want])
	if n > 0 {
		d.remaining -= n
	}
	return n, err
}

func (d *fixedFrameDecoder) Close() error {
	if d.closed {
		return stream.ErrClosed
	}
	d.closed = true
	return nil
}

func (d *fixedFrameDecoder) RegisterCallback(a action.Action) { d.source.RegisterCallback(a) }
func (d *fixedFrameDecoder) UnregisterCallback()              { d.source.UnregisterCallback() }
func (d *fixedFrameDecoder) Remaining() (int64, error)        { return int64(d.remaining), nil }
func (d *fixedFrameDecoder) LeftoverSize() int                { return 0 }
func (d *fixedFrameDecoder) LeftoverBytes() []byte            { return nil }

var _ stream.ByteStream2 = (*fixedFrameDecoder)(nil)

// overreadDecoder fetches one whole chunk from source on its first Read,
// keeps the first frameLen bytes as its own frame and stashes the rest as
// leftover, simulating a decoder whose own framing consumed more of the
// source than its logical payload.
type overreadDecoder struct {
	source   stream.ByteStream
	frameLen int
	fetched  bool
	data     []byte
	leftover []byte
	closed   bool
}

func newOverreadDecoder(frameLen int) deserializer.DecoderFactory {
	return func(source stream.ByteStream) stream.ByteStream2 {
		return &overreadDecoder{source: source, frameLen: frameLen}
	}
}

// ensureFetched drains source until it would block or hits EOF, since a
// QueueStream source only returns what its current head segment has
// available per call rather than everything ready across every queued
// segment.
func (d *overreadDecoder) ensureFetched() error {
	if d.fetched {
		return nil
	}
	var fetched []byte
	tmp := make([]byte, 4096)
	for {
		n, err := d.source.Read(tmp)
		if n > 0 {
			fetched = append(fetched, tmp[:n]...)
		}
		if err == nil {
			if n == 0 {
				break
			}
			continue
		}
		if errors.Is(err, io.EOF) || errors.Is(err, stream.ErrWouldBlock) {
			break
		}
		return err
	}
	if len(fetched) == 0 {
		return stream.ErrWouldBlock
	}
	d.fetched = true
	if len(fetched) <= d.frameLen {
		d.data = fetched
	} else {
		d.data = fetched[:d.frameLen]
		d.leftover = append([]byte(nil), fetched[d.frameLen:]...)
	}
	return nil
}

func (d *overreadDecoder) Read(buf []byte) (int, error) {
	if d.closed {
		return 0, stream.ErrClosed
	}
	if err := d.ensureFetched(); err != nil {
		return 0, err
	}
	if len(d.data) == 0 {
		return 0, io.EOF
	}
	n := copy(buf, d.data)
	d.data = d.data[n:]
	return n, nil
}

func (d *overreadDecoder) Close() error {
	if d.closed {
		return stream.ErrClosed
	}
	d.closed = true
	return nil
}

func (d *overreadDecoder) RegisterCallback(a action.Action) { d.source.RegisterCallback(a) }
func (d *overreadDecoder) UnregisterCallback()              { d.source.UnregisterCallback() }
func (d *overreadDecoder) Remaining() (int64, error)        { return 0, stream.ErrUnsupported }
func (d *overreadDecoder) LeftoverSize() int                { return len(d.leftover) }
func (d *overreadDecoder) LeftoverBytes() []byte            { return d.leftover }

var _ stream.ByteStream2 = (*overreadDecoder)(nil)

func readAll(t interface{ Fatalf(string, ...any) }, r stream.ByteStream) []byte {
	var out []byte
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("unexpected error from readAll: %v", err)
			return out
		}
		if n == 0 {
			t.Fatalf("readAll stalled without EOF")
			return out
		}
	}
}
