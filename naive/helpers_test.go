package naive_test

import (
	"errors"
	"io"

	"github.com/solaris-labs/goasync/action"
	"github.com/solaris-labs/goasync/stream"
)

// byteSource is a minimal ByteStream over a fixed byte slice: it never
// blocks, delivering everything immediately and then io.EOF forever.
type byteSource struct {
	data   []byte
	closed bool
}

func newByteSource(s string) *byteSource { return &byteSource{data: []byte(s)} }

func (s *byteSource) Read(buf []byte) (int, error) {
	if len(s.data) == 0 {
		return 0, io.EOF
	}
	n := copy(buf, s.data)
	s.data = s.data[n:]
	return n, nil
}

func (s *byteSource) Close() error {
	if s.closed {
		return stream.ErrClosed
	}
	s.closed = true
	return nil
}

func (s *byteSource) RegisterCallback(action.Action) {}
func (s *byteSource) UnregisterCallback()            {}

var _ stream.ByteStream = (*byteSource)(nil)

func readAll(r stream.ByteStream) ([]byte, error) {
	var out []byte
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if n == 0 {
			return out, nil
		}
	}
}
