package queuestream

import (
	"io"

	"github.com/solaris-labs/goasync/action"
	"github.com/solaris-labs/goasync/stream"
)

// blobStream is the throwaway ByteStream EnqueueBytes/PushBytes wrap a
// copied blob in. It never blocks: all its bytes are already resident, so
// Read either returns data or io.EOF, never ErrWouldBlock.
type blobStream struct {
	data   []byte
	pos    int
	closed bool
}

func newBlobStream(blob []byte) *blobStream {
	data := make([]byte, len(blob))
	copy(data, blob)
	return &blobStream{data: data}
}

func (b *blobStream) Read(buf []byte) (int, error) {
	if b.closed {
		return 0, stream.ErrClosed
	}
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(buf, b.data[b.pos:])
	b.pos += n
	return n, nil
}

func (b *blobStream) Close() error {
	if b.closed {
		return stream.ErrClosed
	}
	b.closed = true
	return nil
}

func (*blobStream) RegisterCallback(action.Action) {}

func (*blobStream) UnregisterCallback() {}

var _ stream.ByteStream = (*blobStream)(nil)
