package chunked

import (
	"github.com/solaris-labs/goasync/deserializer"
	"github.com/solaris-labs/goasync/loop"
	"github.com/solaris-labs/goasync/stream"
)

// NewFramer cuts source, a single HTTP chunked-encoded byte stream, into
// one frame per chunked message, each frame's decoder detaching after its
// trailer so the framer can move on to the next message sharing the same
// underlying source (e.g. back-to-back chunked bodies on one connection).
func NewFramer(l *loop.Loop, source stream.ByteStream) *deserializer.Deserializer {
	return deserializer.New(l, source, func(s stream.ByteStream) stream.ByteStream2 {
		return NewDecoder(s, DetachAfterTrailer)
	})
}
