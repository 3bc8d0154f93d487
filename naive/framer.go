package naive

import (
	"github.com/solaris-labs/goasync/deserializer"
	"github.com/solaris-labs/goasync/loop"
	"github.com/solaris-labs/goasync/stream"
)

// NewFramer cuts source into successive naive-framed messages, each
// frame's decoder detaching once its terminator is found so the framer
// can move on to the next message sharing the same underlying source.
func NewFramer(l *loop.Loop, source stream.ByteStream, terminator, escape byte) *deserializer.Deserializer {
	return deserializer.New(l, source, func(s stream.ByteStream) stream.ByteStream2 {
		return NewDecoder(s, Detach, terminator, escape)
	})
}
