// Package nicestream implements NiceStream, a ByteStream wrapper that
// caps how many bytes it relays in a single read chain so a fast producer
// cannot monopolize the loop's dispatch of a single tick.
package nicestream

import (
	"github.com/solaris-labs/goasync/action"
	"github.com/solaris-labs/goasync/loop"
	"github.com/solaris-labs/goasync/stream"
)

var _ stream.ByteStream = (*NiceStream)(nil)

// NiceStream relays bytes from source until the current burst has reached
// maxBurst bytes. The Read that reaches or crosses maxBurst is not clamped,
// so a burst can exceed maxBurst by less than one Read's worth. Once a
// burst is exhausted, Read returns ErrWouldBlock and the loop is asked
// (via Execute) to resume the stream on its very next tick, rather than
// waiting for the underlying source to report readiness again — the
// source may well still have data ready; it is this wrapper, not the
// source, that is pausing.
type NiceStream struct {
	source   stream.ByteStream
	l        *loop.Loop
	maxBurst int
	relayed  int
	cb       action.Action
	yielding bool
	closed   bool
}

// New wraps source in a NiceStream that yields back to l after relaying
// maxBurst bytes in a single burst.
func New(l *loop.Loop, source stream.ByteStream, maxBurst int) *NiceStream {
	return &NiceStream{source: source, l: l, maxBurst: maxBurst, cb: action.Noop}
}

// Read implements stream.ByteStream.
func (n *NiceStream) Read(buf []byte) (int, error) {
	if n.closed {
		return 0, stream.ErrClosed
	}
	if n.yielding {
		return 0, stream.ErrWouldBlock
	}
	if n.relayed >= n.maxBurst {
		n.relayed = 0
		n.yielding = true
		n.l.Execute(action.New(n.resume))
		return 0, stream.ErrWouldBlock
	}
	c, err := n.source.Read(buf)
	if c > 0 {
		n.relayed += c
	}
	return c, err
}

func (n *NiceStream) resume() {
	if n.closed {
		return
	}
	n.yielding = false
	n.cb.Invoke()
}

// RegisterCallback implements stream.ByteStream. Source readiness is
// passed straight through to the registered callback except while a burst
// pause is pending — in that window, resume (run by the loop on its next
// tick) is what wakes the consumer, not a fresh readiness notification
// from source.
func (n *NiceStream) RegisterCallback(a action.Action) {
	n.cb = a
	n.source.RegisterCallback(action.New(n.onSourceReady))
}

func (n *NiceStream) onSourceReady() {
	if !n.yielding {
		n.cb.Invoke()
	}
}

// UnregisterCallback implements stream.ByteStream.
func (n *NiceStream) UnregisterCallback() {
	n.cb = action.Noop
	n.source.UnregisterCallback()
}

// Close releases the NiceStream and its underlying source.
func (n *NiceStream) Close() error {
	if n.closed {
		return stream.ErrClosed
	}
	n.closed = true
	n.cb = action.Noop
	return n.source.Close()
}
