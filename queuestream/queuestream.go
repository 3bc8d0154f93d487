// Package queuestream implements QueueStream, a ByteStream that
// concatenates a FIFO sequence of enqueued ByteStreams into a single
// logical stream, plus a termination flag the producer sets once it has no
// more streams to enqueue.
//
// The queue itself is a plain doubly-linked list (container/list) rather
// than the pooled-chunk arrangement loop.actionQueue uses: timers and
// immediate actions churn at kernel-tick frequency and benefit from chunk
// reuse, but enqueued streams are comparatively rare, long-lived objects,
// so the extra bookkeeping a pool demands isn't worth it here.
package queuestream

import (
	"container/list"
	"errors"
	"io"
	"sync"

	"github.com/solaris-labs/goasync/action"
	"github.com/solaris-labs/goasync/loop"
	"github.com/solaris-labs/goasync/stream"
)

var _ stream.ByteStream = (*QueueStream)(nil)

// QueueStream concatenates ByteStreams enqueued via Enqueue/Push into a
// single ByteStream, read out in FIFO order.
//
// The zero value is not usable; construct one with New or NewRelaxed.
type QueueStream struct {
	l            *loop.Loop
	mu           sync.Mutex
	streams      *list.List // of stream.ByteStream
	terminated   bool
	consumerDone bool
	producerDone bool
	relaxed      bool
	latched      error
	cb           action.Action
	expectNotify bool
}

// New constructs a "tight" QueueStream bound to l: the consumer's Close
// alone releases it, regardless of producer state.
func New(l *loop.Loop) *QueueStream {
	return &QueueStream{l: l, streams: list.New()}
}

// NewRelaxed constructs a two-party QueueStream bound to l: the consumer
// calls Close and the producer calls Release. Close still closes every
// enqueued stream at once; Release only records that the producer is done,
// as reported by ProducerReleased. Use this when a producer
// goroutine (loop-owned, not a real cross-thread goroutine — see the
// concurrency model) may still want to enqueue streams concurrently with a
// consumer giving up early.
func NewRelaxed(l *loop.Loop) *QueueStream {
	return &QueueStream{l: l, streams: list.New(), relaxed: true}
}

// Enqueue appends s to the tail of the queue. If the consumer has already
// closed the queue, Enqueue instead closes s itself to avoid a leak.
func (q *QueueStream) Enqueue(s stream.ByteStream) {
	q.mu.Lock()
	if q.consumerDone {
		q.mu.Unlock()
		_ = s.Close()
		return
	}
	q.streams.PushBack(s)
	notify := q.expectNotify
	q.expectNotify = false
	q.mu.Unlock()
	if notify {
		q.fire()
	}
}

// Push prepends s to the head of the queue, so it is read before any
// stream already enqueued. Closes s instead if the consumer has already
// closed the queue.
func (q *QueueStream) Push(s stream.ByteStream) {
	q.mu.Lock()
	if q.consumerDone {
		q.mu.Unlock()
		_ = s.Close()
		return
	}
	q.streams.PushFront(s)
	notify := q.expectNotify
	q.expectNotify = false
	q.mu.Unlock()
	if notify {
		q.fire()
	}
}

// EnqueueBytes copies blob and enqueues it as a throwaway blob stream.
func (q *QueueStream) EnqueueBytes(blob []byte) {
	q.Enqueue(newBlobStream(blob))
}

// PushBytes copies blob and prepends it as a throwaway blob stream.
func (q *QueueStream) PushBytes(blob []byte) {
	q.Push(newBlobStream(blob))
}

// Terminate declares that no further streams will be enqueued. Once
// terminated, Read on an exhausted queue returns (0, io.EOF) instead of
// (0, stream.ErrWouldBlock).
func (q *QueueStream) Terminate() {
	q.mu.Lock()
	if q.terminated || q.consumerDone {
		q.mu.Unlock()
		return
	}
	q.terminated = true
	empty := q.streams.Len() == 0
	notify := q.expectNotify
	q.expectNotify = false
	q.mu.Unlock()
	if empty && notify {
		q.fire()
	}
}

// Closed reports whether the consumer has closed this queue.
func (q *QueueStream) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.consumerDone
}

// Read implements stream.ByteStream. It walks the FIFO: bytes are read
// from the current head; on head-EOF the head is closed and dequeued; on
// head-ErrWouldBlock, Read returns ErrWouldBlock and arms a notification
// for when the head (or a newly enqueued stream) becomes ready; on
// head-error the error is latched and returned on this and every
// subsequent call.
func (q *QueueStream) Read(buf []byte) (int, error) {
	q.mu.Lock()
	if q.consumerDone {
		q.mu.Unlock()
		return 0, stream.ErrClosed
	}
	if q.latched != nil {
		err := q.latched
		q.mu.Unlock()
		return 0, err
	}

	for {
		front := q.streams.Front()
		if front == nil {
			if q.terminated {
				q.mu.Unlock()
				return 0, io.EOF
			}
			q.expectNotify = true
			q.mu.Unlock()
			return 0, stream.ErrWouldBlock
		}

		head := front.Value.(stream.ByteStream)
		n, err := head.Read(buf)
		if n > 0 {
			q.mu.Unlock()
			return n, nil
		}
		switch {
		case errors.Is(err, io.EOF):
			q.streams.Remove(front)
			_ = head.Close()
			continue
		case errors.Is(err, stream.ErrWouldBlock):
			q.expectNotify = true
			head.RegisterCallback(action.New(q.onHeadReady))
			q.mu.Unlock()
			return 0, stream.ErrWouldBlock
		default:
			q.latched = err
			q.mu.Unlock()
			return 0, err
		}
	}
}

// onHeadReady is the callback registered on a head stream that returned
// ErrWouldBlock. It fires the queue's own callback at most once per arm —
// the expectNotify flag (set when Read returns ErrWouldBlock, cleared when
// a notification fires) is what keeps a burst of upstream spurious
// wake-ups from amplifying into a burst of QueueStream wake-ups.
func (q *QueueStream) onHeadReady() {
	q.mu.Lock()
	notify := q.expectNotify
	q.expectNotify = false
	q.mu.Unlock()
	if notify {
		q.fire()
	}
}

// fire posts the queue's callback via the loop rather than invoking it
// inline, so a state transition (Enqueue, Terminate, a head stream
// becoming ready) never runs user code in the same call that caused it
// (spec §3's rule for Queue/Deserializer/Pacer internal transitions).
func (q *QueueStream) fire() {
	q.l.Execute(action.New(func() {
		q.mu.Lock()
		cb := q.cb
		q.mu.Unlock()
		cb.Invoke()
	}))
}

// RegisterCallback implements stream.ByteStream.
func (q *QueueStream) RegisterCallback(a action.Action) {
	q.mu.Lock()
	q.cb = a
	q.mu.Unlock()
}

// UnregisterCallback implements stream.ByteStream.
func (q *QueueStream) UnregisterCallback() {
	q.RegisterCallback(action.Noop)
}

// Close implements stream.ByteStream: it closes the queue and drains
// (closes) every stream still enqueued, on tight and relaxed queues alike,
// whether or not Release has been called. After Close no further Read
// succeeds, and Enqueue/Push close the stream they are given.
func (q *QueueStream) Close() error {
	q.mu.Lock()
	if q.consumerDone {
		q.mu.Unlock()
		return stream.ErrClosed
	}
	q.consumerDone = true
	q.cb = action.Noop
	var pending []stream.ByteStream
	for e := q.streams.Front(); e != nil; e = e.Next() {
		pending = append(pending, e.Value.(stream.ByteStream))
	}
	q.streams.Init()
	q.mu.Unlock()
	for _, s := range pending {
		_ = s.Close()
	}
	return nil
}

// Release marks the producer side of a relaxed QueueStream as done: the
// producer will never call Enqueue/Push/Terminate again. It is a no-op on
// a tight (New-constructed) queue, whose single Close already covers both
// roles. Release does not change how Enqueue, Push or Terminate behave:
// only the consumer's Close makes Enqueue and Push close the passed stream
// instead of queuing it.
//
// Close already drains (closes) every stream enqueued so far regardless
// of Release, since Go's garbage collector — unlike the manual allocator
// the two-party protocol was designed against — needs no help reclaiming
// the QueueStream value itself. Release exists so a producer goroutine
// can still observe, via ProducerReleased, that it is safe to stop
// retrying Enqueue calls that were silently turned into closes.
func (q *QueueStream) Release() {
	if !q.relaxed {
		return
	}
	q.mu.Lock()
	q.producerDone = true
	q.mu.Unlock()
}

// ProducerReleased reports whether Release has been called. Only
// meaningful on a relaxed queue; always false on a tight one.
func (q *QueueStream) ProducerReleased() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.producerDone
}
