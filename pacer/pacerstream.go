package pacer

import (
	"time"

	"github.com/solaris-labs/goasync/action"
	"github.com/solaris-labs/goasync/loop"
	"github.com/solaris-labs/goasync/stream"
)

var _ stream.ByteStream = (*PacerStream)(nil)

// PacerStream rate-limits reads from an underlying source to byteRate
// bytes/second. It accrues a quota over time, capped at maxBurst; if the
// quota falls below minBurst, Read returns ErrWouldBlock and schedules a
// timer to retry once enough quota has accrued. Otherwise it clamps the
// requested count to the available quota and reads from source.
type PacerStream struct {
	l          *loop.Loop
	source     stream.ByteStream
	byteRate   float64
	minBurst   float64
	maxBurst   float64
	quota      float64
	prevT      time.Time
	cb         action.Action
	retryTimer *loop.Timer
	closed     bool
}

// NewStream constructs a PacerStream over source. A minBurst below 1 is
// raised to 1, matching the source library's own floor (a zero or
// negative minimum would otherwise allow Read to be retried indefinitely
// without ever accruing a meaningful quota).
func NewStream(l *loop.Loop, source stream.ByteStream, byteRate float64, minBurst, maxBurst int) *PacerStream {
	if minBurst < 1 {
		minBurst = 1
	}
	return &PacerStream{
		l:        l,
		source:   source,
		byteRate: byteRate,
		minBurst: float64(minBurst),
		maxBurst: float64(maxBurst),
		prevT:    l.Now(),
		cb:       action.Noop,
	}
}

// Reset zeroes the accrued quota and the accrual clock. Intended to be
// called once, immediately before the next Read, when the caller knows
// external conditions invalidate whatever quota had built up.
func (p *PacerStream) Reset() {
	p.quota = 0
	p.prevT = p.l.Now()
}

// Read implements stream.ByteStream.
func (p *PacerStream) Read(buf []byte) (int, error) {
	if p.closed {
		return 0, stream.ErrClosed
	}
	if p.retryTimer != nil {
		_ = p.l.TimerCancel(p.retryTimer)
		p.retryTimer = nil
	}
	now := p.l.Now()
	p.quota += now.Sub(p.prevT).Seconds() * p.byteRate
	if p.quota > p.maxBurst {
		p.quota = p.maxBurst
	}
	p.prevT = now

	if p.quota < p.minBurst {
		var delay time.Duration
		if p.byteRate > 0 {
			delay = time.Duration((p.minBurst - p.quota) / p.byteRate * float64(time.Second))
		}
		if delay < 0 {
			delay = 0
		}
		p.retryTimer = p.l.TimerStart(delay, action.New(p.retry))
		return 0, stream.ErrWouldBlock
	}

	count := len(buf)
	if float64(count) > p.quota {
		count = int(p.quota)
	}
	n, err := p.source.Read(buf[:count])
	if n > 0 {
		p.quota -= float64(n)
	}
	return n, err
}

func (p *PacerStream) retry() {
	if p.closed {
		return
	}
	p.retryTimer = nil
	p.cb.Invoke()
}

// RegisterCallback implements stream.ByteStream, passing registration
// straight through to the underlying source.
func (p *PacerStream) RegisterCallback(a action.Action) {
	p.cb = a
	p.source.RegisterCallback(a)
}

// UnregisterCallback implements stream.ByteStream.
func (p *PacerStream) UnregisterCallback() {
	p.cb = action.Noop
	p.source.UnregisterCallback()
}

// Close releases the PacerStream, its pending retry timer, and its
// underlying source.
func (p *PacerStream) Close() error {
	if p.closed {
		return stream.ErrClosed
	}
	p.closed = true
	if p.retryTimer != nil {
		_ = p.l.TimerCancel(p.retryTimer)
		p.retryTimer = nil
	}
	return p.source.Close()
}
