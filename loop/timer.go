package loop

import (
	"container/heap"
	"time"

	"github.com/solaris-labs/goasync/action"
)

// Timer is a handle to a scheduled, one-shot callback. The zero value is
// not usable; obtain a Timer from Loop.TimerStart.
//
// A Timer that has already fired, or has been canceled, is simply no
// longer pending: calling TimerCancel on it again returns
// ErrTimerNotPending rather than corrupting loop state, deliberately
// trading the original's "undefined behaviour on double cancel" for a
// reportable no-op (see the canceled-timer Open Question resolution).
type Timer struct {
	seqno  uint64
	expiry time.Time
	action action.Action
	index  int // heap index, -1 when not in the heap
	fired  bool
	stack  []byte // non-nil only when timer diagnostics are enabled
}

// String implements fmt.Stringer. When timer diagnostics are enabled via
// WithTimerDiagnostics, it includes the call-site stack trace captured at
// TimerStart.
func (t *Timer) String() string {
	if t == nil {
		return "<nil timer>"
	}
	if len(t.stack) == 0 {
		return "timer(seq=" + itoa(t.seqno) + ")"
	}
	return "timer(seq=" + itoa(t.seqno) + ")\n" + string(t.stack)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// timerHeap orders Timers by (expiry, seqno) — spec §3's tie-break rule
// ensuring timers scheduled for the identical instant fire in the order
// they were started, matching a FIFO scheduler's intuitive behavior
// despite the heap offering no inherent stability.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if !h[i].expiry.Equal(h[j].expiry) {
		return h[i].expiry.Before(h[j].expiry)
	}
	return h[i].seqno < h[j].seqno
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

var _ heap.Interface = (*timerHeap)(nil)
