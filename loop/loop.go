package loop

import (
	"container/heap"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	goaction "github.com/solaris-labs/goasync/action"
)

// captureStack captures the caller's stack trace for timer diagnostics.
func captureStack() []byte {
	return debug.Stack()
}

// Default starvation/burst caps (see package doc). These are generous
// enough that a single tick of timer/action work never meaningfully stalls
// I/O, while still bounding worst-case latency under an adversarial
// backlog.
const (
	maxIOStarvation = 20
	maxIOBurst      = 20
)

var (
	// ErrAlreadyRunning is returned by Run/RunProtected when called on a
	// Loop that is already running (including reentrantly, from within a
	// callback the loop itself is currently invoking).
	ErrAlreadyRunning = errors.New("goasync/loop: already running")
)

// Loop is the single-threaded scheduling kernel: see the package doc for
// the execution model. Every exported method except Close and Wake must be
// called from the loop's own run goroutine (the one inside
// Run/RunProtected/Poll), or, while RunProtected is blocked in its poll
// step, from another goroutine holding the lock passed to RunProtected.
type Loop struct {
	state *fastState
	opts  *loopOptions

	timers   timerHeap
	timerSeq uint64

	immediate actionQueue

	poller fastPoller

	// wound holds callbacks deferred until the current Poll iteration has
	// finished dispatching every due timer, immediate action and I/O
	// callback — the mechanism behind posthumous-callback safety (see
	// stream.ByteStream's doc comment).
	wound  []func()
	inTick bool

	quit      bool
	protected bool
	now       time.Time

	// protectedLock is the caller-supplied lock RunProtected releases
	// around the blocking poll step and reacquires before dispatch, set
	// for the duration of a RunProtected call and nil otherwise (including
	// during Run/Flush/Poll, and during a RunProtected call that was
	// started with a nil lock).
	protectedLock sync.Locker
	// wakeWriteFD is the write end of the wake-up device RunProtected
	// allocates on entry and drops on exit (-1 when no RunProtected call
	// is in flight), read by Wake from any goroutine.
	wakeWriteFD atomic.Int32
}

// New constructs a Loop. The returned Loop owns a platform poller (epoll
// or kqueue) that must be released with Close once the loop is no longer
// needed.
func New(opts ...Option) (*Loop, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		state: newFastState(),
		opts:  cfg,
		now:   time.Now(),
	}
	l.wakeWriteFD.Store(-1)
	if err := l.poller.init(); err != nil {
		return nil, err
	}
	l.poller.setBurstCap(cfg.ioBurstCap)
	return l, nil
}

// Now returns the Loop's cached notion of the current time, refreshed
// once per Poll iteration. Callbacks observe a single consistent instant
// for the whole tick rather than a slightly different value per call,
// matching how the timer heap itself reasons about "due".
func (l *Loop) Now() time.Time {
	return l.now
}

// Close releases the platform poller and drops any unprocessed immediate
// actions and timers. It is idempotent.
func (l *Loop) Close() error {
	if l.state.IsTerminal() {
		return nil
	}
	l.state.Store(stateTerminated)
	for {
		if _, ok := l.immediate.pop(); !ok {
			break
		}
	}
	l.timers = nil
	return l.poller.close()
}

// TimerStart schedules a to run once after delay has elapsed, measured
// from Loop.Now() at the moment TimerStart is called. A zero or negative
// delay schedules the action onto the immediate FIFO instead of the
// heap — it will run on the next tick, in the order it was started
// relative to other immediate actions and zero-delay timers, per spec
// §3's "separate immediate FIFO" design.
func (l *Loop) TimerStart(delay time.Duration, a goaction.Action) *Timer {
	l.timerSeq++
	seq := l.timerSeq

	if delay <= 0 {
		t := &Timer{seqno: seq, expiry: l.now, action: a, index: -1}
		l.captureDiagnostics(t)
		l.immediate.push(queuedAction{fn: func() { l.fireTimer(t) }})
		return t
	}

	t := &Timer{seqno: seq, expiry: l.now.Add(delay), action: a, index: -1}
	l.captureDiagnostics(t)
	heap.Push(&l.timers, t)
	return t
}

func (l *Loop) captureDiagnostics(t *Timer) {
	if !l.opts.timerDiagnostics {
		return
	}
	t.stack = captureStack()
}

// TimerCancel withdraws t. It returns ErrTimerNotPending if t has already
// fired or was already canceled — canceling a timer more than once, or
// after it fires, is defined (a harmless no-op reporting nothing
// happened) rather than undefined behavior.
func (l *Loop) TimerCancel(t *Timer) error {
	if t.fired {
		return ErrTimerNotPending
	}
	// A zero-delay timer sits on the immediate FIFO, not the heap; marking
	// it fired is enough for fireTimer to skip it.
	if t.index >= 0 {
		heap.Remove(&l.timers, t.index)
	}
	t.fired = true
	return nil
}

func (l *Loop) fireTimer(t *Timer) {
	if t.fired {
		return
	}
	t.fired = true
	t.index = -1
	t.action.Invoke()
}

// Execute posts a to run on the next tick, after any timers already due
// this tick but before the loop polls for I/O. It is the direct
// counterpart of a zero-delay TimerStart.
func (l *Loop) Execute(a goaction.Action) {
	l.immediate.push(queuedAction{fn: a.Invoke})
}

// Event creates a new Event bound to this loop, initially IDLE, whose
// callback is a.
func (l *Loop) Event(a goaction.Action) *Event {
	return newEvent(l, a)
}

func (l *Loop) enqueueEvent(e *Event, gen uint64) {
	l.immediate.push(queuedAction{fn: func() { e.fire(gen) }})
}

// Register arms fd for edge-triggered readiness notification: cb fires at
// most once per readiness transition. See the package doc for the
// edge-vs-level distinction.
func (l *Loop) Register(fd int, events IOEvents, cb IOCallback) error {
	return l.poller.register(fd, events, false, l.wrapIOCallback(cb))
}

// RegisterLevel arms fd for level-triggered notification: cb fires on
// every poll iteration for as long as the condition holds.
func (l *Loop) RegisterLevel(fd int, events IOEvents, cb IOCallback) error {
	return l.poller.register(fd, events, true, l.wrapIOCallback(cb))
}

// ModifyLevel changes the monitored event set of an existing
// level-triggered registration.
func (l *Loop) ModifyLevel(fd int, events IOEvents) error {
	return l.poller.modify(fd, events)
}

// Unregister removes fd's registration, level- or edge-triggered.
func (l *Loop) Unregister(fd int) error {
	return l.poller.unregister(fd)
}

func (l *Loop) wrapIOCallback(cb IOCallback) IOCallback {
	return func(events IOEvents) {
		if l.protected {
			defer l.logPanic()
		}
		// pollIO dispatches while tick has released protectedLock, so the
		// callback itself reacquires it.
		if mu := l.protectedLock; mu != nil {
			mu.Lock()
			defer mu.Unlock()
		}
		cb(events)
	}
}

// Wound schedules fn to run once, after every timer, immediate action and
// I/O callback for the current tick has been dispatched. It exists so a
// stream or decoder can release state referenced by an in-flight callback
// without that callback observing a half-destroyed receiver — queue the
// actual teardown via Wound instead of doing it inline inside Close.
//
// Calling Wound outside of a tick (e.g. before the first Poll) runs fn
// immediately, since there is no in-flight dispatch to defer past.
func (l *Loop) Wound(fn func()) {
	if !l.inTick {
		fn()
		return
	}
	l.wound = append(l.wound, fn)
}

func (l *Loop) drainWound() {
	if len(l.wound) == 0 {
		return
	}
	pending := l.wound
	l.wound = nil
	for _, fn := range pending {
		fn()
	}
}

// QuitLoop requests Run/RunProtected return after the current tick
// finishes. It is only meaningful called from the loop goroutine.
func (l *Loop) QuitLoop() {
	l.quit = true
}

// Flush runs one tick with a zero poll timeout: the timers and immediate
// actions that are ready right now (at most the I/O starvation cap of them,
// as in any tick), plus a single non-blocking poll for I/O, without
// blocking for more work to arrive. It is intended for pumping the loop synchronously, e.g. in
// tests that don't want to hand control to Run.
func (l *Loop) Flush() error {
	return l.tick(0)
}

// Poll runs one tick: dispatches due timers and immediate actions (at most
// the I/O starvation cap of them in total, maxIOStarvation by default,
// before forcing an I/O poll), then blocks
// in the platform poller for at most timeout (a negative timeout blocks
// until the next timer is due, or indefinitely if there is none).
func (l *Loop) Poll(timeout time.Duration) error {
	return l.tick(timeout)
}

func (l *Loop) tick(timeout time.Duration) error {
	l.now = time.Now()
	l.inTick = true
	defer func() {
		l.inTick = false
		l.drainWound()
	}()

	serviced := 0
	for serviced < l.opts.ioStarvationCap {
		if len(l.timers) > 0 && !l.timers[0].expiry.After(l.now) {
			t := heap.Pop(&l.timers).(*Timer)
			l.fireTimer(t)
			serviced++
			continue
		}
		if a, ok := l.immediate.pop(); ok {
			a.fn()
			serviced++
			continue
		}
		break
	}

	pollTimeout := l.computePollTimeout(timeout)
	// Release the caller's lock around the blocking step only: a
	// RunProtected call holds protectedLock for its whole body, but other
	// threads must only be able to touch loop state while this goroutine
	// is actually blocked waiting for I/O, not while it's dispatching.
	if l.protectedLock != nil {
		l.protectedLock.Unlock()
	}
	_, err := l.poller.pollIO(pollTimeout)
	if l.protectedLock != nil {
		l.protectedLock.Lock()
	}
	return err
}

func (l *Loop) computePollTimeout(requested time.Duration) int {
	// A pending QuitLoop must not park the loop in the poller: Run and
	// RunProtected only check it once the tick returns.
	if l.immediate.Len() > 0 || l.quit {
		return 0
	}

	effective := requested
	if len(l.timers) > 0 {
		untilNext := l.timers[0].expiry.Sub(l.now)
		if untilNext < 0 {
			untilNext = 0
		}
		if requested < 0 || untilNext < effective {
			effective = untilNext
		}
	} else if requested < 0 {
		return -1
	}

	ms := int(effective / time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	return ms
}

// Run drives the loop until QuitLoop is called. Panics inside callbacks
// propagate out of Run (and typically crash the process), matching the
// original's lack of a built-in recovery mechanism; use RunProtected for
// a loop that survives a misbehaving callback.
func (l *Loop) Run() error {
	if !l.state.TryTransition(stateAwake, stateRunning) {
		return ErrAlreadyRunning
	}
	for !l.quit {
		if err := l.tick(-1); err != nil {
			return err
		}
	}
	l.quit = false
	l.state.Store(stateAwake)
	return nil
}

// RunProtected behaves like Run, except a panic inside any timer,
// immediate action or I/O callback is recovered, logged (if a logger is
// configured), and the loop continues rather than unwinding.
//
// If mu is non-nil, RunProtected locks it before entering the loop body and
// unlocks it before returning, and releases it around each tick's blocking
// poll step and reacquires it immediately before dispatching whatever that
// poll woke up for. That window is the one legitimate opportunity for
// another goroutine to call arbitrary Loop APIs: it must hold mu itself
// while doing so, exactly as this loop goroutine does for every tick
// outside the blocking step. RunProtected also allocates a wake-up device
// on entry and drops it on exit; call Wake after mutating loop state under
// mu so the loop notices without waiting out its full poll timeout.
func (l *Loop) RunProtected(mu sync.Locker) error {
	if !l.state.TryTransition(stateAwake, stateRunning) {
		return ErrAlreadyRunning
	}
	l.protected = true
	defer func() { l.protected = false }()

	readFD, writeFD, err := createWakeFd()
	if err != nil {
		l.state.Store(stateAwake)
		return err
	}
	if err := l.Register(readFD, EventRead, func(IOEvents) { drainWakeFd(readFD) }); err != nil {
		_ = closeWakeFd(readFD, writeFD)
		l.state.Store(stateAwake)
		return err
	}
	l.wakeWriteFD.Store(int32(writeFD))
	defer func() {
		l.wakeWriteFD.Store(-1)
		_ = l.Unregister(readFD)
		_ = closeWakeFd(readFD, writeFD)
	}()

	if mu != nil {
		mu.Lock()
		l.protectedLock = mu
		defer func() {
			l.protectedLock = nil
			mu.Unlock()
		}()
	}

	for !l.quit {
		l.runProtectedTick()
	}
	l.quit = false
	l.state.Store(stateAwake)
	return nil
}

func (l *Loop) runProtectedTick() {
	defer l.logPanic()
	_ = l.tick(-1)
}

// Wake interrupts a RunProtected call currently blocked in its poll step,
// from any goroutine. Intended to be called right after mutating loop
// state under the lock passed to RunProtected, so the loop goroutine picks
// up the change promptly instead of waiting out its full poll timeout. A
// no-op, returning ErrClosed, when no RunProtected call is in flight.
func (l *Loop) Wake() error {
	fd := l.wakeWriteFD.Load()
	if fd < 0 {
		return ErrClosed
	}
	return signalWakeFd(int(fd))
}

func (l *Loop) logPanic() {
	r := recover()
	if r == nil {
		return
	}
	err := recoverToError(r)
	if l.opts.logger != nil {
		l.opts.logger.Err().Err(err).Log("recovered panic in loop callback")
	}
}
