package loop

import (
	"sync/atomic"

	"github.com/solaris-labs/goasync/action"
)

// eventState is the four-state machine an Event moves through (spec §4.3).
type eventState uint64

const (
	eventIdle eventState = iota
	eventTriggered
	eventCanceled
	eventZombie
)

const eventStateBits = 2
const eventStateMask = 1<<eventStateBits - 1

// Event is a one-shot, coalescing trigger: a capability object a producer
// holds to ask the loop to run a callback "soon," where repeated triggers
// before the callback runs collapse into a single delivery.
//
// # State machine
//
//	IDLE --trigger--> TRIGGERED --dispatch--> IDLE
//	IDLE --trigger--> TRIGGERED --cancel--> CANCELED --dispatch--> IDLE
//	                                CANCELED --trigger--> TRIGGERED
//	(any) --destroy--> ZOMBIE --dispatch--> (freed)
//
// Triggering an already-TRIGGERED event is a no-op: the pending dispatch
// already covers it, which is the coalescing behavior the type exists to
// provide.
//
// Cancel moves a TRIGGERED event to CANCELED rather than back to IDLE, and
// re-triggering a CANCELED event enqueues a fresh dispatch rather than
// reusing the withdrawn one. The packed state word carries a generation
// counter alongside the four states for exactly this reason: each enqueued
// dispatch closure captures the generation current at the moment it was
// queued, and fire only invokes the action if that generation is still the
// event's current one. Without the generation check, a cancel immediately
// followed by a retrigger — with other queued work landing in between —
// would let the stale, pre-cancel dispatch invoke the action at its
// original (too-early) queue position instead of being suppressed in favor
// of the dispatch the retrigger enqueues later in the queue (see
// DESIGN.md). Destroy may be called from any state and moves the event to
// ZOMBIE; on a ZOMBIE event Trigger is a no-op, Cancel returns
// ErrEventZombie, and any
// dispatch already queued at the moment of destruction is suppressed when
// it would otherwise run (the posthumous-callback guarantee — see
// loop.Wound).
type Event struct {
	packed atomic.Uint64 // generation<<eventStateBits | eventState
	action action.Action
	loop   *Loop
}

// newEvent constructs an IDLE event bound to the given loop and action.
func newEvent(l *Loop, a action.Action) *Event {
	return &Event{loop: l, action: a}
}

func splitPacked(v uint64) (gen uint64, state eventState) {
	return v >> eventStateBits, eventState(v & eventStateMask)
}

func packState(gen uint64, state eventState) uint64 {
	return gen<<eventStateBits | uint64(state)
}

// Trigger moves the event IDLE->TRIGGERED, enqueuing a dispatch for the
// next loop iteration, or CANCELED->TRIGGERED, enqueuing a fresh dispatch
// that supersedes the one Cancel withdrew. Triggering an already-TRIGGERED
// event, or a ZOMBIE one, is a no-op. Trigger never runs the callback
// synchronously (universal invariant 7): it only ever enqueues, and only
// from IDLE or CANCELED.
func (e *Event) Trigger() {
	for {
		old := e.packed.Load()
		gen, state := splitPacked(old)
		switch state {
		case eventIdle, eventCanceled:
			next := gen + 1
			if e.packed.CompareAndSwap(old, packState(next, eventTriggered)) {
				e.loop.enqueueEvent(e, next)
				return
			}
		default:
			// already TRIGGERED (coalesced) or ZOMBIE: nothing to do.
			return
		}
	}
}

// Cancel withdraws a pending TRIGGERED delivery, moving the event to
// CANCELED. The dispatch already enqueued for the withdrawn delivery is
// left in the queue (fire drops it via the generation check once a
// retrigger bumps the generation, or via the CANCELED->IDLE transition if
// no retrigger ever happens) rather than removed from it. It returns
// ErrEventNotPending if the event was not TRIGGERED (it was IDLE, already
// CANCELED, already delivered, or ZOMBIE).
func (e *Event) Cancel() error {
	for {
		old := e.packed.Load()
		gen, state := splitPacked(old)
		switch state {
		case eventTriggered:
			if e.packed.CompareAndSwap(old, packState(gen, eventCanceled)) {
				return nil
			}
		case eventZombie:
			return ErrEventZombie
		default:
			return ErrEventNotPending
		}
	}
}

// Destroy permanently retires the event. It is safe to call at any time,
// including from within the event's own callback, and safe to call more
// than once. After Destroy, the event's callback will never run, even if
// a delivery was already enqueued — fire checks state immediately before
// invoking, not just at enqueue time.
func (e *Event) Destroy() {
	for {
		old := e.packed.Load()
		gen, _ := splitPacked(old)
		if e.packed.CompareAndSwap(old, packState(gen, eventZombie)) {
			e.action = action.Noop
			return
		}
	}
}

// fire is invoked by the loop when a previously-enqueued dispatch reaches
// the front of the queue. gen is the generation the dispatch was enqueued
// with: if the event's current generation has since moved on (a cancel
// followed by a retrigger enqueued a newer dispatch), this call is stale
// and is dropped without touching state, leaving the newer dispatch to
// deliver the action on its own turn. Otherwise a TRIGGERED event
// transitions to IDLE and runs the callback; a CANCELED event transitions
// to IDLE and drops the dispatch silently, since Cancel already withdrew
// it; a ZOMBIE event matches neither case and is left untouched, dropping
// the dispatch the same way.
func (e *Event) fire(gen uint64) {
	for {
		old := e.packed.Load()
		curGen, state := splitPacked(old)
		if curGen != gen {
			return
		}
		switch state {
		case eventTriggered:
			if e.packed.CompareAndSwap(old, packState(gen, eventIdle)) {
				e.action.Invoke()
				return
			}
		case eventCanceled:
			if e.packed.CompareAndSwap(old, packState(gen, eventIdle)) {
				return
			}
		default:
			return
		}
	}
}
