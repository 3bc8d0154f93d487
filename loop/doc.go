// Package loop provides the single-threaded, edge-triggered scheduling
// kernel every stream and Yield in this module runs on: one-shot timers,
// coalescing events, and cross-platform file descriptor readiness
// notification, all driven from one goroutine per Loop.
//
// # Architecture
//
// A Loop owns three sources of work, drained in a fixed priority order
// each iteration of Run:
//
//  1. Due timers (TimerStart), ordered by (expiry, sequence number).
//  2. Immediately-runnable actions (Execute, fired Events), a plain FIFO.
//  3. I/O readiness, delivered by the platform poller (epoll on Linux,
//     kqueue on Darwin) via Register/RegisterLevel.
//
// Poll blocks in the platform poller only when there is no due timer and
// the immediate FIFO is empty; otherwise it returns without blocking so
// timers and immediate actions are serviced promptly. A Loop never
// services more than maxIOStarvation consecutive items from (1)+(2)
// without polling for I/O at least once, and never dispatches more than
// maxIOBurst ready descriptors from a single poll before yielding back to
// timers and actions — the same starvation guards in spirit as the
// pack's fast-path/I/O-path budget split, adapted to this kernel's
// simpler three-source model.
//
// # Thread model
//
// A Loop's scheduling methods (TimerStart, TimerCancel, Execute, Register,
// RegisterLevel, ModifyLevel, Unregister, Event, and the Event/Timer
// methods they return) must only be called from the loop's own run
// goroutine, including from within callbacks the loop itself invokes.
// This mirrors the original's single-threaded design note (spec §9). The
// exceptions are Loop.Wake, which any goroutine may call while a
// RunProtected call is in flight, and the lock passed to RunProtected:
// another goroutine holding it may call Loop methods while the loop
// goroutine is blocked in its poll step. Outside this package, the
// notification package's Notification type is signal-handler-safe and
// wakes a blocked Poll from any goroutine.
//
// # Deferred destruction
//
// Callbacks may reference stream or decoder state that is destroyed while
// a delivery for it is still enqueued (the posthumous-callback hazard).
// Wound defers release of such state to the end of the current Poll
// iteration, after every enqueued callback for this tick has run, so a
// callback never observes a half-destroyed receiver — see Loop.Wound.
package loop
