// This file documents the platform I/O polling split; the implementations
// live in poller_linux.go (epoll) and poller_darwin.go (kqueue).
//
// # Edge- vs level-triggered registration
//
// Register arms a file descriptor in edge-triggered mode: a single
// readiness callback fires per transition, and the caller is responsible
// for driving the fd (e.g. via a ByteStream's Read) until it observes
// ErrWouldBlock before expecting another callback. RegisterLevel arms
// level-triggered mode instead, where the callback keeps firing on every
// poll iteration for as long as the condition holds; ModifyLevel changes
// the monitored event set of a level-triggered registration without a
// full Unregister/RegisterLevel round trip.
//
// Edge-triggered is the default and the right choice for the library's own
// stream implementations, which always drain to ErrWouldBlock. Level-
// triggered exists for integrating foreign descriptors (e.g. a listening
// socket accept loop) where driving to exhaustion on every wakeup isn't
// the natural shape.
package loop

// IOEvents is a bitmask of the I/O readiness conditions a registration can
// request or report.
type IOEvents uint32

const (
	// EventRead indicates the file descriptor is ready for reading, or
	// (depending on platform) that a peer shutdown is pending.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition was reported for the fd.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

// IOCallback receives the set of events that became ready.
type IOCallback func(IOEvents)
