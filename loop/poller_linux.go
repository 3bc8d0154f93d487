//go:build linux

package loop

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// maxFDs bounds the direct-indexed fd table. Grounded on the same
// direct-array-over-map tradeoff used elsewhere in the pack for hot-path
// registries: a 64k-entry table of 16-byte structs is about one megabyte,
// far cheaper than the pointer-chasing and GC pressure a
// map[int]fdInfo would add to every PollIO dispatch.
const maxFDs = 65536

type fdInfo struct {
	callback       IOCallback
	events         IOEvents
	levelTriggered bool
	active         bool
}

// fastPoller wraps a Linux epoll instance. It is safe for concurrent
// Register/Unregister from any goroutine; PollIO must only ever be called
// from the Loop's own run goroutine.
type fastPoller struct { // betteralign:ignore
	epfd     int32
	version  atomic.Uint64
	eventBuf [256]unix.EpollEvent
	burstCap int
	fds      [maxFDs]fdInfo
	fdMu     sync.RWMutex
	closed   atomic.Bool
}

// setBurstCap bounds how many ready descriptors a single pollIO call may
// dispatch (spec §4.2's MAX_IO_BURST starvation guard, the I/O-vs-timers
// direction): the rest stay pending in the kernel's own ready list and are
// returned on a subsequent call, so timers and immediate actions get a
// chance to run between bursts under a sustained flood of ready fds.
func (p *fastPoller) setBurstCap(n int) {
	if n <= 0 || n > len(p.eventBuf) {
		n = len(p.eventBuf)
	}
	p.burstCap = n
}

func (p *fastPoller) init() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = int32(epfd)
	p.burstCap = len(p.eventBuf)
	return nil
}

func (p *fastPoller) close() error {
	p.closed.Store(true)
	if p.epfd > 0 {
		return unix.Close(int(p.epfd))
	}
	return nil
}

func (p *fastPoller) register(fd int, events IOEvents, levelTriggered bool, cb IOCallback) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}

	p.fdMu.Lock()
	if p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = fdInfo{callback: cb, events: events, levelTriggered: levelTriggered, active: true}
	p.version.Add(1)
	p.fdMu.Unlock()

	ev := &unix.EpollEvent{Events: eventsToEpoll(events, levelTriggered), Fd: int32(fd)}
	if err := unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		p.fdMu.Lock()
		p.fds[fd] = fdInfo{}
		p.fdMu.Unlock()
		return err
	}
	return nil
}

func (p *fastPoller) modify(fd int, events IOEvents) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDNotRegistered
	}
	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	lt := p.fds[fd].levelTriggered
	p.fds[fd].events = events
	p.version.Add(1)
	p.fdMu.Unlock()

	ev := &unix.EpollEvent{Events: eventsToEpoll(events, lt), Fd: int32(fd)}
	return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *fastPoller) unregister(fd int) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDNotRegistered
	}
	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return ErrFDNotRegistered
	}
	p.fds[fd] = fdInfo{}
	p.version.Add(1)
	p.fdMu.Unlock()

	return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_DEL, fd, nil)
}

// pollIO blocks for up to timeoutMs milliseconds (negative means forever)
// and dispatches ready callbacks inline before returning.
func (p *fastPoller) pollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}

	v := p.version.Load()
	n, err := unix.EpollWait(int(p.epfd), p.eventBuf[:p.burstCap], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	if p.version.Load() != v {
		// A callback run during a prior dispatch in this same call could
		// not have happened (PollIO is loop-goroutine-only), but a
		// concurrent Register/Unregister from another goroutine between
		// EpollWait returning and us reading fds could have invalidated
		// eventBuf's fd slots; discard rather than risk stale dispatch.
		return 0, nil
	}

	p.dispatch(n)
	return n, nil
}

func (p *fastPoller) dispatch(n int) {
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if fd < 0 || fd >= maxFDs {
			continue
		}
		p.fdMu.RLock()
		info := p.fds[fd]
		p.fdMu.RUnlock()
		if info.active && info.callback != nil {
			info.callback(epollToEvents(p.eventBuf[i].Events))
		}
	}
}

func eventsToEpoll(events IOEvents, levelTriggered bool) uint32 {
	var e uint32
	if events&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	if !levelTriggered {
		e |= unix.EPOLLET
	}
	return e
}

func epollToEvents(e uint32) IOEvents {
	var events IOEvents
	if e&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if e&unix.EPOLLHUP != 0 || e&unix.EPOLLRDHUP != 0 {
		events |= EventHangup
	}
	return events
}
