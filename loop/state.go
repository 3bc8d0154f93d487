package loop

import "sync/atomic"

// runState is the coarse lifecycle state of a Loop.
//
//	stateAwake (0) → stateRunning (3)  [Run/RunProtected, via CAS]
//	stateRunning (3) → stateAwake (0)  [Run/RunProtected return]
//	(any) → stateTerminated (1)        [Close]
//
// stateSleeping (2) and stateTerminating (4) are defined, but no Loop
// method enters them.
//
// Numeric values are not contiguous; they're chosen so stateTerminated and
// stateSleeping keep the low values a debugger happens to print most often
// during development, matching the numbering this machine was modeled on.
type runState uint64

const (
	stateAwake       runState = 0
	stateTerminated  runState = 1
	stateSleeping    runState = 2
	stateRunning     runState = 3
	stateTerminating runState = 4
)

func (s runState) String() string {
	switch s {
	case stateAwake:
		return "awake"
	case stateRunning:
		return "running"
	case stateSleeping:
		return "sleeping"
	case stateTerminating:
		return "terminating"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// fastState is a lock-free runState holder. It is cache-line padded to
// avoid false sharing with
// adjacent Loop fields on multi-core machines that drive many loops.
type fastState struct { // betteralign:ignore
	_ [64]byte
	v atomic.Uint64
	_ [56]byte
}

func newFastState() *fastState {
	s := &fastState{}
	s.v.Store(uint64(stateAwake))
	return s
}

func (s *fastState) Load() runState {
	return runState(s.v.Load())
}

func (s *fastState) Store(state runState) {
	s.v.Store(uint64(state))
}

// TryTransition performs a CAS from -> to, returning whether it succeeded.
func (s *fastState) TryTransition(from, to runState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

func (s *fastState) IsTerminal() bool {
	return s.Load() == stateTerminated
}

func (s *fastState) IsRunning() bool {
	st := s.Load()
	return st == stateRunning || st == stateSleeping
}

func (s *fastState) CanAcceptWork() bool {
	st := s.Load()
	return st == stateAwake || st == stateRunning || st == stateSleeping
}
