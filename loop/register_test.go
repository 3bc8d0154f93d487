//go:build linux || darwin

package loop_test

import (
	"testing"
	"time"

	"github.com/solaris-labs/goasync/loop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRegisterEdgeTriggeredFiresOnReadiness(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	require.NoError(t, unix.SetNonblock(fds[0], true))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	fired := make(chan loop.IOEvents, 4)
	require.NoError(t, l.Register(fds[0], loop.EventRead, func(ev loop.IOEvents) {
		fired <- ev
	}))
	defer l.Unregister(fds[0])

	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	require.NoError(t, l.Poll(100*time.Millisecond))

	select {
	case ev := <-fired:
		assert.NotZero(t, ev&loop.EventRead)
	default:
		t.Fatal("expected a readiness callback to have fired")
	}
}

func TestRegisterDuplicateReturnsErrFDAlreadyRegistered(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	require.NoError(t, l.Register(fds[0], loop.EventRead, func(loop.IOEvents) {}))
	defer l.Unregister(fds[0])

	assert.ErrorIs(t, l.Register(fds[0], loop.EventRead, func(loop.IOEvents) {}), loop.ErrFDAlreadyRegistered)
}

func TestModifyLevelOnUnregisteredFDReturnsErr(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()

	assert.ErrorIs(t, l.ModifyLevel(999999, loop.EventRead), loop.ErrFDNotRegistered)
}

// TestWithIOBurstCapDefersExcessReadiness registers more ready pipes than
// a burst cap of 1 allows in a single poll, and checks that delivery
// spreads across multiple Poll calls rather than either losing readiness
// or dispatching it all in one go — the I/O-vs-timers direction of the
// starvation guard described in the package doc.
func TestWithIOBurstCapDefersExcessReadiness(t *testing.T) {
	l, err := loop.New(loop.WithIOBurstCap(1))
	require.NoError(t, err)
	defer l.Close()

	const n = 4
	var readFDs, writeFDs [n]int
	fired := make(chan int, n)
	for i := 0; i < n; i++ {
		var fds [2]int
		require.NoError(t, unix.Pipe(fds[:]))
		require.NoError(t, unix.SetNonblock(fds[0], true))
		readFDs[i], writeFDs[i] = fds[0], fds[1]
		defer unix.Close(fds[0])
		defer unix.Close(fds[1])

		idx := i
		require.NoError(t, l.Register(fds[0], loop.EventRead, func(loop.IOEvents) {
			fired <- idx
		}))
		defer l.Unregister(fds[0])

		_, err = unix.Write(fds[1], []byte("x"))
		require.NoError(t, err)
	}

	seen := map[int]bool{}
	for polls := 0; len(seen) < n && polls < n*4; polls++ {
		require.NoError(t, l.Poll(50*time.Millisecond))
	drain:
		for {
			select {
			case idx := <-fired:
				seen[idx] = true
			default:
				break drain
			}
		}
	}
	assert.Len(t, seen, n, "every ready pipe must eventually be dispatched despite the burst cap")
}
