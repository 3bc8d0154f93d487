package pacer_test

import (
	"testing"
	"time"

	"github.com/solaris-labs/goasync/action"
	"github.com/solaris-labs/goasync/loop"
	"github.com/solaris-labs/goasync/pacer"
	"github.com/solaris-labs/goasync/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource struct {
	data   []byte
	closed bool
	cb     action.Action
}

func (s *fixedSource) Read(buf []byte) (int, error) {
	if len(s.data) == 0 {
		return 0, stream.ErrWouldBlock
	}
	n := copy(buf, s.data)
	s.data = s.data[n:]
	return n, nil
}

func (s *fixedSource) Close() error { s.closed = true; return nil }

func (s *fixedSource) RegisterCallback(a action.Action) { s.cb = a }

func (s *fixedSource) UnregisterCallback() { s.cb = action.Noop }

var _ stream.ByteStream = (*fixedSource)(nil)

func TestPacerStreamClampsReadToQuota(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()

	src := &fixedSource{data: []byte("0123456789")}
	ps := pacer.NewStream(l, src, 1000, 1, 100)

	time.Sleep(2 * time.Millisecond)
	// Loop.Now is refreshed once per tick; run one so the sleep counts.
	require.NoError(t, l.Flush())

	buf := make([]byte, 10)
	n, err := ps.Read(buf)
	require.NoError(t, err)
	assert.Less(t, n, 10, "the read must be clamped to the accrued quota, not the full request")
	assert.Greater(t, n, 0)
}

func TestPacerStreamReturnsWouldBlockBelowMinBurst(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()

	src := &fixedSource{data: []byte("0123456789")}
	ps := pacer.NewStream(l, src, 1, 5, 100)
	defer ps.Close()

	buf := make([]byte, 10)
	_, err = ps.Read(buf)
	assert.ErrorIs(t, err, stream.ErrWouldBlock)
}

func TestPacerStreamRetriesOnceQuotaAccrues(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()

	src := &fixedSource{data: []byte("0123456789")}
	ps := pacer.NewStream(l, src, 1000, 5, 100)
	defer ps.Close()

	fired := false
	ps.RegisterCallback(action.New(func() { fired = true }))

	buf := make([]byte, 10)
	_, err = ps.Read(buf)
	require.ErrorIs(t, err, stream.ErrWouldBlock)

	require.Eventually(t, func() bool {
		_ = l.Poll(5 * time.Millisecond)
		return fired
	}, time.Second, time.Millisecond)
}

func TestPacerStreamResetZeroesQuota(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()

	src := &fixedSource{data: []byte("0123456789")}
	ps := pacer.NewStream(l, src, 1000, 1, 100)
	defer ps.Close()

	// Accrue enough quota that, absent Reset, the next Read would succeed
	// immediately rather than blocking.
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, l.Flush())
	ps.Reset()

	buf := make([]byte, 10)
	_, err = ps.Read(buf)
	assert.ErrorIs(t, err, stream.ErrWouldBlock, "Reset must zero the quota clock, not merely have it pass through unaffected")
}

func TestPacerStreamCloseClosesSource(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()

	src := &fixedSource{data: []byte("x")}
	ps := pacer.NewStream(l, src, 1000, 1, 100)
	require.NoError(t, ps.Close())
	assert.True(t, src.closed)
	assert.ErrorIs(t, ps.Close(), stream.ErrClosed)
}
