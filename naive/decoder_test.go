package naive_test

import (
	"testing"

	"github.com/solaris-labs/goasync/naive"
	"github.com/solaris-labs/goasync/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderStopsAtTerminatorDetach(t *testing.T) {
	src := newByteSource("abc\nXYZ")
	d := naive.NewDecoder(src, naive.Detach, '\n', 0x1b)

	got, err := readAll(d)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, "XYZ", string(d.LeftoverBytes()))
	assert.Equal(t, 3, d.LeftoverSize())
	assert.False(t, src.closed, "Detach must not close the source")
}

func TestDecoderAdoptInputRequiresExactEOF(t *testing.T) {
	src := newByteSource("abc\n")
	d := naive.NewDecoder(src, naive.AdoptInput, '\n', 0x1b)

	got, err := readAll(d)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	require.NoError(t, d.Close())
	assert.True(t, src.closed)
}

func TestDecoderAdoptInputRejectsBufferedTrailingGarbage(t *testing.T) {
	// The over-read past the terminator lands in the decoder's own
	// buffer, not the source; AdoptInput must still reject it.
	src := newByteSource("abc\nEXTRA")
	d := naive.NewDecoder(src, naive.AdoptInput, '\n', 0x1b)

	_, err := readAll(d)
	assert.ErrorIs(t, err, stream.ErrProtocol)
}

func TestDecoderEscapeRoundTripPreservesTerminatorAndEscapeValues(t *testing.T) {
	// Scenario: a payload that itself contains the terminator and escape
	// byte values, each preceded by an escape marker on the wire.
	wire := []byte{'A', 0x1b, 0x00, 0x1b, 0x1b, 'B', 0x00}
	d := naive.NewDecoder(newByteSource(string(wire)), naive.Detach, 0x00, 0x1b)

	got, err := readAll(d)
	require.NoError(t, err)
	assert.Equal(t, []byte{'A', 0x00, 0x1b, 'B'}, got)
}

func TestDecoderTruncatedFrameErrors(t *testing.T) {
	src := newByteSource("abc")
	d := naive.NewDecoder(src, naive.Detach, '\n', 0x1b)

	_, err := readAll(d)
	assert.ErrorIs(t, err, stream.ErrProtocol)
}

func TestDecoderDegenerateModeTreatsSharedByteAsPlainTerminator(t *testing.T) {
	// With escaping disabled (terminator == escape), the terminator check
	// is evaluated before the escape check, so the shared byte value
	// always ends the frame rather than reaching an escape branch.
	src := newByteSource("AB\x00TAIL")
	d := naive.NewDecoder(src, naive.Detach, 0x00, 0x00)

	got, err := readAll(d)
	require.NoError(t, err)
	assert.Equal(t, "AB", string(got))
	assert.Equal(t, "TAIL", string(d.LeftoverBytes()))
}

func TestDecoderErrorLatchesOnSubsequentReads(t *testing.T) {
	src := newByteSource("")
	d := naive.NewDecoder(src, naive.Detach, '\n', 0x1b)

	buf := make([]byte, 4)
	_, err := d.Read(buf)
	assert.ErrorIs(t, err, stream.ErrProtocol)
	_, err = d.Read(buf)
	assert.ErrorIs(t, err, stream.ErrProtocol, "errored state must latch")
}

func TestDecoderRemainingIsUnsupported(t *testing.T) {
	src := newByteSource("abc\n")
	d := naive.NewDecoder(src, naive.Detach, '\n', 0x1b)

	_, err := d.Remaining()
	assert.ErrorIs(t, err, stream.ErrUnsupported)
}

func TestDecoderCloseIsIdempotent(t *testing.T) {
	src := newByteSource("abc\n")
	d := naive.NewDecoder(src, naive.Detach, '\n', 0x1b)

	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.Close(), stream.ErrClosed)
}
