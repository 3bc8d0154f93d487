package chunked_test

import (
	"strings"
	"testing"

	"github.com/solaris-labs/goasync/chunked"
	"github.com/solaris-labs/goasync/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderDetachAtTrailerStopsBeforeTrailer(t *testing.T) {
	src := newByteSource("3\r\nabc\r\n0\r\n\r\n")
	d := chunked.NewDecoder(src, chunked.DetachAtTrailer)

	got, err := readAllChunked(d)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	require.NoError(t, d.Close())
	assert.False(t, src.closed, "DetachAtTrailer must not close the source")
}

func TestDecoderMultipleChunks(t *testing.T) {
	src := newByteSource("4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n")
	d := chunked.NewDecoder(src, chunked.DetachAfterTrailer)

	got, err := readAllChunked(d)
	require.NoError(t, err)
	assert.Equal(t, "Wikipedia", string(got))
}

func TestDecoderDetachAfterTrailerConsumesTrailer(t *testing.T) {
	src := newByteSource("3\r\nabc\r\n0\r\n\r\nTAIL")
	d := chunked.NewDecoder(src, chunked.DetachAfterTrailer)

	got, err := readAllChunked(d)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	// The trailer's final CRLF is consumed; anything past it that the
	// decoder's read-ahead pulled in belongs to whatever comes next on the
	// shared source, and is handed back via LeftoverBytes.
	assert.Equal(t, "TAIL", string(d.LeftoverBytes()))
}

func TestDecoderWithTrailerHeaders(t *testing.T) {
	src := newByteSource("3\r\nabc\r\n0\r\nX-Trailer: yes\r\n\r\n")
	d := chunked.NewDecoder(src, chunked.DetachAfterTrailer)

	got, err := readAllChunked(d)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestDecoderAdoptInputClosesSourceAndRequiresExactEOF(t *testing.T) {
	src := newByteSource("3\r\nabc\r\n0\r\n\r\n")
	d := chunked.NewDecoder(src, chunked.AdoptInput)

	got, err := readAllChunked(d)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	require.NoError(t, d.Close())
	assert.True(t, src.closed, "AdoptInput must close the source")
}

func TestDecoderAdoptInputRejectsTrailingGarbage(t *testing.T) {
	src := newByteSource("3\r\nabc\r\n0\r\n\r\nEXTRA")
	d := chunked.NewDecoder(src, chunked.AdoptInput)

	_, err := readAllChunked(d)
	assert.ErrorIs(t, err, stream.ErrProtocol)
}

func TestDecoderDetachAtFinalExtensionsLeavesExtensionsUnread(t *testing.T) {
	src := newByteSource("3\r\nabc\r\n0;ext=1\r\n\r\n")
	d := chunked.NewDecoder(src, chunked.DetachAtFinalExtensions)

	got, err := readAllChunked(d)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestDecoderLeadingNonDigitIsTreatedAsAZeroLengthExtension(t *testing.T) {
	// A byte that isn't a hex digit simply ends length accumulation (even
	// at zero digits read): it's handled as the start of the extensions
	// that follow a chunk length, not as a malformed length.
	src := newByteSource("Z\r\n")
	d := chunked.NewDecoder(src, chunked.DetachAtTrailer)

	got, err := readAllChunked(d)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecoderTruncatedLengthLineErrors(t *testing.T) {
	src := newByteSource("3")
	d := chunked.NewDecoder(src, chunked.DetachAtTrailer)

	_, err := readAllChunked(d)
	assert.ErrorIs(t, err, stream.ErrProtocol)
}

func TestDecoderRejectsBadChunkTerminator(t *testing.T) {
	src := newByteSource("3\r\nabcXX0\r\n\r\n")
	d := chunked.NewDecoder(src, chunked.DetachAtTrailer)

	_, err := readAllChunked(d)
	assert.ErrorIs(t, err, stream.ErrProtocol)
}

func TestDecoderRejectsChunkLengthOverflow(t *testing.T) {
	// 16 hex digits already saturate a 64-bit length; a 17th digit must
	// overflow and fail rather than wrap silently.
	src := newByteSource(strings.Repeat("f", 17) + "\r\n")
	d := chunked.NewDecoder(src, chunked.DetachAtTrailer)

	_, err := readAllChunked(d)
	assert.ErrorIs(t, err, stream.ErrProtocol)
}

func TestDecoderErrorLatchesOnSubsequentReads(t *testing.T) {
	src := newByteSource("3")
	d := chunked.NewDecoder(src, chunked.DetachAtTrailer)

	buf := make([]byte, 4)
	_, err := d.Read(buf)
	assert.ErrorIs(t, err, stream.ErrProtocol)
	_, err = d.Read(buf)
	assert.ErrorIs(t, err, stream.ErrProtocol, "errored state must latch")
}

func TestDecoderRemainingIsUnsupported(t *testing.T) {
	src := newByteSource("0\r\n\r\n")
	d := chunked.NewDecoder(src, chunked.DetachAtTrailer)

	_, err := d.Remaining()
	assert.ErrorIs(t, err, stream.ErrUnsupported)
}

func TestDecoderCloseIsIdempotentCheck(t *testing.T) {
	src := newByteSource("0\r\n\r\n")
	d := chunked.NewDecoder(src, chunked.DetachAtTrailer)

	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.Close(), stream.ErrClosed)
}

func TestDecoderChunkDataLargerThanInternalBuffer(t *testing.T) {
	// 50 bytes of payload plus the "32\r\n" length line exceed the
	// decoder's 32-byte read-ahead buffer, forcing read_chunk_data's
	// direct-into-caller-buffer fast path once the buffered bytes run out.
	payload := strings.Repeat("y", 50)
	src := newByteSource("32\r\n" + payload + "\r\n0\r\n\r\n")
	d := chunked.NewDecoder(src, chunked.DetachAfterTrailer)

	got, err := readAllChunked(d)
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
}

func TestDecoderEmptyBody(t *testing.T) {
	src := newByteSource("0\r\n\r\n")
	d := chunked.NewDecoder(src, chunked.DetachAfterTrailer)

	got, err := readAllChunked(d)
	require.NoError(t, err)
	assert.Empty(t, got)
}
