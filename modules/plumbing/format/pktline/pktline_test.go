package pktline

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsciiHex16RoundTripsThroughHexDecode(t *testing.T) {
	for _, n := range []int{0, 1, 4, 2000, 65535} {
		var b [lenSize]byte
		copy(b[:], asciiHex16(n))
		got, err := hexDecode(b)
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
}

func TestHexDecodeRejectsNonHex(t *testing.T) {
	var b [lenSize]byte
	copy(b[:], "wxyz")
	_, err := hexDecode(b)
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestEncodeThenScanRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode([]byte("want "+"deadbeef"+"\n")))
	require.NoError(t, enc.Flush())
	require.NoError(t, enc.Encode([]byte("have "+"cafebabe"+"\n")))

	sc := NewScanner(&buf)
	require.True(t, sc.Scan())
	assert.False(t, sc.IsFlush())
	assert.Equal(t, "want deadbeef\n", string(sc.Bytes()))

	require.True(t, sc.Scan())
	assert.True(t, sc.IsFlush())
	assert.Empty(t, sc.Bytes())

	require.True(t, sc.Scan())
	assert.False(t, sc.IsFlush())
	assert.Equal(t, "have cafebabe\n", string(sc.Bytes()))

	assert.False(t, sc.Scan())
	assert.NoError(t, sc.Err())
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	err := enc.Encode(make([]byte, MaxPayloadSize+1))
	assert.ErrorIs(t, err, ErrPayloadTooLong)
}

func TestScanStopsCleanlyAtEOF(t *testing.T) {
	sc := NewScanner(bytes.NewReader(nil))
	assert.False(t, sc.Scan())
	assert.NoError(t, sc.Err())
}

func TestScanRejectsTruncatedLengthField(t *testing.T) {
	sc := NewScanner(bytes.NewReader([]byte("1")))
	assert.False(t, sc.Scan())
	assert.Error(t, sc.Err())
}

func TestEncodefFormatsPayload(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encodef("want %s multi_ack side-band-64k\n", "deadbeef"))

	sc := NewScanner(&buf)
	require.True(t, sc.Scan())
	assert.Equal(t, "want deadbeef multi_ack side-band-64k\n", string(sc.Bytes()))
}
