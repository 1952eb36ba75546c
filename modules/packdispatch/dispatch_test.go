package packdispatch

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugeswarm/fetchpack/modules/plumbing/format/pktline"
)

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}

func packHeader(entries uint32) []byte {
	h := make([]byte, headerSize)
	copy(h, packSignature)
	binary.BigEndian.PutUint32(h[4:8], 2)
	binary.BigEndian.PutUint32(h[8:12], entries)
	return h
}

func TestPeekHeaderParsesEntryCountWithoutConsuming(t *testing.T) {
	body := append(packHeader(42), []byte("rest-of-pack")...)
	entries, rest, err := peekHeader(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, uint32(42), entries)

	all, err := readAll(rest)
	require.NoError(t, err)
	assert.Equal(t, body, all)
}

func TestPeekHeaderRejectsBadSignature(t *testing.T) {
	_, _, err := peekHeader(bytes.NewReader(append([]byte("XXXX"), packHeader(1)[4:]...)))
	assert.ErrorIs(t, err, ErrBadPackHeader)
}

func TestChoosePicksIndexPackWhenOverLimit(t *testing.T) {
	assert.Equal(t, "index-pack", choose(200, Options{UnpackLimit: 100}))
	assert.Equal(t, "unpack-objects", choose(50, Options{UnpackLimit: 100}))
	assert.Equal(t, "index-pack", choose(1, Options{KeepPack: true, UnpackLimit: 100}))
}

func TestDemuxSplitsBandsAndStopsAtFlush(t *testing.T) {
	var wire bytes.Buffer
	enc := pktline.NewEncoder(&wire)
	require.NoError(t, enc.Encode(append([]byte{1}, []byte("pack-bytes")...)))
	require.NoError(t, enc.Encode(append([]byte{2}, []byte("50% done")...)))
	require.NoError(t, enc.Flush())

	pr, pw := io.Pipe()
	var progress bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- demux(&wire, pw, &progress) }()

	packBytes, err := readAll(pr)
	require.NoError(t, err)
	assert.Equal(t, "pack-bytes", string(packBytes))
	require.NoError(t, <-done)
	assert.Equal(t, "50% done", progress.String())
}

func TestDemuxReturnsFatalErrorOnBandThree(t *testing.T) {
	var wire bytes.Buffer
	enc := pktline.NewEncoder(&wire)
	require.NoError(t, enc.Encode(append([]byte{3}, []byte("access denied")...)))

	pr, pw := io.Pipe()
	go func() { _, _ = readAll(pr) }()
	err := demux(&wire, pw, &bytes.Buffer{})
	var fatal *ErrSideBandFatal
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "access denied", fatal.Message)
}

func TestWrapProgressPassesThroughForNonTerminalDestination(t *testing.T) {
	src := bytes.NewBufferString("pack bytes")
	var dst bytes.Buffer
	r, stop := wrapProgress(src, &dst)
	assert.Same(t, io.Reader(src), r)
	stop()
	assert.Empty(t, dst.Bytes())
}

func TestDispatchNonSidebandChoosesUnpackObjectsAndRunsIt(t *testing.T) {
	body := append(packHeader(1), []byte("objectbytes")...)
	opts := Options{
		UnpackLimit:      100,
		UnpackObjectsBin: "cat", // stand-in: echoes stdin to stdout
	}
	res, err := Dispatch(context.Background(), bytes.NewReader(body), false, opts)
	require.NoError(t, err)
	assert.Equal(t, "unpack-objects", res.Ingester)
}
