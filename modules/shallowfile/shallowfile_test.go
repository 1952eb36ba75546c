package shallowfile

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugeswarm/fetchpack/modules/oid"
)

func hid(n int) string { return fmt.Sprintf("%039xa", n) }

func TestReadMissingFileYieldsEmptyState(t *testing.T) {
	s, err := Read(filepath.Join(t.TempDir(), "shallow"))
	require.NoError(t, err)
	assert.Empty(t, s.OIDs)
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shallow")
	s, err := Read(path)
	require.NoError(t, err)
	s.Add(oid.New(hid(1)))
	s.Add(oid.New(hid(2)))
	require.NoError(t, s.Write())

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []oid.ID{oid.New(hid(1)), oid.New(hid(2))}, got.OIDs)
}

func TestWriteDetectsConcurrentModification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shallow")
	require.NoError(t, os.WriteFile(path, []byte(hid(1)+"\n"), 0o644))

	s, err := Read(path)
	require.NoError(t, err)

	// Simulate a concurrent writer bumping the mtime after our Read.
	later := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	s.Add(oid.New(hid(2)))
	err = s.Write()
	assert.ErrorIs(t, err, ErrChanged)
}

func TestAddDeduplicates(t *testing.T) {
	s := &State{loaded: true}
	id := oid.New(hid(1))
	s.Add(id)
	s.Add(id)
	assert.Len(t, s.OIDs, 1)
}

func TestRemoveDropsMatchingOID(t *testing.T) {
	s := &State{loaded: true, OIDs: []oid.ID{oid.New(hid(1)), oid.New(hid(2))}}
	s.Remove(oid.New(hid(1)))
	assert.Equal(t, []oid.ID{oid.New(hid(2))}, s.OIDs)
}
