package oid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	const h = "94f3c2f067a7a2aa77d3f0a1b8c9d9e9a5b2c1d0"
	id, err := Parse(h)
	require.NoError(t, err)
	assert.Equal(t, h, id.String())
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("not-a-hash")
	assert.ErrorIs(t, err, ErrInvalidHex)

	_, err = Parse("94f3") // too short
	assert.ErrorIs(t, err, ErrInvalidHex)
}

func TestNewIgnoresErrors(t *testing.T) {
	assert.True(t, New("garbage").IsZero())
}

func TestZero(t *testing.T) {
	var id ID
	assert.True(t, id.IsZero())
	id[0] = 1
	assert.False(t, id.IsZero())
}

func TestCompareAndSort(t *testing.T) {
	a := New("0000000000000000000000000000000000000a")
	b := New("0000000000000000000000000000000000000b")
	assert.Equal(t, -1, Compare(a, b))
	assert.Equal(t, 1, Compare(b, a))
	assert.Equal(t, 0, Compare(a, a))

	ids := []ID{b, a}
	Sort(ids)
	assert.Equal(t, []ID{a, b}, ids)
}
