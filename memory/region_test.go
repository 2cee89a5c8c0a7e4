package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionAddressing(t *testing.T) {
	r := NewRegion(0x7FF600000000, make([]byte, 0x100))

	assert.Equal(t, 0x100, r.Len())
	assert.Equal(t, uintptr(0x7FF600000010), r.Addr(0x10))

	off, ok := r.Offset(0x7FF6000000FF)
	require.True(t, ok)
	assert.Equal(t, 0xFF, off)

	_, ok = r.Offset(0x7FF600000100)
	assert.False(t, ok)
	_, ok = r.Offset(0x7FF5FFFFFFFF)
	assert.False(t, ok)
}

func TestRegionContains(t *testing.T) {
	r := NewRegion(0, make([]byte, 8))

	assert.True(t, r.Contains(0, 8))
	assert.True(t, r.Contains(8, 0))
	assert.True(t, r.Contains(7, 1))
	assert.False(t, r.Contains(7, 2))
	assert.False(t, r.Contains(-1, 1))
	assert.False(t, r.Contains(0, -1))
	assert.False(t, r.Contains(9, 0))
}

func TestRegionSlice(t *testing.T) {
	buf := []byte{0, 1, 2, 3, 4, 5}
	r := NewRegion(0x100, buf)

	sub, err := r.Slice(2, 3)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x102), sub.Base)
	assert.Equal(t, []byte{2, 3, 4}, sub.Bytes())

	_, err = r.Slice(4, 3)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestRegionAtEmpty(t *testing.T) {
	r := RegionAt(0x1000, 0)
	assert.Zero(t, r.Len())
	assert.Equal(t, uintptr(0x1000), r.Base)
}
