package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	protRX  = Protection(0x20)
	protRWX = Protection(0x40)
)

// fakeProtector emulates single page protection.
type fakeProtector struct {
	prot        Protection
	unlocked    bool
	unlocks     int
	restores    int
	failUnlock  error
	failRestore error
}

func (p *fakeProtector) Unlock(addr, size uintptr) (Protection, error) {
	p.unlocks++
	if p.failUnlock != nil {
		return 0, p.failUnlock
	}
	old := p.prot
	p.prot, p.unlocked = protRWX, true
	return old, nil
}

func (p *fakeProtector) Restore(addr, size uintptr, old Protection) error {
	p.restores++
	if p.failRestore != nil {
		return p.failRestore
	}
	p.prot, p.unlocked = old, false
	return nil
}

func TestWrite(t *testing.T) {
	buf := []byte{0x80, 0x3D, 0xF8, 0x68, 0xED, 0x05, 0x00, 0x74, 0x78}
	r := NewRegion(0x1000, buf)
	p := &fakeProtector{prot: protRX}

	require.NoError(t, Write(p, r, 6, []byte{0x01}))

	assert.Equal(t, []byte{0x80, 0x3D, 0xF8, 0x68, 0xED, 0x05, 0x01, 0x74, 0x78}, buf)
	assert.Equal(t, protRX, p.prot)
	assert.False(t, p.unlocked)
	assert.Equal(t, 1, p.unlocks)
	assert.Equal(t, 1, p.restores)
}

func TestWriteOutOfRange(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x00}
	r := NewRegion(0x1000, buf)
	p := &fakeProtector{prot: protRX}

	for _, off := range []int{-1, 2, 3, 100} {
		err := Write(p, r, off, []byte{0x01, 0x02})
		assert.ErrorIs(t, err, ErrOutOfRange, "offset %d", off)
	}
	assert.Equal(t, []byte{0x00, 0x00, 0x00}, buf)
	assert.Zero(t, p.unlocks)
}

func TestWriteProtectFailureWritesNothing(t *testing.T) {
	buf := []byte{0x00, 0x00}
	p := &fakeProtector{prot: protRX, failUnlock: errors.New("access denied")}

	err := Write(p, NewRegion(0x1000, buf), 0, []byte{0xCC})

	assert.ErrorIs(t, err, ErrProtect)
	assert.Equal(t, []byte{0x00, 0x00}, buf)
	assert.Zero(t, p.restores)
}

func TestWriteRestoreFailure(t *testing.T) {
	buf := []byte{0x00}
	p := &fakeProtector{prot: protRX, failRestore: errors.New("boom")}

	err := Write(p, NewRegion(0x1000, buf), 0, []byte{0xCC})

	assert.ErrorIs(t, err, ErrProtect)
	assert.Equal(t, []byte{0xCC}, buf)
}

func TestApplyExample(t *testing.T) {
	buf := []byte{0x11, 0xAA, 0xBB, 0xFF, 0xDD, 0x22}
	spec, err := NewPatchSpec("AA BB ?? DD", "CC", 2)
	require.NoError(t, err)

	res, ok, err := Apply(NopProtector{}, NewRegion(0x400000, buf), spec)

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uintptr(0x400001), res.Match)
	assert.Equal(t, uintptr(0x400003), res.Patch)
	assert.Equal(t, []byte{0x11, 0xAA, 0xBB, 0xCC, 0xDD, 0x22}, buf)
}

func TestApplyNotFound(t *testing.T) {
	buf := []byte{0x11, 0x22}
	p := &fakeProtector{prot: protRX}
	spec, err := NewPatchSpec("AA BB", "CC", 0)
	require.NoError(t, err)

	_, ok, err := Apply(p, NewRegion(0, buf), spec)

	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, p.unlocks)
	assert.Equal(t, []byte{0x11, 0x22}, buf)
}

func TestApplyNegativeOffset(t *testing.T) {
	buf := []byte{0x90, 0x90, 0xAA, 0xBB}
	spec, err := NewPatchSpec("AA BB", "C3", -2)
	require.NoError(t, err)

	_, ok, err := Apply(NopProtector{}, NewRegion(0, buf), spec)

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{0xC3, 0x90, 0xAA, 0xBB}, buf)
}

func TestNewPatchSpecMalformed(t *testing.T) {
	_, err := NewPatchSpec("AA G1", "CC", 0)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = NewPatchSpec("AA BB", "??", 0)
	assert.ErrorIs(t, err, ErrMalformed)
}
