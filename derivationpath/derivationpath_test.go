package derivationpath

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serialize(path []uint32) []byte {
	buf := make([]byte, 4*len(path))
	for i, c := range path {
		binary.BigEndian.PutUint32(buf[i*4:], c)
	}
	return buf
}

func TestDecodeAbsoluteHardenedApostrophe(t *testing.T) {
	start, path, err := Decode("m/44'/0'/0'/0/0")
	require.NoError(t, err)
	assert.Equal(t, StartingPointMaster, start)

	want := []uint32{44 | hardenedStart, 0 | hardenedStart, 0 | hardenedStart, 0, 0}
	assert.Equal(t, want, path)
	assert.Equal(t, serialize(want), serialize(path))
}

func TestDecodeAbsoluteHardenedH(t *testing.T) {
	_, pathApostrophe, err := Decode("m/44'/1")
	require.NoError(t, err)

	_, pathH, err := Decode("m/44h/1")
	require.NoError(t, err)

	assert.Equal(t, pathApostrophe, pathH)
}

func TestDecodeParentRelative(t *testing.T) {
	start, path, err := Decode("../1/2")
	require.NoError(t, err)
	assert.Equal(t, StartingPointParent, start)
	assert.Equal(t, []uint32{1, 2}, path)
}

func TestDecodeCurrentRelative(t *testing.T) {
	start, path, err := Decode("./1/2")
	require.NoError(t, err)
	assert.Equal(t, StartingPointCurrent, start)
	assert.Equal(t, []uint32{1, 2}, path)
}

func TestDecodeInvalidComponent(t *testing.T) {
	_, _, err := Decode("m/abc")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestDecodeIndexTooLarge(t *testing.T) {
	_, _, err := Decode("m/4294967296")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestIsHardened(t *testing.T) {
	assert.True(t, IsHardened(hardenedStart))
	assert.False(t, IsHardened(hardenedStart-1))
}
