package apdu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTLVPathSkipsUnknownSiblings(t *testing.T) {
	// composite 0xA4 containing an unknown tag 0x99 before the one we want
	withUnknown := TLV([]byte{0xA4, 0x07, 0x99, 0x01, 0xFF, 0x80, 0x02, 0xCA, 0xFE})
	withoutUnknown := TLV([]byte{0xA4, 0x04, 0x80, 0x02, 0xCA, 0xFE})

	v1, err := withUnknown.Path(0xA4, 0x80)
	assert.NoError(t, err)

	v2, err := withoutUnknown.Path(0xA4, 0x80)
	assert.NoError(t, err)

	assert.Equal(t, v2, v1)
	assert.Equal(t, []byte{0xCA, 0xFE}, v1)
}

func TestTLVEntryNotFound(t *testing.T) {
	_, err := TLV([]byte{0x80, 0x01, 0xFF}).Entry(0x81)
	assert.Error(t, err)
	var tnf *ErrTagNotFound
	assert.ErrorAs(t, err, &tnf)
}

func TestTLVNthEntry(t *testing.T) {
	data := TLV([]byte{0x02, 0x01, 0x03, 0x02, 0x01, 0x05})
	first, err := data.NthEntry(0x02, 0)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x03}, first)

	second, err := data.NthEntry(0x02, 1)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x05}, second)
}
