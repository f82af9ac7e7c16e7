package apdu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandSerializeNoDataNoLe(t *testing.T) {
	cmd := NewCommand(0x00, 0xA4, 0x04, 0x00, nil)
	assert.Equal(t, []byte{0x00, 0xA4, 0x04, 0x00}, cmd.Serialize())
}

func TestCommandSerializeWithDataAndLe(t *testing.T) {
	cmd := NewCommand(0x80, 0x20, 0x00, 0x00, []byte("123456"))
	cmd.SetLe(0)

	want := []byte{0x80, 0x20, 0x00, 0x00, 0x06, '1', '2', '3', '4', '5', '6', 0x00}
	assert.Equal(t, want, cmd.Serialize())
}

func TestResponseParse(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03, 0x90, 0x00}
	resp, err := ParseResponse(raw)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, resp.Data)
	assert.Equal(t, SwOK, resp.Sw)
}

func TestResponseParseEmptyData(t *testing.T) {
	resp, err := ParseResponse([]byte{0x90, 0x00})
	assert.NoError(t, err)
	assert.Empty(t, resp.Data)
	assert.Equal(t, SwOK, resp.Sw)
}

func TestResponseParseTruncated(t *testing.T) {
	_, err := ParseResponse([]byte{0x90})
	assert.ErrorIs(t, err, ErrTruncatedResponse)
}

func TestHasMoreData(t *testing.T) {
	more, remaining := HasMoreData(0x6120)
	assert.True(t, more)
	assert.Equal(t, uint8(0x20), remaining)

	more, _ = HasMoreData(SwOK)
	assert.False(t, more)
}
