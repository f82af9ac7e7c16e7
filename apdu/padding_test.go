package apdu

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPadUnpadRoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		{0x01},
		bytes.Repeat([]byte{0xAB}, 15),
		bytes.Repeat([]byte{0xAB}, 16),
		bytes.Repeat([]byte{0xAB}, 17),
		bytes.Repeat([]byte{0xCD}, 63),
	}

	for _, in := range inputs {
		padded := Pad(in, 16)
		assert.Equal(t, 0, len(padded)%16)
		assert.Greater(t, len(padded), len(in))

		out, err := Unpad(padded)
		assert.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestUnpadMissingSentinel(t *testing.T) {
	_, err := Unpad(bytes.Repeat([]byte{0x00}, 16))
	assert.ErrorIs(t, err, ErrNoPaddingSentinel)
}
