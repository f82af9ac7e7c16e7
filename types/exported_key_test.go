package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tlv(tag uint8, data []byte) []byte {
	return append([]byte{tag, byte(len(data))}, data...)
}

func TestParseExportKeyResponsePublicOnly(t *testing.T) {
	pub := make([]byte, 65)
	for i := range pub {
		pub[i] = byte(i)
	}

	inner := tlv(tagExportKeyPublic, pub)
	resp := tlv(TagExportKeyTemplate, inner)

	key, err := ParseExportKeyResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, pub, key.PublicKey)
	assert.Nil(t, key.PrivateKey)
}

func TestParseExportKeyResponseWithPrivate(t *testing.T) {
	pub := make([]byte, 65)
	priv := make([]byte, 32)
	for i := range priv {
		priv[i] = byte(i + 1)
	}

	inner := append(tlv(tagExportKeyPublic, pub), tlv(tagExportKeyPrivate, priv)...)
	resp := tlv(TagExportKeyTemplate, inner)

	key, err := ParseExportKeyResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, pub, key.PublicKey)
	assert.Equal(t, priv, key.PrivateKey)
}

func TestParseExportKeyResponseMissingTemplate(t *testing.T) {
	_, err := ParseExportKeyResponse([]byte{0x01, 0x00})
	assert.Error(t, err)
}
