package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSecretsGeneratesValidValues(t *testing.T) {
	s, err := NewSecrets()
	require.NoError(t, err)

	assert.Len(t, s.Pin(), pinLength)
	assert.True(t, allDigits(s.Pin()))
	assert.Len(t, s.Puk(), pukLength)
	assert.True(t, allDigits(s.Puk()))
	assert.GreaterOrEqual(t, len(s.PairingPass()), minPairingPasswordLen)
}

func TestNewSecretsWithRejectsBadPin(t *testing.T) {
	_, err := NewSecretsWith("12345", "123456789012", "password")
	assert.ErrorIs(t, err, ErrInvalidSecret)

	_, err = NewSecretsWith("12345a", "123456789012", "password")
	assert.ErrorIs(t, err, ErrInvalidSecret)
}

func TestNewSecretsWithRejectsBadPuk(t *testing.T) {
	_, err := NewSecretsWith("123456", "12345678901", "password")
	assert.ErrorIs(t, err, ErrInvalidSecret)
}

func TestNewSecretsWithRejectsShortPairingPassword(t *testing.T) {
	_, err := NewSecretsWith("123456", "123456789012", "abcd")
	assert.ErrorIs(t, err, ErrInvalidSecret)
}

func TestPairingTokenIsDeterministic(t *testing.T) {
	s, err := NewSecretsWith("123456", "123456789012", "KeycardDefaultPairing")
	require.NoError(t, err)

	a := s.PairingToken()
	b := s.PairingToken()
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestWipeClearsSecrets(t *testing.T) {
	s, err := NewSecretsWith("123456", "123456789012", "password")
	require.NoError(t, err)

	s.Wipe()
	assert.Equal(t, make([]byte, pinLength), s.Pin())
	assert.Equal(t, make([]byte, pukLength), s.Puk())
	assert.Equal(t, make([]byte, len("password")), s.PairingPass())
}
