package types

import (
	"crypto/rand"
	"fmt"
	"math/big"

	kcrypto "github.com/keycardtech/keycard-go/crypto"
)

const (
	pinLength             = 6
	pukLength             = 12
	minPairingPasswordLen = 5
)

// Secrets holds the PIN, PUK, and pairing password used only by INIT
// (spec.md §3). It is never persisted by the core and must be wiped
// after the INIT call completes. The fields are kept as byte slices,
// not strings, so Wipe can actually scrub the backing memory — a Go
// string's bytes are immutable and outlive any attempt to zero them.
type Secrets struct {
	pin             []byte
	puk             []byte
	pairingPassword []byte
}

// NewSecrets generates a random 6-digit PIN, 12-digit PUK, and a
// base64-safe pairing password of reasonable length, for use with INIT
// on a fresh card.
func NewSecrets() (*Secrets, error) {
	pin, err := randomDigits(pinLength)
	if err != nil {
		return nil, err
	}

	puk, err := randomDigits(pukLength)
	if err != nil {
		return nil, err
	}

	pairingPassword, err := randomPairingPassword(16)
	if err != nil {
		return nil, err
	}

	return NewSecretsWith(pin, puk, pairingPassword)
}

// NewSecretsWith validates and wraps caller-supplied PIN, PUK, and
// pairing password (spec.md §4.4 INIT validation rules).
func NewSecretsWith(pin, puk, pairingPassword string) (*Secrets, error) {
	if len(pin) != pinLength || !allDigits([]byte(pin)) {
		return nil, fmt.Errorf("%w: pin must be %d decimal digits", ErrInvalidSecret, pinLength)
	}

	if len(puk) != pukLength || !allDigits([]byte(puk)) {
		return nil, fmt.Errorf("%w: puk must be %d decimal digits", ErrInvalidSecret, pukLength)
	}

	if len(pairingPassword) < minPairingPasswordLen {
		return nil, fmt.Errorf("%w: pairing password must be at least %d characters", ErrInvalidSecret, minPairingPasswordLen)
	}

	return &Secrets{pin: []byte(pin), puk: []byte(puk), pairingPassword: []byte(pairingPassword)}, nil
}

var ErrInvalidSecret = fmt.Errorf("invalid secret")

func (s *Secrets) Pin() []byte         { return s.pin }
func (s *Secrets) Puk() []byte         { return s.puk }
func (s *Secrets) PairingPass() []byte { return s.pairingPassword }

// PairingToken derives the 32-byte PBKDF2 token INIT sends to the card
// in place of the plaintext pairing password.
func (s *Secrets) PairingToken() []byte {
	return kcrypto.DerivePairingToken(string(s.pairingPassword))
}

// Wipe overwrites the PIN, PUK, and pairing password's backing bytes
// with zeros in place; call it once the secrets have been sent to the
// card and are no longer needed (spec.md §3: "must never outlive the
// INIT call").
func (s *Secrets) Wipe() {
	kcrypto.Zero(s.pin)
	kcrypto.Zero(s.puk)
	kcrypto.Zero(s.pairingPassword)
}

func allDigits(b []byte) bool {
	for _, r := range b {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func randomDigits(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + d.Int64())
	}
	return string(digits), nil
}

const pairingPasswordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func randomPairingPassword(n int) (string, error) {
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(pairingPasswordAlphabet))))
		if err != nil {
			return "", err
		}
		out[i] = pairingPasswordAlphabet[idx.Int64()]
	}
	return string(out), nil
}
