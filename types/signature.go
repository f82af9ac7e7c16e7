package types

import (
	"errors"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/keycardtech/keycard-go/apdu"
)

var (
	TagRawSignature = uint8(0x80)

	ErrInvalidSignature = errors.New("invalid signature")
)

// Signature is a recoverable ECDSA signature returned by SIGN
// (spec.md §4.4), wrapping the recovered public key alongside r, s, v.
type Signature struct {
	pubKey []byte
	r      []byte
	s      []byte
	v      byte
}

// ParseSignature extracts the 65-byte recoverable signature TLV from a
// SIGN response and recovers the signer's public key against message.
func ParseSignature(message, resp []byte) (*Signature, error) {
	sig, err := apdu.TLV(resp).Entry(TagRawSignature)
	if err != nil {
		return nil, err
	}

	return ParseRecoverableSignature(message, sig)
}

// ParseRecoverableSignature builds a Signature from a raw 65-byte
// r||s||v blob, recovering the public key via secp256k1 Ecrecover.
func ParseRecoverableSignature(message, sig []byte) (*Signature, error) {
	if len(sig) != 65 {
		return nil, ErrInvalidSignature
	}

	pubKey, err := crypto.Ecrecover(message, sig)
	if err != nil {
		return nil, err
	}

	return &Signature{
		pubKey: pubKey,
		r:      sig[0:32],
		s:      sig[32:64],
		v:      sig[64],
	}, nil
}

// DERSignatureToRS extracts the r and s integers from a DER-encoded
// ECDSA signature (used when a card returns the DER form instead of
// r||s||v), normalizing each to 32 bytes.
func DERSignatureToRS(tlv []byte) ([]byte, []byte, error) {
	r, err := apdu.PathN(tlv, 0, 0x30, 0x02)
	if err != nil {
		return nil, nil, err
	}

	if len(r) > 32 {
		r = r[len(r)-32:]
	}

	s, err := apdu.PathN(tlv, 1, 0x30, 0x02)
	if err != nil {
		return nil, nil, err
	}

	if len(s) > 32 {
		s = s[len(s)-32:]
	}

	return r, s, nil
}

func (s *Signature) PubKey() []byte { return s.pubKey }
func (s *Signature) R() []byte      { return s.r }
func (s *Signature) S() []byte      { return s.s }
func (s *Signature) V() byte        { return s.v }
