// Package crypto implements the cryptographic primitives the Keycard
// secure channel is built from: secp256k1 key generation and ECDH,
// AES-256-CBC, SHA-256/512, PBKDF2-HMAC-SHA256, and the AES-CBC based
// retail-MAC the card uses for per-message authentication.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

const (
	pairingSalt       = "Keycard Pairing Password Salt"
	pairingIterations = 50_000
	pairingKeyLen     = 32

	aesKeyLen   = 32
	aesBlockLen = 16
)

var (
	ErrInvalidKeyLength    = errors.New("invalid key length")
	ErrInvalidPublicKey    = errors.New("invalid card public key")
	ErrCryptogramMismatch  = errors.New("cryptogram mismatch: wrong pairing password")
	ErrCiphertextNotBlock  = errors.New("ciphertext is not a multiple of the block size")
	ErrPlaintextNotBlock   = errors.New("plaintext is not a multiple of the block size")
	ErrMetaNotSixteenBytes = errors.New("mac metadata must be exactly 16 bytes")
)

// GenerateKeyPair generates a fresh secp256k1 key pair, used as the
// client's ephemeral ECDH key for a handshake.
func GenerateKeyPair() (*ecdsa.PrivateKey, error) {
	return ethcrypto.GenerateKey()
}

// UnmarshalPubKey parses an uncompressed 65-byte secp256k1 public key, as
// returned by the card in SELECT/OPEN-SECURE-CHANNEL payloads.
func UnmarshalPubKey(data []byte) (*ecdsa.PublicKey, error) {
	pub, err := ethcrypto.UnmarshalPubkey(data)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}

	return pub, nil
}

// MarshalPubKey returns the uncompressed 65-byte (leading 0x04) encoding
// of pub.
func MarshalPubKey(pub *ecdsa.PublicKey) []byte {
	return ethcrypto.FromECDSAPub(pub)
}

// ECDH computes the shared secret as the X coordinate of
// priv.D * pub, left-padded to 32 bytes. This matches the applet's
// reference semantics (raw X, not a KDF over the full point).
func ECDH(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) []byte {
	x, _ := ethcrypto.S256().ScalarMult(pub.X, pub.Y, priv.D.Bytes())

	secret := make([]byte, 32)
	xb := x.Bytes()
	copy(secret[32-len(xb):], xb)

	return secret
}

// AESCBCEncrypt encrypts plaintext (which must already be a multiple of
// the AES block size) under key and iv. No padding is applied.
func AESCBCEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	if len(plaintext)%aesBlockLen != 0 {
		return nil, ErrPlaintextNotBlock
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)

	return ciphertext, nil
}

// AESCBCDecrypt decrypts ciphertext (a multiple of the AES block size)
// under key and iv. No unpadding is applied.
func AESCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	if len(ciphertext)%aesBlockLen != 0 {
		return nil, ErrCiphertextNotBlock
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return plaintext, nil
}

// DerivePairingToken runs PBKDF2-HMAC-SHA256 over the NFKD-normalized
// pairing password, matching the 50 000-iteration, 32-byte Keycard
// pairing token derivation.
func DerivePairingToken(password string) []byte {
	normalized := norm.NFKD.String(password)
	return pbkdf2.Key([]byte(normalized), []byte(pairingSalt), pairingIterations, pairingKeyLen, sha256.New)
}

// CSPRNGFill fills out with cryptographically secure random bytes.
func CSPRNGFill(out []byte) error {
	_, err := rand.Read(out)
	return err
}

// RetailMAC implements the AES-CBC based retail MAC (spec §4.3.1):
// encrypt the 16-byte meta block under an all-zero IV, take its last
// block as the IV for encrypting padded data, and return the
// second-to-last 16-byte block of that result.
func RetailMAC(key, meta, data []byte) ([]byte, error) {
	if len(meta) != aesBlockLen {
		return nil, ErrMetaNotSixteenBytes
	}

	zeroIV := make([]byte, aesBlockLen)
	cMeta, err := AESCBCEncrypt(key, zeroIV, meta)
	if err != nil {
		return nil, err
	}

	ivPrime := cMeta[len(cMeta)-aesBlockLen:]

	paddedData := padBlock(data)
	cData, err := AESCBCEncrypt(key, ivPrime, paddedData)
	if err != nil {
		return nil, err
	}

	return cData[len(cData)-2*aesBlockLen : len(cData)-aesBlockLen], nil
}

func padBlock(data []byte) []byte {
	padded := make([]byte, 0, len(data)+aesBlockLen)
	padded = append(padded, data...)
	padded = append(padded, 0x80)

	for len(padded)%aesBlockLen != 0 {
		padded = append(padded, 0x00)
	}

	return padded
}

// DeriveSessionKeys derives the secure channel's enc/mac keys and the
// initial running IV from the ECDH shared secret, the pairing key, and
// the salt||iv the card returned in OPEN SECURE CHANNEL's response.
func DeriveSessionKeys(sharedSecret, pairingKey, saltAndIV []byte) (encKey, macKey, iv []byte) {
	salt := saltAndIV[:32]
	iv = saltAndIV[32:48]

	h := sha512.New()
	h.Write(sharedSecret)
	h.Write(pairingKey)
	h.Write(salt)
	sum := h.Sum(nil)

	encKey = sum[:aesKeyLen]
	macKey = sum[aesKeyLen : 2*aesKeyLen]

	return encKey, macKey, iv
}

// VerifyCryptogram checks the card's PAIR step-1 cryptogram against the
// expected SHA-256(pbkdf2(pairingPass) || challenge) and returns the
// pairing secret hash to use for the rest of the PAIR exchange.
func VerifyCryptogram(challenge []byte, pairingPass string, cardCryptogram []byte) ([]byte, error) {
	secretHash := DerivePairingToken(pairingPass)

	h := sha256.New()
	h.Write(secretHash)
	h.Write(challenge)
	expected := h.Sum(nil)

	if !constantTimeEqual(expected, cardCryptogram) {
		return nil, ErrCryptogramMismatch
	}

	return secretHash, nil
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}

	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}

	return v == 0
}

// OneShotEncrypt builds the INIT-only payload: the client's ephemeral
// public key, a fresh random IV, and the plaintext (PIN||PUK||pairing
// token) encrypted under the raw ECDH secret. No MAC is applied — the
// card validates INIT's plaintext by semantic checks.
func OneShotEncrypt(pubKeyData, sharedSecret, plaintext []byte) ([]byte, error) {
	if len(sharedSecret) != aesKeyLen {
		return nil, ErrInvalidKeyLength
	}

	iv := make([]byte, aesBlockLen)
	if err := CSPRNGFill(iv); err != nil {
		return nil, err
	}

	padded := padBlock(plaintext)
	ciphertext, err := AESCBCEncrypt(sharedSecret, iv, padded)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 1+len(pubKeyData)+aesBlockLen+len(ciphertext))
	out = append(out, byte(len(pubKeyData)))
	out = append(out, pubKeyData...)
	out = append(out, iv...)
	out = append(out, ciphertext...)

	return out, nil
}

// Zero overwrites buf with zero bytes, used to scrub session keys and
// decrypted secrets once they are no longer needed.
func Zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
