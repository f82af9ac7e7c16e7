package keycard

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"sync"
	"time"

	ethlog "github.com/ethereum/go-ethereum/log"

	"github.com/keycardtech/keycard-go/apdu"
	"github.com/keycardtech/keycard-go/crypto"
	"github.com/keycardtech/keycard-go/transport"
	"github.com/keycardtech/keycard-go/types"
)

// swAuthenticationError is the card's "authentication cryptogram
// invalid" status, also seen (spec.md §4.3 hot-plug quirk) on the very
// first post-open command when the applet's crypto state hasn't caught
// up with the host yet.
const swAuthenticationError = uint16(0x6f05)

const hotPlugRetryDelay = 50 * time.Millisecond

// ErrMACMismatch is returned when a response's MAC does not match the
// locally computed one; the channel is desynchronized and must be
// reset before further use (spec.md §4.3, §7).
var ErrMACMismatch = errors.New("keycard: response MAC mismatch, secure channel desynchronized")

// SecureChannel implements the encrypt/MAC/decrypt/verify pipeline
// layered over a Transport once a card is paired and OPEN SECURE
// CHANNEL has run (spec.md §4.3). A SecureChannel is a single serial
// actor: Send holds a mutex for its entire request/response round trip
// so the running IV chain is never interleaved.
type SecureChannel struct {
	t transport.Transport

	mu sync.Mutex

	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	secret     []byte

	encKey []byte
	macKey []byte
	iv     []byte

	isOpen        bool
	firstExchange bool

	log ethlog.Logger
}

// NewSecureChannel builds a SecureChannel bound to t. No key material
// exists until GenerateSecret is called (spec.md §4.3 phase 1).
func NewSecureChannel(t transport.Transport) *SecureChannel {
	return &SecureChannel{
		t:   t,
		log: ethlog.New("pkg", "keycard/securechannel"),
	}
}

// GenerateSecret creates a fresh ephemeral secp256k1 key pair and
// derives the ECDH shared secret against the card's public key, as
// returned by SELECT for both pre-initialized and initialized cards
// (spec.md §4.3 phase 1).
func (sc *SecureChannel) GenerateSecret(cardPubKeyData []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	priv, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}

	cardPub, err := crypto.UnmarshalPubKey(cardPubKeyData)
	if err != nil {
		return err
	}

	sc.privateKey = priv
	sc.publicKey = &priv.PublicKey
	sc.secret = crypto.ECDH(priv, cardPub)

	return nil
}

// Reset clears any derived session keys and the running IV, closing
// the channel, while preserving the ephemeral key pair and ECDH secret
// so a subsequent OPEN SECURE CHANNEL can re-derive session keys
// without a fresh SELECT.
func (sc *SecureChannel) Reset() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	crypto.Zero(sc.encKey)
	crypto.Zero(sc.macKey)
	crypto.Zero(sc.iv)
	sc.encKey, sc.macKey, sc.iv = nil, nil, nil
	sc.isOpen = false
}

// Init installs the session keys and initial IV derived from OPEN
// SECURE CHANNEL's response (spec.md §4.3 phase 2). The channel is not
// considered open until MUTUALLY AUTHENTICATE succeeds; see Open.
func (sc *SecureChannel) Init(iv, encKey, macKey []byte) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.iv = iv
	sc.encKey = encKey
	sc.macKey = macKey
	sc.firstExchange = true
}

// Open marks the channel authenticated, called after MUTUALLY
// AUTHENTICATE returns SW=0x9000.
func (sc *SecureChannel) Open() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.isOpen = true
}

// IsOpen reports whether MUTUALLY AUTHENTICATE has succeeded and no
// desynchronizing error has occurred since.
func (sc *SecureChannel) IsOpen() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.isOpen
}

// Secret returns the ECDH shared secret computed in GenerateSecret.
func (sc *SecureChannel) Secret() []byte {
	return sc.secret
}

// PublicKey returns the client's ephemeral public key.
func (sc *SecureChannel) PublicKey() *ecdsa.PublicKey {
	return sc.publicKey
}

// RawPublicKey returns the uncompressed 65-byte encoding of PublicKey,
// the form OPEN SECURE CHANNEL sends as its command data.
func (sc *SecureChannel) RawPublicKey() []byte {
	return crypto.MarshalPubKey(sc.publicKey)
}

// OneShotEncrypt builds INIT's one-shot encrypted payload from secrets
// (spec.md §4.3 "One-shot encryption"), used before any session keys
// exist.
func (sc *SecureChannel) OneShotEncrypt(secrets *types.Secrets) ([]byte, error) {
	pubKeyData := crypto.MarshalPubKey(sc.publicKey)

	data := make([]byte, 0, len(secrets.Pin())+len(secrets.Puk())+32)
	data = append(data, secrets.Pin()...)
	data = append(data, secrets.Puk()...)
	data = append(data, secrets.PairingToken()...)

	return crypto.OneShotEncrypt(pubKeyData, sc.secret, data)
}

// Send implements the per-message pipeline of spec.md §4.3: encrypt
// and MAC the outgoing command, transmit and reassemble the response
// through the transport, then verify and decrypt it. A single mutex
// acquisition spans the whole round trip so the IV chain can never be
// interleaved by concurrent callers (spec.md §5, testable property 8).
func (sc *SecureChannel) Send(cmd *apdu.Command) (*apdu.Response, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	wire, err := sc.encryptCommand(cmd)
	if err != nil {
		sc.isOpen = false
		return nil, err
	}

	retryable := sc.firstExchange
	sc.firstExchange = false

	resp, err := apdu.Exchange(sc.t, wire)
	if err != nil {
		sc.isOpen = false
		return nil, err
	}

	if retryable && resp.Sw == swAuthenticationError {
		sc.log.Warn("keycard: hot-plug retry after authentication error", "sw", resp.Sw)
		time.Sleep(hotPlugRetryDelay)

		resp, err = apdu.Exchange(sc.t, wire)
		if err != nil {
			sc.isOpen = false
			return nil, err
		}
	}

	if resp.Sw != apdu.SwOK {
		return &apdu.Response{Sw: resp.Sw}, nil
	}

	return sc.decryptResponse(resp)
}

// encryptCommand runs the request half of the pipeline and advances
// the running IV to the newly computed MAC.
func (sc *SecureChannel) encryptCommand(cmd *apdu.Command) (*apdu.Command, error) {
	padded := apdu.Pad(cmd.Data, 16)

	ct, err := crypto.AESCBCEncrypt(sc.encKey, sc.iv, padded)
	if err != nil {
		return nil, err
	}

	meta := make([]byte, 16)
	meta[0], meta[1], meta[2], meta[3] = cmd.Cla, cmd.Ins, cmd.P1, cmd.P2
	meta[4] = byte(len(ct) + 16)

	mac, err := crypto.RetailMAC(sc.macKey, meta, ct)
	if err != nil {
		return nil, err
	}

	sc.iv = mac

	wireData := make([]byte, 0, len(mac)+len(ct))
	wireData = append(wireData, mac...)
	wireData = append(wireData, ct...)

	wire := apdu.NewCommand(cmd.Cla, cmd.Ins, cmd.P1, cmd.P2, wireData)
	if cmd.Le() != nil {
		wire.SetLe(*cmd.Le())
	}

	return wire, nil
}

// decryptResponse runs the response half of the pipeline: split
// rmac/rct, verify the MAC, decrypt and unpad, then split the trailing
// SW1SW2 back out of the plaintext.
func (sc *SecureChannel) decryptResponse(resp *apdu.Response) (*apdu.Response, error) {
	if len(resp.Data) < 16 {
		return nil, apdu.NewErrBadResponse(resp.Sw, "secure channel response too short")
	}

	rmac := resp.Data[:16]
	rct := resp.Data[16:]

	meta := make([]byte, 16)
	meta[0] = byte(len(resp.Data))

	mac, err := crypto.RetailMAC(sc.macKey, meta, rct)
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(mac, rmac) {
		sc.isOpen = false
		return nil, ErrMACMismatch
	}

	plainPadded, err := crypto.AESCBCDecrypt(sc.encKey, sc.iv, rct)
	if err != nil {
		sc.isOpen = false
		return nil, err
	}

	sc.iv = mac

	plain, err := apdu.Unpad(plainPadded)
	if err != nil {
		return nil, err
	}

	return apdu.ParseResponse(plain)
}
