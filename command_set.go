// Package keycard implements a client for the Keycard smart-card
// protocol: PIN-protected BIP32/BIP39 key management and ECDSA signing
// over an ISO 7816-4 APDU secure channel.
package keycard

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"

	ethlog "github.com/ethereum/go-ethereum/log"

	"github.com/keycardtech/keycard-go/apdu"
	"github.com/keycardtech/keycard-go/crypto"
	"github.com/keycardtech/keycard-go/identifiers"
	"github.com/keycardtech/keycard-go/transport"
	"github.com/keycardtech/keycard-go/types"
)

// swNoAvailablePairingSlots, swConditionsNotSatisfied and friends are
// the applet-defined status words a caller needs to branch on
// (spec.md §6, §7).
const (
	swNoAvailablePairingSlots = uint16(0x6A84)
	swWrongPINMask            = uint16(0xFFF0)
	swWrongPINPrefix          = uint16(0x63C0)
	swWrongPINCountMask       = uint16(0x000F)
)

// CommandSet is the public entry point of the library: one instance
// per card session, holding the plain and secure channels, the last
// SELECT result, and any established pairing (spec.md §2 component 5).
type CommandSet struct {
	plain Channel
	sc    *SecureChannel

	ApplicationInfo *types.ApplicationInfo
	PairingInfo     *types.PairingInfo

	lastError string
	log       ethlog.Logger
}

// NewCommandSet builds a CommandSet bound to t. No APDU is sent until
// Select is called.
func NewCommandSet(t transport.Transport) *CommandSet {
	return &CommandSet{
		plain: NewPlainChannel(t),
		sc:    NewSecureChannel(t),
		log:   ethlog.New("pkg", "keycard"),
	}
}

// LastError returns a human-readable description of the most recent
// failure, updated on every failing call (spec.md §7). The typed error
// each method returns remains authoritative; this is for logging.
func (cs *CommandSet) LastError() string {
	return cs.lastError
}

// SetPairingInfo installs a previously-established pairing so a caller
// can reconnect after a power cycle without repeating PAIR.
func (cs *CommandSet) SetPairingInfo(key []byte, index int) {
	cs.PairingInfo = &types.PairingInfo{Key: key, Index: index}
}

// Select sends SELECT for the Keycard AID, seeding the ECDH handshake
// state for both an initialized and a pre-initialized card (spec.md
// §4.3 phase 1, §4.4).
func (cs *CommandSet) Select() error {
	cmd := newCommandSelect(identifiers.KeycardAID)

	resp, err := cs.plain.Send(cmd)
	if err := cs.checkOK(resp, err); err != nil {
		return err
	}

	appInfo, err := types.ParseApplicationInfo(resp.Data)
	if err != nil {
		return cs.fail(err)
	}

	cs.ApplicationInfo = appInfo
	cs.log.Debug("select", "initialized", appInfo.Initialized)

	if appInfo.HasSecureChannelCapability() {
		if err := cs.sc.GenerateSecret(appInfo.SecureChannelPublicKey); err != nil {
			return cs.fail(err)
		}
		cs.sc.Reset()
	}

	return nil
}

// Init initializes a pre-initialized card with secrets, then re-SELECTs
// to refresh ApplicationInfo with the now-real Instance UID (spec.md
// §4.4, SPEC_FULL.md supplemented feature "re-SELECT after INIT").
func (cs *CommandSet) Init(secrets *types.Secrets) error {
	defer secrets.Wipe()

	if cs.ApplicationInfo == nil || cs.ApplicationInfo.Initialized {
		return cs.fail(ErrAlreadyInitialized)
	}

	data, err := cs.sc.OneShotEncrypt(secrets)
	if err != nil {
		return cs.fail(err)
	}

	resp, err := cs.plain.Send(newCommandInit(data))
	if err := cs.checkOK(resp, err); err != nil {
		return err
	}

	return cs.Select()
}

// Pair performs the two-step PAIR handshake against a random client
// challenge, verifying the card's cryptogram before sending the final
// step (spec.md §8 scenario S3: on mismatch, no step-2 APDU is sent).
func (cs *CommandSet) Pair(pairingPass string) error {
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return cs.fail(err)
	}

	resp, err := cs.plain.Send(newCommandPairFirstStep(challenge))
	if resp != nil && resp.Sw == swNoAvailablePairingSlots {
		return cs.fail(ErrPairingSlotsFull)
	}
	if err := cs.checkOK(resp, err); err != nil {
		return err
	}

	if len(resp.Data) < 64 {
		return cs.fail(apdu.NewErrBadResponse(resp.Sw, "pair step 1 response too short"))
	}

	cardCryptogram := resp.Data[:32]
	cardChallenge := resp.Data[32:64]

	secretHash, err := crypto.VerifyCryptogram(challenge, pairingPass, cardCryptogram)
	if err != nil {
		return cs.fail(err)
	}

	h := sha256.New()
	h.Write(secretHash)
	h.Write(cardChallenge)

	resp, err = cs.plain.Send(newCommandPairFinalStep(h.Sum(nil)))
	if err := cs.checkOK(resp, err); err != nil {
		return err
	}

	if len(resp.Data) < 1 {
		return cs.fail(apdu.NewErrBadResponse(resp.Sw, "pair step 2 response too short"))
	}

	h.Reset()
	h.Write(secretHash)
	h.Write(resp.Data[1:])

	cs.PairingInfo = &types.PairingInfo{
		Key:   h.Sum(nil),
		Index: int(resp.Data[0]),
	}

	return nil
}

// Unpair releases the pairing slot at index (spec.md §4.4).
func (cs *CommandSet) Unpair(index uint8) error {
	resp, err := cs.sendSecure(newCommandUnpair(index))
	return cs.checkOK(resp, err)
}

// OpenSecureChannel runs phase 2 of the handshake and then MUTUALLY
// AUTHENTICATE, leaving the SecureChannel open on success (spec.md
// §4.3).
func (cs *CommandSet) OpenSecureChannel() error {
	if cs.PairingInfo == nil {
		return cs.fail(ErrNoPairingInfo)
	}

	if cs.sc.Secret() == nil {
		return cs.fail(ErrNoECDHSeed)
	}

	resp, err := cs.plain.Send(newCommandOpenSecureChannel(uint8(cs.PairingInfo.Index), cs.sc.RawPublicKey()))
	if err := cs.checkOK(resp, err); err != nil {
		return err
	}

	if len(resp.Data) != 48 {
		return cs.fail(apdu.NewErrBadResponse(resp.Sw, "open secure channel response must carry salt||iv"))
	}

	encKey, macKey, iv := crypto.DeriveSessionKeys(cs.sc.Secret(), cs.PairingInfo.Key, resp.Data)
	cs.sc.Init(iv, encKey, macKey)

	return cs.mutuallyAuthenticate()
}

func (cs *CommandSet) mutuallyAuthenticate() error {
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return cs.fail(err)
	}

	resp, err := cs.sc.Send(newCommandMutuallyAuthenticate(challenge))
	if err := cs.checkOK(resp, err); err != nil {
		return err
	}

	cs.sc.Open()
	return nil
}

// GetStatus fetches either the ApplicationStatus (P1=0) or the current
// BIP32 key path as a status carrying only Path (P1=1) (spec.md §4.4).
func (cs *CommandSet) GetStatus(p1 uint8) (*types.ApplicationStatus, error) {
	resp, err := cs.sendSecure(newCommandGetStatus(p1))
	if err := cs.checkOK(resp, err); err != nil {
		return nil, err
	}

	if p1 == P1GetStatusKeyPath {
		status, err := types.ParseKeyPathStatus(resp.Data)
		return status, cs.wrap(err)
	}

	status, err := types.ParseApplicationStatus(resp.Data)
	return status, cs.wrap(err)
}

// GetStatusApplication is GetStatus(P1GetStatusApplication).
func (cs *CommandSet) GetStatusApplication() (*types.ApplicationStatus, error) {
	return cs.GetStatus(P1GetStatusApplication)
}

// GetStatusKeyPath is GetStatus(P1GetStatusKeyPath).
func (cs *CommandSet) GetStatusKeyPath() (*types.ApplicationStatus, error) {
	return cs.GetStatus(P1GetStatusKeyPath)
}

// VerifyPIN authenticates pin against the card; on a wrong PIN the
// remaining attempt count is parsed out of SW=0x63Cn and returned as a
// *WrongPINError (spec.md §4.4, §7).
func (cs *CommandSet) VerifyPIN(pin string) error {
	resp, err := cs.sendSecure(newCommandVerifyPIN(pin))
	if err := cs.checkOK(resp, err); err != nil {
		if remaining, ok := wrongPINAttempts(resp); ok {
			if remaining == 0 {
				return cs.fail(&PINBlockedError{})
			}
			return cs.fail(&WrongPINError{RemainingAttempts: remaining})
		}
		return err
	}

	return nil
}

// ChangePIN replaces the current PIN.
func (cs *CommandSet) ChangePIN(pin string) error {
	resp, err := cs.sendSecure(newCommandChangePIN(pin))
	return cs.checkOK(resp, err)
}

// ChangePUK replaces the current PUK.
func (cs *CommandSet) ChangePUK(puk string) error {
	resp, err := cs.sendSecure(newCommandChangePUK(puk))
	return cs.checkOK(resp, err)
}

// ChangePairingSecret replaces the pairing password used by future
// PAIR calls.
func (cs *CommandSet) ChangePairingSecret(pairingPass string) error {
	resp, err := cs.sendSecure(newCommandChangePairingSecret(crypto.DerivePairingToken(pairingPass)))
	return cs.checkOK(resp, err)
}

// UnblockPIN clears a blocked PIN using the PUK, per spec.md §4.4.
func (cs *CommandSet) UnblockPIN(puk, newPIN string) error {
	resp, err := cs.sendSecure(newCommandUnblockPIN(puk, newPIN))
	if err := cs.checkOK(resp, err); err != nil {
		if remaining, ok := wrongPINAttempts(resp); ok {
			return cs.fail(&WrongPUKError{RemainingAttempts: remaining})
		}
		return err
	}

	return nil
}

// GenerateKey asks the card to generate a fresh BIP32 master key
// on-card, returning its Key UID.
func (cs *CommandSet) GenerateKey() ([]byte, error) {
	resp, err := cs.sendSecure(newCommandGenerateKey())
	if err := cs.checkOK(resp, err); err != nil {
		return nil, err
	}

	return resp.Data, nil
}

// LoadSeed loads a 64-byte BIP32 seed as the card's master key,
// returning its Key UID.
func (cs *CommandSet) LoadSeed(seed []byte) ([]byte, error) {
	if len(seed) != 64 {
		return nil, cs.fail(ErrBadSeedLength)
	}

	resp, err := cs.sendSecure(newCommandLoadSeed(seed))
	if err := cs.checkOK(resp, err); err != nil {
		return nil, err
	}

	return resp.Data, nil
}

// GenerateMnemonic asks the card for a fresh BIP39 mnemonic, returned
// as wordlist indices (the card returns indices, not words; spec.md §1
// non-goals excludes wordlist lookup from the core).
func (cs *CommandSet) GenerateMnemonic(checksumSize int) ([]int, error) {
	if checksumSize < 4 || checksumSize > 8 {
		return nil, cs.fail(ErrBadChecksumSize)
	}

	resp, err := cs.sendSecure(newCommandGenerateMnemonic(uint8(checksumSize)))
	if err := cs.checkOK(resp, err); err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(resp.Data)
	indexes := make([]int, 0, len(resp.Data)/2)
	for {
		var index uint16
		if err := binary.Read(buf, binary.BigEndian, &index); err != nil {
			break
		}
		indexes = append(indexes, int(index))
	}

	return indexes, nil
}

// RemoveKey wipes the card's current key.
func (cs *CommandSet) RemoveKey() error {
	resp, err := cs.sendSecure(newCommandRemoveKey())
	return cs.checkOK(resp, err)
}

// DeriveKey moves the card's current key to path.
func (cs *CommandSet) DeriveKey(path string) error {
	cmd, err := newCommandDeriveKey(path)
	if err != nil {
		return cs.fail(err)
	}

	resp, err := cs.sendSecure(cmd)
	return cs.checkOK(resp, err)
}

// ExportKey exports the public key (and, unless onlyPublic, the
// private key) at path, optionally deriving to it first and optionally
// making the derived path current (spec.md §4.4).
func (cs *CommandSet) ExportKey(derive, makeCurrent, onlyPublic bool, path string) (*types.ExportedKey, error) {
	var p1 uint8
	switch {
	case !derive:
		p1 = P1ExportKeyCurrent
	case !makeCurrent:
		p1 = P1ExportKeyDerive
	default:
		p1 = P1ExportKeyDeriveAndMakeCurrent
	}

	p2 := uint8(P2ExportKeyPrivateAndPublic)
	if onlyPublic {
		p2 = P2ExportKeyPublicOnly
	}

	cmd, err := newCommandExportKey(p1, p2, path)
	if err != nil {
		return nil, cs.fail(err)
	}

	resp, err := cs.sendSecure(cmd)
	if err := cs.checkOK(resp, err); err != nil {
		return nil, err
	}

	key, err := types.ParseExportKeyResponse(resp.Data)
	return key, cs.wrap(err)
}

// SetPinlessPath restricts SignPinless to signatures under the given
// absolute path.
func (cs *CommandSet) SetPinlessPath(path string) error {
	cmd, err := newCommandSetPinlessPath(path)
	if err != nil {
		return cs.fail(err)
	}

	resp, err := cs.sendSecure(cmd)
	return cs.checkOK(resp, err)
}

// Sign signs hash (32 bytes) with the card's current key.
func (cs *CommandSet) Sign(hash []byte) (*types.Signature, error) {
	cmd, err := newCommandSign(hash, P1SignCurrentKey, "")
	if err != nil {
		return nil, cs.fail(err)
	}

	resp, err := cs.sendSecure(cmd)
	if err := cs.checkOK(resp, err); err != nil {
		return nil, err
	}

	sig, err := types.ParseSignature(hash, resp.Data)
	return sig, cs.wrap(err)
}

// SignWithPath derives to path first, then signs hash.
func (cs *CommandSet) SignWithPath(hash []byte, path string) (*types.Signature, error) {
	cmd, err := newCommandSign(hash, P1SignDerive, path)
	if err != nil {
		return nil, cs.fail(err)
	}

	resp, err := cs.sendSecure(cmd)
	if err := cs.checkOK(resp, err); err != nil {
		return nil, err
	}

	sig, err := types.ParseSignature(hash, resp.Data)
	return sig, cs.wrap(err)
}

// SignPinless signs hash under the card's configured pinless path,
// without requiring VerifyPIN first; it is sent over the plain channel
// per the applet's PIN-exempt design for this one instruction.
func (cs *CommandSet) SignPinless(hash []byte) (*types.Signature, error) {
	cmd, err := newCommandSign(hash, P1SignPinless, "")
	if err != nil {
		return nil, cs.fail(err)
	}

	resp, err := cs.sendSecure(cmd)
	if err := cs.checkOK(resp, err); err != nil {
		return nil, err
	}

	sig, err := types.ParseSignature(hash, resp.Data)
	return sig, cs.wrap(err)
}

// GetData reads the arbitrary-data slot typ.
func (cs *CommandSet) GetData(typ uint8) ([]byte, error) {
	resp, err := cs.sendSecure(newCommandGetData(typ))
	if err := cs.checkOK(resp, err); err != nil {
		return nil, err
	}

	return resp.Data, nil
}

// StoreData writes data to the arbitrary-data slot typ.
func (cs *CommandSet) StoreData(typ uint8, data []byte) error {
	resp, err := cs.sendSecure(newCommandStoreData(typ, data))
	return cs.checkOK(resp, err)
}

// Identify signs challenge (or a fresh random 32 bytes if nil) with
// the card's identity key over the plain channel; per spec.md §9 this
// does not require a secure channel, though no applet test vector
// confirms that against the reference.
func (cs *CommandSet) Identify(challenge []byte) (*types.Signature, error) {
	if challenge == nil {
		challenge = make([]byte, 32)
		if _, err := rand.Read(challenge); err != nil {
			return nil, cs.fail(err)
		}
	}

	resp, err := cs.plain.Send(newCommandIdentify(challenge))
	if err := cs.checkOK(resp, err); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(challenge)
	sig, err := types.ParseSignature(sum[:], resp.Data)
	return sig, cs.wrap(err)
}

// FactoryReset wipes the card, short-circuiting if SELECT reports it
// is already pre-initialized (spec.md §4.4). On success all local
// session state is cleared.
func (cs *CommandSet) FactoryReset() error {
	if err := cs.Select(); err != nil {
		return err
	}

	if !cs.ApplicationInfo.Initialized {
		return nil
	}

	resp, err := cs.plain.Send(newCommandFactoryReset())
	if err := cs.checkOK(resp, err); err != nil {
		return err
	}

	cs.sc.Reset()
	cs.PairingInfo = nil
	cs.ApplicationInfo = &types.ApplicationInfo{}

	return nil
}

// sendSecure sends cmd over the secure channel, failing fast with
// ErrSecureChannelNotOpen when MUTUALLY AUTHENTICATE has not yet
// succeeded rather than letting the AES layer fail on a missing key
// (spec.md §7 State-category error).
func (cs *CommandSet) sendSecure(cmd *apdu.Command) (*apdu.Response, error) {
	if !cs.sc.IsOpen() {
		return nil, ErrSecureChannelNotOpen
	}

	return cs.sc.Send(cmd)
}

func wrongPINAttempts(resp *apdu.Response) (int, bool) {
	if resp == nil {
		return 0, false
	}

	if resp.Sw&swWrongPINMask != swWrongPINPrefix {
		return 0, false
	}

	return int(resp.Sw & swWrongPINCountMask), true
}

// checkOK returns nil when resp.Sw == apdu.SwOK, translating any other
// outcome into a typed error and recording it via fail.
func (cs *CommandSet) checkOK(resp *apdu.Response, err error) error {
	if err != nil {
		return cs.fail(err)
	}

	if resp.Sw != apdu.SwOK {
		return cs.fail(apdu.NewErrBadResponse(resp.Sw, "unexpected status word"))
	}

	return nil
}

func (cs *CommandSet) fail(err error) error {
	cs.lastError = err.Error()
	cs.log.Debug("command failed", "err", err)
	return err
}

func (cs *CommandSet) wrap(err error) error {
	if err != nil {
		return cs.fail(err)
	}
	return nil
}
