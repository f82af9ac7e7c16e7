package keycard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keycardtech/keycard-go/crypto"
	"github.com/keycardtech/keycard-go/transport"
)

func preInitializedSelectResponse(t *testing.T) []byte {
	t.Helper()

	cardKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	pub := crypto.MarshalPubKey(&cardKey.PublicKey)

	resp := []byte{0x80, byte(len(pub))}
	resp = append(resp, pub...)
	resp = append(resp, 0x90, 0x00)
	return resp
}

func TestSelectPreInitializedSeedsECDH(t *testing.T) {
	mt := transport.NewMockTransport()
	mt.Add(preInitializedSelectResponse(t))

	cs := NewCommandSet(mt)
	require.NoError(t, cs.Select())

	assert.False(t, cs.ApplicationInfo.Initialized)
	assert.True(t, cs.ApplicationInfo.HasSecureChannelCapability())
	assert.NotNil(t, cs.sc.Secret())
}

func TestPairWrongPasswordSendsNoSecondStep(t *testing.T) {
	mt := transport.NewMockTransport()

	cardCryptogram := make([]byte, 32)
	cardChallenge := make([]byte, 32)
	step1 := append(append([]byte{}, cardCryptogram...), cardChallenge...)
	step1 = append(step1, 0x90, 0x00)
	mt.Add(step1)

	cs := NewCommandSet(mt)
	err := cs.Pair("definitely-the-wrong-password")

	assert.ErrorIs(t, err, crypto.ErrCryptogramMismatch)
	assert.Nil(t, cs.PairingInfo)
}

func TestPairStopsOnNoAvailableSlots(t *testing.T) {
	mt := transport.NewMockTransport()
	mt.Add([]byte{0x6A, 0x84})

	cs := NewCommandSet(mt)
	err := cs.Pair("whatever123")

	assert.ErrorIs(t, err, ErrPairingSlotsFull)
}

func TestVerifyPINWrongAttemptsRemaining(t *testing.T) {
	mt := transport.NewMockTransport()
	mt.Add([]byte{0x63, 0xC2})

	cs := NewCommandSet(mt)
	encKey, macKey, iv := fixedSessionKeys()
	cs.sc.Init(iv, encKey, macKey)
	cs.sc.Open()

	err := cs.VerifyPIN("000000")

	var wrongPIN *WrongPINError
	require.ErrorAs(t, err, &wrongPIN)
	assert.Equal(t, 2, wrongPIN.RemainingAttempts)
}

func TestVerifyPINBlockedOnZeroRemainingAttempts(t *testing.T) {
	mt := transport.NewMockTransport()
	mt.Add([]byte{0x63, 0xC0})

	cs := NewCommandSet(mt)
	encKey, macKey, iv := fixedSessionKeys()
	cs.sc.Init(iv, encKey, macKey)
	cs.sc.Open()

	err := cs.VerifyPIN("000000")

	var blocked *PINBlockedError
	require.ErrorAs(t, err, &blocked)
}

func TestVerifyPINSuccess(t *testing.T) {
	encKey, macKey, iv := fixedSessionKeys()

	mt := transport.NewMockTransport()
	cs := NewCommandSet(mt)
	cs.sc.Init(iv, encKey, macKey)
	cs.sc.Open()

	_, ivAfterRequest := wireFor(t, encKey, macKey, iv, newCommandVerifyPIN("123456"))
	envelope := cardEncryptResponse(t, encKey, macKey, ivAfterRequest, []byte{})
	mt.Add(append(envelope, 0x90, 0x00))

	require.NoError(t, cs.VerifyPIN("123456"))
}

func TestFactoryResetShortCircuitsWhenNotInitialized(t *testing.T) {
	mt := transport.NewMockTransport()
	mt.Add(preInitializedSelectResponse(t))

	cs := NewCommandSet(mt)
	require.NoError(t, cs.FactoryReset())
}

func TestOpenSecureChannelRequiresPairingInfo(t *testing.T) {
	cs := NewCommandSet(transport.NewMockTransport())
	err := cs.OpenSecureChannel()
	assert.ErrorIs(t, err, ErrNoPairingInfo)
}

func TestSignRejectsBadHashLength(t *testing.T) {
	cs := NewCommandSet(transport.NewMockTransport())
	_, err := cs.Sign([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrBadHashLength)
}

func TestLoadSeedRejectsBadLength(t *testing.T) {
	cs := NewCommandSet(transport.NewMockTransport())
	_, err := cs.LoadSeed([]byte{0x01})
	assert.ErrorIs(t, err, ErrBadSeedLength)
}

func TestGenerateMnemonicRejectsBadChecksumSize(t *testing.T) {
	cs := NewCommandSet(transport.NewMockTransport())
	_, err := cs.GenerateMnemonic(20)
	assert.ErrorIs(t, err, ErrBadChecksumSize)
}

func TestSetPinlessPathRejectsNonAbsolutePath(t *testing.T) {
	cs := NewCommandSet(transport.NewMockTransport())
	err := cs.SetPinlessPath("../0/1")
	assert.ErrorIs(t, err, ErrNonAbsolutePath)
}

func TestSetPinlessPathRejectsRelativeCurrentAndParent(t *testing.T) {
	cs := NewCommandSet(transport.NewMockTransport())

	err := cs.SetPinlessPath(".")
	assert.ErrorIs(t, err, ErrNonAbsolutePath)

	err = cs.SetPinlessPath("..")
	assert.ErrorIs(t, err, ErrNonAbsolutePath)
}

func TestGetStatusRequiresOpenSecureChannel(t *testing.T) {
	cs := NewCommandSet(transport.NewMockTransport())
	_, err := cs.GetStatus(P1GetStatusApplication)
	assert.ErrorIs(t, err, ErrSecureChannelNotOpen)
}

func TestLastErrorTracksMostRecentFailure(t *testing.T) {
	cs := NewCommandSet(transport.NewMockTransport())
	_, err := cs.Sign([]byte{0x01})
	require.Error(t, err)
	assert.Equal(t, err.Error(), cs.LastError())
}

func TestGetStatusKeyPath(t *testing.T) {
	encKey, macKey, iv := fixedSessionKeys()

	mt := transport.NewMockTransport()
	cs := NewCommandSet(mt)
	cs.sc.Init(iv, encKey, macKey)
	cs.sc.Open()

	_, ivAfterRequest := wireFor(t, encKey, macKey, iv, newCommandGetStatus(P1GetStatusKeyPath))
	path := []byte{0x80, 0x00, 0x00, 0x2C, 0x80, 0x00, 0x00, 0x00}
	envelope := cardEncryptResponse(t, encKey, macKey, ivAfterRequest, path)
	mt.Add(append(envelope, 0x90, 0x00))

	status, err := cs.GetStatusKeyPath()
	require.NoError(t, err)
	assert.Equal(t, "m/44'/0'", status.Path)
}

func TestUnpairSendsOverSecureChannel(t *testing.T) {
	encKey, macKey, iv := fixedSessionKeys()

	mt := transport.NewMockTransport()
	cs := NewCommandSet(mt)
	cs.sc.Init(iv, encKey, macKey)
	cs.sc.Open()

	_, ivAfterRequest := wireFor(t, encKey, macKey, iv, newCommandUnpair(0))
	envelope := cardEncryptResponse(t, encKey, macKey, ivAfterRequest, []byte{})
	mt.Add(append(envelope, 0x90, 0x00))

	require.NoError(t, cs.Unpair(0))
}
