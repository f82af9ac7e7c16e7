package keycard

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/keycardtech/keycard-go/apdu"
	"github.com/keycardtech/keycard-go/derivationpath"
)

// Command class bytes (spec.md §4.4, §6): claISO for SELECT, INIT,
// PAIR, OPEN SECURE CHANNEL, IDENTIFY, FACTORY RESET; claProprietary
// for every other, session-scoped command.
const (
	claISO         = 0x00
	claProprietary = 0x80
)

// Instruction bytes, per the wire table of spec.md §6.
const (
	insSelect               = 0xA4
	insInit                 = 0xFD
	insPair                 = 0x12
	insOpenSecureChannel    = 0x10
	insMutuallyAuthenticate = 0x11
	insUnpair               = 0x13
	insGetStatus            = 0xF2
	insVerifyPIN            = 0x20
	insChangePIN            = 0x21
	insUnblockPIN           = 0x22
	insLoadKey              = 0xD4
	insDeriveKey            = 0xD5
	insGenerateMnemonic     = 0xD6
	insRemoveKey            = 0xC0
	insSign                 = 0xC8
	insSetPinlessPath       = 0xC9
	insExportKey            = 0xC2
	insStoreData            = 0xE2
	insGetData              = 0xCA
	insIdentify             = 0x14
	insFactoryReset         = 0xFE
)

// P1/P2 values for the instructions above that carry a variant
// selector.
const (
	p1PairingFirstStep = 0x00
	p1PairingFinalStep = 0x01

	P1GetStatusApplication = 0x00
	P1GetStatusKeyPath     = 0x01

	p1DeriveFromMaster  = 0x00
	p1DeriveFromParent  = 0x40
	p1DeriveFromCurrent = 0x80

	p1ChangePIN           = 0x00
	p1ChangePUK           = 0x01
	p1ChangePairingSecret = 0x02

	// LOAD KEY (0xD4) has no on-card "generate" instruction of its own
	// in the wire table (spec.md §6 lists only LOAD KEY, but §4.4's
	// operation table groups "GENERATE KEY / LOAD SEED(64B) / REMOVE
	// KEY" together): p1LoadKeyGenerate asks the card to generate a
	// fresh key with no data, p1LoadKeySeed loads a 64-byte BIP32 seed.
	p1LoadKeyGenerate = 0x00
	p1LoadKeySeed     = 0x01

	P1SignCurrentKey           = 0x00
	P1SignDerive               = 0x01
	P1SignDeriveAndMakeCurrent = 0x02
	P1SignPinless              = 0x03
	p2Sign                     = 0x01

	P1ExportKeyCurrent              = 0x00
	P1ExportKeyDerive               = 0x01
	P1ExportKeyDeriveAndMakeCurrent = 0x02
	P2ExportKeyPrivateAndPublic     = 0x00
	P2ExportKeyPublicOnly           = 0x01
	P2ExportKeyExtendedPublic       = 0x02

	p1FactoryResetMagic = 0xAA
	p2FactoryResetMagic = 0xAA
)

func newISOCommand(ins, p1, p2 uint8, data []byte) *apdu.Command {
	return apdu.NewCommand(claISO, ins, p1, p2, data)
}

func newSessionCommand(ins, p1, p2 uint8, data []byte) *apdu.Command {
	return apdu.NewCommand(claProprietary, ins, p1, p2, data)
}

func encodePath(path []uint32) []byte {
	buf := new(bytes.Buffer)
	for _, segment := range path {
		binary.Write(buf, binary.BigEndian, segment)
	}
	return buf.Bytes()
}

func derivationP1(start derivationpath.StartingPoint) (uint8, error) {
	switch start {
	case derivationpath.StartingPointMaster:
		return p1DeriveFromMaster, nil
	case derivationpath.StartingPointParent:
		return p1DeriveFromParent, nil
	case derivationpath.StartingPointCurrent:
		return p1DeriveFromCurrent, nil
	default:
		return 0, fmt.Errorf("keycard: invalid derivation starting point %d", start)
	}
}

func newCommandSelect(aid []byte) *apdu.Command {
	cmd := newISOCommand(insSelect, 0x04, 0x00, aid)
	cmd.SetLe(0)
	return cmd
}

func newCommandInit(data []byte) *apdu.Command {
	return newISOCommand(insInit, 0, 0, data)
}

func newCommandPairFirstStep(challenge []byte) *apdu.Command {
	return newISOCommand(insPair, p1PairingFirstStep, 0, challenge)
}

func newCommandPairFinalStep(cryptogramHash []byte) *apdu.Command {
	return newISOCommand(insPair, p1PairingFinalStep, 0, cryptogramHash)
}

func newCommandUnpair(index uint8) *apdu.Command {
	return newSessionCommand(insUnpair, index, 0, nil)
}

func newCommandIdentify(challenge []byte) *apdu.Command {
	return newISOCommand(insIdentify, 0, 0, challenge)
}

func newCommandOpenSecureChannel(pairingIndex uint8, pubKey []byte) *apdu.Command {
	return newISOCommand(insOpenSecureChannel, pairingIndex, 0, pubKey)
}

func newCommandMutuallyAuthenticate(challenge []byte) *apdu.Command {
	return newSessionCommand(insMutuallyAuthenticate, 0, 0, challenge)
}

func newCommandGetStatus(p1 uint8) *apdu.Command {
	return newSessionCommand(insGetStatus, p1, 0, nil)
}

func newCommandVerifyPIN(pin string) *apdu.Command {
	return newSessionCommand(insVerifyPIN, 0, 0, []byte(pin))
}

func newCommandChangePIN(pin string) *apdu.Command {
	return newSessionCommand(insChangePIN, p1ChangePIN, 0, []byte(pin))
}

func newCommandChangePUK(puk string) *apdu.Command {
	return newSessionCommand(insChangePIN, p1ChangePUK, 0, []byte(puk))
}

func newCommandChangePairingSecret(token []byte) *apdu.Command {
	return newSessionCommand(insChangePIN, p1ChangePairingSecret, 0, token)
}

func newCommandUnblockPIN(puk, newPIN string) *apdu.Command {
	return newSessionCommand(insUnblockPIN, 0, 0, []byte(puk+newPIN))
}

func newCommandGenerateKey() *apdu.Command {
	return newSessionCommand(insLoadKey, p1LoadKeyGenerate, 0, nil)
}

func newCommandLoadSeed(seed []byte) *apdu.Command {
	return newSessionCommand(insLoadKey, p1LoadKeySeed, 0, seed)
}

func newCommandGenerateMnemonic(checksumSize uint8) *apdu.Command {
	return newSessionCommand(insGenerateMnemonic, checksumSize, 0, nil)
}

func newCommandRemoveKey() *apdu.Command {
	return newSessionCommand(insRemoveKey, 0, 0, nil)
}

func newCommandDeriveKey(pathStr string) (*apdu.Command, error) {
	start, path, err := derivationpath.Decode(pathStr)
	if err != nil {
		return nil, err
	}

	p1, err := derivationP1(start)
	if err != nil {
		return nil, err
	}

	return newSessionCommand(insDeriveKey, p1, 0, encodePath(path)), nil
}

func newCommandExportKey(p1, p2 uint8, pathStr string) (*apdu.Command, error) {
	start, path, err := derivationpath.Decode(pathStr)
	if err != nil {
		return nil, err
	}

	deriveP1, err := derivationP1(start)
	if err != nil {
		return nil, err
	}

	return newSessionCommand(insExportKey, p1|deriveP1, p2, encodePath(path)), nil
}

func newCommandSetPinlessPath(pathStr string) (*apdu.Command, error) {
	start, path, err := derivationpath.Decode(pathStr)
	if err != nil {
		return nil, err
	}

	if start != derivationpath.StartingPointMaster {
		return nil, ErrNonAbsolutePath
	}

	return newSessionCommand(insSetPinlessPath, 0, 0, encodePath(path)), nil
}

func newCommandSign(hash []byte, p1 uint8, pathStr string) (*apdu.Command, error) {
	if len(hash) != 32 {
		return nil, ErrBadHashLength
	}

	data := hash

	if p1 == P1SignDerive || p1 == P1SignDeriveAndMakeCurrent {
		_, path, err := derivationpath.Decode(pathStr)
		if err != nil {
			return nil, err
		}

		data = append(append([]byte{}, hash...), encodePath(path)...)
	}

	return newSessionCommand(insSign, p1, p2Sign, data), nil
}

func newCommandGetData(typ uint8) *apdu.Command {
	return newSessionCommand(insGetData, typ, 0, nil)
}

func newCommandStoreData(typ uint8, data []byte) *apdu.Command {
	return newSessionCommand(insStoreData, typ, 0, data)
}

func newCommandFactoryReset() *apdu.Command {
	return newISOCommand(insFactoryReset, p1FactoryResetMagic, p2FactoryResetMagic, nil)
}
