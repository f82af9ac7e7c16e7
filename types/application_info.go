package types

import (
	"errors"

	"github.com/keycardtech/keycard-go/apdu"
)

var ErrWrongApplicationInfoTemplate = errors.New("wrong application info template")

const (
	TagSelectResponsePreInitialized = uint8(0x80)
	TagApplicationStatusTemplate    = uint8(0xA3)
	TagApplicationInfoTemplate      = uint8(0xA4)

	tagInstanceUID   = uint8(0x8F)
	tagPublicKey     = uint8(0x80)
	tagVersion       = uint8(0x02)
	tagKeyUID        = uint8(0x8E)
	tagCapabilities  = uint8(0x8D)
	keyUIDLength     = 32
	pubKeyLength     = 65
	versionLength    = 2
)

// ApplicationInfo is the result of SELECT (spec.md §3). A pre-initialized
// card only carries SecureChannelPublicKey; every other field is only
// meaningful once Initialized is true.
type ApplicationInfo struct {
	Initialized             bool
	InstanceUID             []byte
	SecureChannelPublicKey  []byte
	VersionMajor            uint8
	VersionMinor            uint8
	AvailableSlots          uint8
	KeyUID                  []byte
	Capabilities            []byte
}

// HasSecureChannelCapability reports whether the card returned a
// secure-channel public key, true for both pre-initialized and
// initialized cards.
func (a *ApplicationInfo) HasSecureChannelCapability() bool {
	return len(a.SecureChannelPublicKey) == pubKeyLength
}

// HasKey reports whether the card currently has a BIP32 master key
// loaded (spec.md §3: "empty ⇒ no key loaded").
func (a *ApplicationInfo) HasKey() bool {
	return len(a.KeyUID) == keyUIDLength
}

// ParseApplicationInfo decodes the SELECT response, handling both the
// pre-initialized single-TLV form and the initialized composite 0xA4
// template (spec.md §3).
func ParseApplicationInfo(data []byte) (*ApplicationInfo, error) {
	if len(data) == 0 {
		return nil, ErrWrongApplicationInfoTemplate
	}

	info := &ApplicationInfo{}

	if data[0] == TagSelectResponsePreInitialized {
		info.SecureChannelPublicKey = data[2:]
		return info, nil
	}

	if data[0] != TagApplicationInfoTemplate {
		return nil, ErrWrongApplicationInfoTemplate
	}

	info.Initialized = true

	instanceUID, err := apdu.TLV(data).Path(TagApplicationInfoTemplate, tagInstanceUID)
	if err != nil {
		return nil, err
	}

	pubKey, err := apdu.TLV(data).Path(TagApplicationInfoTemplate, tagPublicKey)
	if err != nil {
		return nil, err
	}

	version, err := apdu.TLV(data).Path(TagApplicationInfoTemplate, tagVersion)
	if err != nil {
		return nil, err
	}

	availableSlots, err := apdu.PathN(data, 1, TagApplicationInfoTemplate, tagVersion)
	if err != nil {
		return nil, err
	}

	// keyUID is tolerated as empty ("no key loaded"); an outright missing
	// tag is treated the same way rather than as a parse failure.
	keyUID, err := apdu.PathN(data, 0, TagApplicationInfoTemplate, tagKeyUID)
	if err != nil {
		keyUID = []byte{}
	}

	// capabilities is optional; unknown/absent siblings are skipped
	// per the TLV tolerance rule (spec.md §4.5).
	capabilities, err := apdu.TLV(data).Path(TagApplicationInfoTemplate, tagCapabilities)
	if err != nil {
		capabilities = nil
	}

	info.InstanceUID = instanceUID
	info.SecureChannelPublicKey = pubKey
	if len(version) >= versionLength {
		info.VersionMajor = version[0]
		info.VersionMinor = version[1]
	}
	if len(availableSlots) == 1 {
		info.AvailableSlots = availableSlots[0]
	}
	info.KeyUID = keyUID
	info.Capabilities = capabilities

	return info, nil
}
