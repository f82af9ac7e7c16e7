package types

import (
	"github.com/keycardtech/keycard-go/apdu"
)

const (
	TagExportKeyTemplate = uint8(0xA1)
	tagExportKeyPublic   = uint8(0x80)
	tagExportKeyPrivate  = uint8(0x81)
)

// ExportedKey is the result of EXPORT KEY (spec.md §4.4). PrivateKey is
// only present when the card was asked to export the private component
// (EXPORT KEY type=1); a public-only export leaves it nil.
type ExportedKey struct {
	PublicKey  []byte
	PrivateKey []byte
}

// ParseExportKeyResponse decodes the 0xA1 template returned by EXPORT
// KEY, tolerating a missing private-key sibling for public-only
// exports.
func ParseExportKeyResponse(data []byte) (*ExportedKey, error) {
	tpl, err := apdu.TLV(data).Entry(TagExportKeyTemplate)
	if err != nil {
		return nil, err
	}

	pubKey, err := apdu.TLV(tpl).Entry(tagExportKeyPublic)
	if err != nil {
		return nil, err
	}

	key := &ExportedKey{PublicKey: pubKey}

	if privKey, err := apdu.TLV(tpl).Entry(tagExportKeyPrivate); err == nil {
		key.PrivateKey = privKey
	}

	return key, nil
}
