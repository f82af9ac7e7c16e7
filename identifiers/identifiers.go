// Package identifiers holds the fixed byte strings used to address the
// Keycard applet instance on the card.
package identifiers

// KeycardAID is the 9-byte Application Identifier of the Keycard applet,
// used both to SELECT the instance and as the package/applet AID during
// installation.
var KeycardAID = []byte{0xA0, 0x00, 0x00, 0x08, 0x04, 0x00, 0x01, 0x01, 0x01}
