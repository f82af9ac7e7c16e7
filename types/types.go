package types

// PairingInfo identifies a pairing slot on the card and the 32-byte key
// derived for it during PAIR (spec.md §3). The caller owns persisting
// this across power cycles; the core never stores it.
type PairingInfo struct {
	Key   []byte
	Index int
}

// Valid reports whether the pairing info could plausibly reference a
// real slot: a 32-byte key and an index below the card's slot count.
func (p *PairingInfo) Valid(availableSlotCount int) bool {
	return len(p.Key) == 32 && p.Index >= 0 && p.Index < availableSlotCount
}
