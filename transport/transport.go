// Package transport defines the byte-level port a CommandSet talks
// through: something that can shuttle raw APDU bytes to a card and
// back, whether that's PC/SC, NFC, or a scripted mock in tests.
package transport

import "errors"

var (
	// ErrDisconnected is returned when Transmit is called on a card
	// that is no longer present.
	ErrDisconnected = errors.New("transport: card disconnected")

	// ErrTimeout is returned when the underlying reader times out
	// waiting for a response.
	ErrTimeout = errors.New("transport: timeout")

	// ErrIO wraps a lower-level reader/writer failure that isn't a
	// disconnect or a timeout.
	ErrIO = errors.New("transport: io error")
)

// Transport carries raw APDU command/response bytes between the core
// and a physical or virtual card. Implementations are not required to
// be safe for concurrent use; the caller (Channel) serializes access.
type Transport interface {
	// Transmit sends a single APDU and returns the card's raw
	// response, SW1SW2 included.
	Transmit(apdu []byte) ([]byte, error)

	// IsConnected reports whether a card is currently present.
	IsConnected() bool
}
