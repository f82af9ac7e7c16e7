package keycard

import (
	"github.com/keycardtech/keycard-go/apdu"
	"github.com/keycardtech/keycard-go/transport"
)

// Channel sends a command APDU and returns the decoded response. It is
// the abstraction CommandSet operates over: either a PlainChannel
// talking straight to the transport, or a *SecureChannel layering
// encryption and MAC over the same transport once a session is open.
type Channel interface {
	Send(*apdu.Command) (*apdu.Response, error)
}

// PlainChannel is a Channel with no cryptographic layering: it
// serializes the command, transmits it, and follows GET RESPONSE
// chaining (spec.md §4.1) to assemble a single logical response.
type PlainChannel struct {
	t transport.Transport
}

// NewPlainChannel wraps t as an unencrypted Channel, used for SELECT,
// PAIR, IDENTIFY and OPEN SECURE CHANNEL, all of which run before (or
// without) a secure session.
func NewPlainChannel(t transport.Transport) *PlainChannel {
	return &PlainChannel{t: t}
}

func (c *PlainChannel) Send(cmd *apdu.Command) (*apdu.Response, error) {
	return apdu.Exchange(c.t, cmd)
}
