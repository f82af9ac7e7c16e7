package apdu

// Command is an ISO 7816-4 command APDU in short (non-extended) form.
type Command struct {
	Cla  uint8
	Ins  uint8
	P1   uint8
	P2   uint8
	Data []byte
	le   *uint8
}

// NewCommand builds a command APDU with the given header and data.
func NewCommand(cla, ins, p1, p2 uint8, data []byte) *Command {
	return &Command{
		Cla:  cla,
		Ins:  ins,
		P1:   p1,
		P2:   p2,
		Data: data,
	}
}

// SetLe sets the expected response length (Le). 0 means 256 bytes.
func (c *Command) SetLe(le uint8) {
	c.le = &le
}

// Le returns the expected response length set via SetLe, or nil if
// none was set.
func (c *Command) Le() *uint8 {
	return c.le
}

// Serialize encodes the command as wire bytes: header, optional Lc+data,
// optional Le. Extended length is never used by this protocol.
func (c *Command) Serialize() []byte {
	buf := make([]byte, 0, 5+len(c.Data)+1)
	buf = append(buf, c.Cla, c.Ins, c.P1, c.P2)

	if len(c.Data) > 0 {
		buf = append(buf, uint8(len(c.Data)))
		buf = append(buf, c.Data...)
	}

	if c.le != nil {
		buf = append(buf, *c.le)
	}

	return buf
}
