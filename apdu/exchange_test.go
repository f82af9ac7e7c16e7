package apdu

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

type scriptedTransmitter struct {
	responses [][]byte
	i         int
	sent      [][]byte
}

func (s *scriptedTransmitter) Transmit(cmd []byte) ([]byte, error) {
	s.sent = append(s.sent, append([]byte{}, cmd...))
	resp := s.responses[s.i]
	s.i++
	return resp, nil
}

func TestExchangeSingleFrame(t *testing.T) {
	tr := &scriptedTransmitter{responses: [][]byte{{0x01, 0x02, 0x90, 0x00}}}

	resp, err := Exchange(tr, NewCommand(0x80, 0x20, 0, 0, nil))
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, resp.Data)
	assert.Equal(t, SwOK, resp.Sw)
	assert.Len(t, tr.sent, 1)
}

func TestExchangeMultiFrame(t *testing.T) {
	// S6: first response ends 61 20 (32 more bytes); GET RESPONSE is
	// issued with Le=0x20, final response terminates with 90 00.
	first := append(bytes.Repeat([]byte{0xAA}, 10), 0x61, 0x20)
	rest := append(bytes.Repeat([]byte{0xBB}, 32), 0x90, 0x00)

	tr := &scriptedTransmitter{responses: [][]byte{first, rest}}

	resp, err := Exchange(tr, NewCommand(0x80, 0xC2, 0, 0, nil))
	assert.NoError(t, err)
	assert.Equal(t, SwOK, resp.Sw)
	assert.Equal(t, append(bytes.Repeat([]byte{0xAA}, 10), bytes.Repeat([]byte{0xBB}, 32)...), resp.Data)

	assert.Len(t, tr.sent, 2)
	getResp := tr.sent[1]
	assert.Equal(t, []byte{0x00, 0xC0, 0x00, 0x00, 0x20}, getResp)
}
