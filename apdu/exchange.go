package apdu

// insGetResponse is the ISO 7816-4 GET RESPONSE instruction used to pull
// trailing data indicated by a 0x61xx status word.
const insGetResponse = 0xC0

// Transmitter is the minimal synchronous round-trip a transport must
// provide: raw command bytes in, raw response bytes out.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Exchange sends cmd over t and, if the card reports more data pending
// (SW1=0x61), repeatedly issues GET RESPONSE until a terminal status word
// is reached, concatenating the response data. The caller sees a single
// contiguous payload regardless of how many frames the card split it
// into (spec.md §8, scenario S6).
func Exchange(t Transmitter, cmd *Command) (*Response, error) {
	raw, err := t.Transmit(cmd.Serialize())
	if err != nil {
		return nil, err
	}

	resp, err := ParseResponse(raw)
	if err != nil {
		return nil, err
	}

	data := append([]byte{}, resp.Data...)

	for {
		more, remaining := HasMoreData(resp.Sw)
		if !more {
			break
		}

		getResp := NewCommand(0x00, insGetResponse, 0x00, 0x00, nil)
		getResp.SetLe(remaining)

		raw, err = t.Transmit(getResp.Serialize())
		if err != nil {
			return nil, err
		}

		resp, err = ParseResponse(raw)
		if err != nil {
			return nil, err
		}

		data = append(data, resp.Data...)
	}

	return &Response{Data: data, Sw: resp.Sw}, nil
}
