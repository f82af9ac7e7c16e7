package apdu

import (
	"bytes"
	"errors"
)

// ErrNoPaddingSentinel is returned by Unpad when the 0x80 sentinel byte
// that marks the start of padding cannot be found.
var ErrNoPaddingSentinel = errors.New("padding sentinel 0x80 not found")

// Pad implements ISO/IEC 9797-1 padding method 2: append 0x80, then
// enough 0x00 bytes to reach a multiple of blockSize. Always adds at
// least one byte, even when len(data) is already block-aligned.
func Pad(data []byte, blockSize int) []byte {
	padded := make([]byte, 0, len(data)+blockSize)
	padded = append(padded, data...)
	padded = append(padded, 0x80)

	for len(padded)%blockSize != 0 {
		padded = append(padded, 0x00)
	}

	return padded
}

// Unpad reverses Pad: it strips trailing zero bytes and the 0x80
// sentinel that precedes them.
func Unpad(data []byte) ([]byte, error) {
	idx := bytes.LastIndexByte(data, 0x80)
	if idx == -1 {
		return nil, ErrNoPaddingSentinel
	}

	for _, b := range data[idx+1:] {
		if b != 0x00 {
			return nil, ErrNoPaddingSentinel
		}
	}

	return data[:idx], nil
}
