package types

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/keycardtech/keycard-go/apdu"
)

const hardenedStart = 0x80000000 // 2^31

var ErrApplicationStatusTemplateNotFound = errors.New("application status template not found")

// ApplicationStatus is the result of GET STATUS (spec.md §3). Path is
// only populated by ParseKeyPathStatus (GET STATUS P1=1).
type ApplicationStatus struct {
	PinRetryCount  int
	PUKRetryCount  int
	KeyInitialized bool
	Path           string
}

// ParseApplicationStatus decodes GET STATUS P1=0 (the 0xA3 template)
// responses.
func ParseApplicationStatus(data []byte) (*ApplicationStatus, error) {
	tpl, err := apdu.TLV(data).Entry(TagApplicationStatusTemplate)
	if err != nil {
		return nil, ErrApplicationStatusTemplateNotFound
	}

	status := &ApplicationStatus{}

	if pinRetryCount, err := apdu.TLV(tpl).Entry(0x02); err == nil && len(pinRetryCount) == 1 {
		status.PinRetryCount = int(pinRetryCount[0])
	}

	if pukRetryCount, err := apdu.TLV(tpl).NthEntry(0x02, 1); err == nil && len(pukRetryCount) == 1 {
		status.PUKRetryCount = int(pukRetryCount[0])
	}

	if keyInitialized, err := apdu.TLV(tpl).Entry(0x01); err == nil {
		if bytes.Equal(keyInitialized, []byte{0xFF}) {
			status.KeyInitialized = true
		}
	}

	return status, nil
}

// ParseKeyPathStatus decodes GET STATUS P1=1 responses: a sequence of
// big-endian u32 path components with the hardened bit set on any
// hardened segment.
func ParseKeyPathStatus(data []byte) (*ApplicationStatus, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("key path status must be a multiple of 4 bytes, got %d", len(data))
	}

	buf := bytes.NewBuffer(data)
	rawPath := make([]uint32, buf.Len()/4)
	if err := binary.Read(buf, binary.BigEndian, &rawPath); err != nil {
		return nil, err
	}

	segments := []string{"m"}
	for _, i := range rawPath {
		suffix := ""
		if i >= hardenedStart {
			i -= hardenedStart
			suffix = "'"
		}
		segments = append(segments, fmt.Sprintf("%d%s", i, suffix))
	}

	return &ApplicationStatus{Path: strings.Join(segments, "/")}, nil
}
