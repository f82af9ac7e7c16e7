package apdu

import (
	"bytes"
	"fmt"
	"io"
)

// ErrTagNotFound reports that tag does not appear at the level of a TLV
// sequence being searched.
type ErrTagNotFound struct {
	tag uint8
}

// Error implements the error interface.
func (e *ErrTagNotFound) Error() string {
	return fmt.Sprintf("apdu: tag %#x not found", e.tag)
}

// TLV is a BER-TLV encoded byte sequence as returned in APDU response
// data (spec.md §6): a run of one-byte tag, one-byte length, length
// bytes of value. The applet never emits multi-byte tags or lengths, so
// neither is supported here.
type TLV []byte

// Entry returns the value of the first top-level occurrence of tag.
func (t TLV) Entry(tag uint8) ([]byte, error) {
	return t.NthEntry(tag, 0)
}

// NthEntry returns the value of the (n+1)-th top-level occurrence of
// tag, skipping the first n matches.
func (t TLV) NthEntry(tag uint8, n int) ([]byte, error) {
	return findEntry(t, tag, n)
}

// Path walks a chain of nested templates: Path(a, b, c) finds tag a,
// searches its value for tag b, then searches that for tag c, and
// returns c's value. This is how response data nests a template tag
// (e.g. application info, application status) around the fields it
// carries.
func (t TLV) Path(tags ...uint8) ([]byte, error) {
	return PathN(t, 0, tags...)
}

// PathN is Path but returns the (n+1)-th occurrence of the final tag in
// the path, rather than its first.
func PathN(raw []byte, n int, tags ...uint8) ([]byte, error) {
	if len(tags) == 0 {
		return raw, nil
	}

	if len(tags) == 1 {
		return findEntry(raw, tags[0], n)
	}

	head, err := findEntry(raw, tags[0], 0)
	if err != nil {
		return nil, err
	}

	return PathN(head, n, tags[1:]...)
}

// findEntry does a single linear pass over raw looking for the
// (occurrence+1)-th entry tagged target.
func findEntry(raw []byte, target uint8, occurrence int) ([]byte, error) {
	buf := bytes.NewBuffer(raw)

	for {
		tag, err := buf.ReadByte()
		switch {
		case err == io.EOF:
			return nil, &ErrTagNotFound{target}
		case err != nil:
			return nil, err
		}

		length, err := buf.ReadByte()
		if err != nil {
			return nil, err
		}

		value := make([]byte, length)
		if length != 0 {
			if _, err := buf.Read(value); err != nil {
				return nil, err
			}
		}

		if tag != target {
			continue
		}

		if occurrence > 0 {
			occurrence--
			continue
		}

		return value, nil
	}
}
