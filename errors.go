package keycard

import (
	"errors"
	"fmt"
)

// State-category errors (spec.md §7): the session or card is not in the
// precondition state a command requires.
var (
	ErrSecureChannelNotOpen = errors.New("keycard: secure channel not open")
	ErrNoECDHSeed           = errors.New("keycard: no ECDH seed; SELECT an initialized card first")
	ErrNoPairingInfo        = errors.New("keycard: no pairing info; PAIR first")
	ErrPairingSlotsFull     = errors.New("keycard: no available pairing slots")
	ErrAlreadyInitialized   = errors.New("keycard: card already initialized")
)

// Validation-category errors (spec.md §7).
var (
	ErrBadHashLength    = errors.New("keycard: hash to sign must be 32 bytes")
	ErrBadSeedLength    = errors.New("keycard: seed to load must be 64 bytes")
	ErrNonAbsolutePath  = errors.New("keycard: pinless path must be absolute")
	ErrBadChecksumSize  = errors.New("keycard: mnemonic checksum size must be between 4 and 8")
)

// WrongPINError is returned by VerifyPIN when the card rejects the PIN;
// RemainingAttempts comes from SW=0x63Cn (spec.md §4.4, §7).
type WrongPINError struct {
	RemainingAttempts int
}

func (e *WrongPINError) Error() string {
	return fmt.Sprintf("keycard: wrong pin, %d attempts remaining", e.RemainingAttempts)
}

// WrongPUKError is the UnblockPIN analogue of WrongPINError.
type WrongPUKError struct {
	RemainingAttempts int
}

func (e *WrongPUKError) Error() string {
	return fmt.Sprintf("keycard: wrong puk, %d attempts remaining", e.RemainingAttempts)
}

// PINBlockedError is returned when the PIN retry counter has reached
// zero: the card requires UnblockPIN before VerifyPIN can succeed again.
type PINBlockedError struct{}

func (e *PINBlockedError) Error() string {
	return "keycard: pin blocked, unblock with the PUK"
}
