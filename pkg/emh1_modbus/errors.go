package emh1_modbus

import (
	"errors"
	"fmt"
)

var (
	// ErrPortClosed is returned by any operation on a device whose
	// transport is not open, including use after Close.
	ErrPortClosed = errors.New("emh1: port is not open")

	// ErrMalformedFrame marks a response that cannot be decoded: no start
	// marker, odd hex length, or too short to carry a payload.
	ErrMalformedFrame = errors.New("emh1: malformed frame")

	// ErrChecksumMismatch marks a structurally valid frame whose LRC does
	// not match the received checksum byte.
	ErrChecksumMismatch = errors.New("emh1: LRC checksum mismatch")

	// ErrUnexpectedResponse marks a decodable response that does not match
	// the expected command echo or register layout.
	ErrUnexpectedResponse = errors.New("emh1: unexpected response")

	// ErrNoResponse marks a transaction that timed out without any reply.
	ErrNoResponse = errors.New("emh1: no response from device")

	// ErrInvalidSlaveID is returned when building a command for a slave id
	// outside 0..247.
	ErrInvalidSlaveID = errors.New("emh1: slave id out of range")
)

// CurrentRangeError is returned by WriteCurrent before any I/O when the
// requested current is outside 0 or [MinCurrentAmps, configured max].
type CurrentRangeError struct {
	Amps uint8
	Min  uint8
	Max  uint8
}

func (e *CurrentRangeError) Error() string {
	return fmt.Sprintf("emh1: current %dA out of range (0 or %d..%d)", e.Amps, e.Min, e.Max)
}
