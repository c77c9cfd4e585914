package emh1_modbus

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	requestStart  = ':'
	responseStart = '>'
	frameEnd      = "\r\n"

	// A response shorter than this cannot carry slave id, function code,
	// at least one data byte and the trailing LRC.
	minFrameChars = 13

	// MaxSlaveID is the highest addressable Modbus slave id.
	MaxSlaveID = 247
	// BroadcastID addresses every device on the link. Only used by the
	// wake-up sequence; broadcast requests are never answered.
	BroadcastID = 0
)

// DecodedFrame is a checksum-verified Modbus ASCII frame. Data holds every
// message byte after the function code, LRC excluded; for a 0x03 response the
// first data byte is the byte count.
type DecodedFrame struct {
	SlaveID  byte
	Function byte
	Data     []byte
	// Raw keeps the cleaned ASCII frame for diagnostics.
	Raw string
}

// ComputeLRC returns the Modbus ASCII checksum: the two's complement of the
// sum of all message bytes, truncated to 8 bits.
func ComputeLRC(message []byte) byte {
	var sum byte
	for _, b := range message {
		sum += b
	}
	return -sum
}

// EncodeFrame renders message bytes as a wire frame:
// ':' + uppercase hex + LRC + CRLF.
func EncodeFrame(message []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(requestStart)
	buf.WriteString(strings.ToUpper(hex.EncodeToString(message)))
	fmt.Fprintf(&buf, "%02X", ComputeLRC(message))
	buf.WriteString(frameEnd)
	return buf.Bytes()
}

// EncodeCommand builds the message [slaveID, function, address, tail...] and
// renders it as a wire frame. tail is the register count or write payload.
func EncodeCommand(slaveID byte, function byte, address uint16, tail ...byte) ([]byte, error) {
	if slaveID > MaxSlaveID {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlaveID, slaveID)
	}
	message := make([]byte, 0, 4+len(tail))
	message = append(message, slaveID, function, byte(address>>8), byte(address))
	message = append(message, tail...)
	return EncodeFrame(message), nil
}

// DecodeFrame validates a raw response line and returns the decoded frame.
// Garbage before the start marker is discarded: flaky links prepend noise.
// The device answers with a '>' marker instead of the standard ':'; both are
// accepted. Malformed input yields a typed error, never a panic.
func DecodeFrame(raw []byte) (*DecodedFrame, error) {
	line := strings.TrimSpace(string(raw))
	start := strings.IndexAny(line, ">:")
	if start < 0 {
		return nil, fmt.Errorf("%w: no start marker in %q", ErrMalformedFrame, line)
	}
	line = line[start:]
	if len(line) < minFrameChars {
		return nil, fmt.Errorf("%w: frame too short %q", ErrMalformedFrame, line)
	}
	message, err := hex.DecodeString(line[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedFrame, line)
	}
	received := message[len(message)-1]
	if computed := ComputeLRC(message[:len(message)-1]); computed != received {
		return nil, fmt.Errorf("%w: computed %02X, received %02X in %q",
			ErrChecksumMismatch, computed, received, line)
	}
	return &DecodedFrame{
		SlaveID:  message[0],
		Function: message[1],
		Data:     message[2 : len(message)-1],
		Raw:      line,
	}, nil
}
