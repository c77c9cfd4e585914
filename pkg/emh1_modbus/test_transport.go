package emh1_modbus

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// TestTransport is a scripted in-memory transport for tests. Responses are
// queued per exact request frame and popped in order as the requests arrive.
// A queued nil stands for "no response" and makes the matching ReadLine time
// out.
type TestTransport struct {
	OpenErr  error
	WriteErr error
	// Writes records every frame written, in order.
	Writes []string
	// Cleared counts ClearInput calls.
	Cleared int

	opened    bool
	responses map[string][][]byte
	pending   [][]byte
}

func NewTestTransport() *TestTransport {
	return &TestTransport{
		responses: make(map[string][][]byte),
	}
}

// Stub queues responses for an exact request frame. Each matching write
// consumes one queued entry.
func (t *TestTransport) Stub(request []byte, responses ...[]byte) {
	key := string(request)
	t.responses[key] = append(t.responses[key], responses...)
}

func (t *TestTransport) Open() error {
	if t.OpenErr != nil {
		return t.OpenErr
	}
	t.opened = true
	return nil
}

func (t *TestTransport) Close() error {
	t.opened = false
	return nil
}

func (t *TestTransport) WriteFrame(frame []byte) error {
	t.Writes = append(t.Writes, string(frame))
	if t.WriteErr != nil {
		return t.WriteErr
	}
	key := string(frame)
	if queue := t.responses[key]; len(queue) > 0 {
		t.pending = append(t.pending, queue[0])
		t.responses[key] = queue[1:]
	}
	return nil
}

func (t *TestTransport) ReadLine() ([]byte, error) {
	if len(t.pending) == 0 {
		return nil, nil
	}
	line := t.pending[0]
	t.pending = t.pending[1:]
	return line, nil
}

func (t *TestTransport) ClearInput() {
	t.Cleared++
	t.pending = nil
}

// TestResponse renders message bytes the way the charger answers:
// '>' + uppercase hex + LRC + CRLF.
func TestResponse(message []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(responseStart)
	buf.WriteString(strings.ToUpper(hex.EncodeToString(message)))
	fmt.Fprintf(&buf, "%02X", ComputeLRC(message))
	buf.WriteString(frameEnd)
	return buf.Bytes()
}

// CreateTestDevice builds an opened device over the given transport with the
// wake-up delay removed.
func CreateTestDevice(transport Transport, cfg DeviceConfig) (*Device, error) {
	device, err := NewDevice(transport, cfg, nil)
	if err != nil {
		return nil, err
	}
	device.wakeDelay = 0
	if err := device.Open(); err != nil {
		return nil, err
	}
	return device, nil
}
