package emh1_modbus

import (
	"errors"
	"testing"
	"time"
)

func newTestDevice(t *testing.T) (*Device, *TestTransport) {
	t.Helper()
	transport := NewTestTransport()
	device, err := CreateTestDevice(transport, DeviceConfig{
		SlaveID:        1,
		MaxCurrentAmps: 16,
	})
	if err != nil {
		t.Fatal(err)
	}
	return device, transport
}

func mustCommand(t *testing.T, build func(byte) ([]byte, error), slaveID byte) []byte {
	t.Helper()
	frame, err := build(slaveID)
	if err != nil {
		t.Fatal(err)
	}
	return frame
}

func TestNewDeviceValidation(t *testing.T) {
	if _, err := NewDevice(NewTestTransport(), DeviceConfig{SlaveID: 0, MaxCurrentAmps: 16}, nil); !errors.Is(err, ErrInvalidSlaveID) {
		t.Errorf("slave 0: %v", err)
	}
	if _, err := NewDevice(NewTestTransport(), DeviceConfig{SlaveID: 248, MaxCurrentAmps: 16}, nil); !errors.Is(err, ErrInvalidSlaveID) {
		t.Errorf("slave 248: %v", err)
	}
	if _, err := NewDevice(NewTestTransport(), DeviceConfig{SlaveID: 1, MaxCurrentAmps: 4}, nil); err == nil {
		t.Error("max current below minimum accepted")
	}
}

func TestReadAllData(t *testing.T) {
	device, transport := newTestDevice(t)
	transport.Stub(mustCommand(t, readCurrentCommand, 1),
		TestResponse([]byte{0x01, 0x03, 0x06, 0x33, 0x80, 0xC2, 0x0E, 0x0E, 0x0E}))

	data, err := device.ReadAllData()
	if err != nil {
		t.Fatal(err)
	}
	if !data.Available {
		t.Fatal("expected available")
	}
	if data.State != StateEVCharged || !data.ChargingEnabled {
		t.Errorf("state = %v, enabled = %v", data.State, data.ChargingEnabled)
	}
	if !device.IsChargingEnabled() {
		t.Error("cached state should report charging")
	}
	if state, ok := device.State(); !ok || state != StateEVCharged {
		t.Errorf("cached state = %v, %v", state, ok)
	}
	if len(transport.Writes) != 1 {
		t.Errorf("writes = %d, want 1", len(transport.Writes))
	}
}

func TestReadAllDataRetriesAfterWakeUp(t *testing.T) {
	device, transport := newTestDevice(t)
	transport.Stub(mustCommand(t, readCurrentCommand, 1),
		nil,
		TestResponse([]byte{0x01, 0x03, 0x06, 0x00, 0xA0, 0xB1, 0x0E, 0x0E, 0x0E}))

	data, err := device.ReadAllData()
	if err != nil {
		t.Fatal(err)
	}
	if !data.Available {
		t.Fatal("expected available after retry")
	}
	if data.State != StateEVAskingForCharge {
		t.Errorf("state = %v", data.State)
	}
	// read, three wake-up messages, read again
	if len(transport.Writes) != 5 {
		t.Errorf("writes = %d, want 5", len(transport.Writes))
	}
	if transport.Writes[1] != ":000300010002FA\r\n" {
		t.Errorf("wake broadcast = %q", transport.Writes[1])
	}
}

func TestReadAllDataUnavailable(t *testing.T) {
	device, transport := newTestDevice(t)

	data, err := device.ReadAllData()
	if err != nil {
		t.Fatal(err)
	}
	if data.Available {
		t.Error("expected unavailable")
	}
	if len(transport.Writes) != 5 {
		t.Errorf("writes = %d, want 5", len(transport.Writes))
	}
	if device.IsChargingEnabled() {
		t.Error("no state was ever read")
	}
}

func TestReadAllDataForeignSlaveResponse(t *testing.T) {
	device, transport := newTestDevice(t)
	transport.Stub(mustCommand(t, readCurrentCommand, 1),
		TestResponse([]byte{0x02, 0x03, 0x06, 0x33, 0x80, 0xC2, 0x0E, 0x0E, 0x0E}))

	data, err := device.ReadAllData()
	if err != nil {
		t.Fatal(err)
	}
	if data.Available {
		t.Error("foreign slave response must not count")
	}
	if transport.Cleared == 0 {
		t.Error("input buffer was not cleared")
	}
}

func TestWriteCurrent(t *testing.T) {
	device, transport := newTestDevice(t)
	cmd, err := writeCurrentCommand(1, dutyCycleForAmps(10))
	if err != nil {
		t.Fatal(err)
	}
	transport.Stub(cmd, TestResponse([]byte{0x01, 0x10, 0x00, 0x14, 0x00, 0x01}))

	if err := device.WriteCurrent(10); err != nil {
		t.Fatal(err)
	}
	if transport.Writes[0] != ":0110001400010200A632\r\n" {
		t.Errorf("frame = %q", transport.Writes[0])
	}
}

func TestWriteCurrentZeroDisables(t *testing.T) {
	device, transport := newTestDevice(t)
	transport.Stub(mustCommand(t, disableCurrentCommand, 1),
		TestResponse([]byte{0x01, 0x10, 0x00, 0x14, 0x00, 0x01}))

	if err := device.WriteCurrent(0); err != nil {
		t.Fatal(err)
	}
	if transport.Writes[0] != ":0110001400010203E8ED\r\n" {
		t.Errorf("frame = %q", transport.Writes[0])
	}
}

func TestWriteCurrentRejectsOutOfRange(t *testing.T) {
	device, transport := newTestDevice(t)
	for _, amps := range []uint8{1, 4, 17, 255} {
		err := device.WriteCurrent(amps)
		var rangeErr *CurrentRangeError
		if !errors.As(err, &rangeErr) {
			t.Fatalf("WriteCurrent(%d) = %v, want CurrentRangeError", amps, err)
		}
		if rangeErr.Amps != amps || rangeErr.Min != MinCurrentAmps || rangeErr.Max != 16 {
			t.Errorf("range error = %+v", rangeErr)
		}
	}
	if len(transport.Writes) != 0 {
		t.Error("out-of-range request reached the wire")
	}
}

func TestWriteCurrentEchoMismatch(t *testing.T) {
	device, transport := newTestDevice(t)
	cmd, err := writeCurrentCommand(1, dutyCycleForAmps(10))
	if err != nil {
		t.Fatal(err)
	}
	transport.Stub(cmd, TestResponse([]byte{0x02, 0x10, 0x00, 0x14, 0x00, 0x01}))

	if err := device.WriteCurrent(10); !errors.Is(err, ErrUnexpectedResponse) {
		t.Errorf("expected ErrUnexpectedResponse, got %v", err)
	}
	if transport.Cleared == 0 {
		t.Error("input buffer was not cleared")
	}
	// a failed confirmation is never retried
	if len(transport.Writes) != 1 {
		t.Errorf("writes = %d, want 1", len(transport.Writes))
	}
}

func TestWriteCurrentTimeout(t *testing.T) {
	device, _ := newTestDevice(t)
	if err := device.WriteCurrent(10); !errors.Is(err, ErrNoResponse) {
		t.Errorf("expected ErrNoResponse, got %v", err)
	}
}

func TestEnableDisableCharging(t *testing.T) {
	device, transport := newTestDevice(t)
	transport.Stub(mustCommand(t, enableChargingCommand, 1),
		TestResponse([]byte{0x01, 0x10, 0x00, 0x05, 0x00, 0x01}))
	transport.Stub(mustCommand(t, disableChargingCommand, 1),
		TestResponse([]byte{0x01, 0x10, 0x00, 0x05, 0x00, 0x01}))

	if err := device.EnableCharging(); err != nil {
		t.Fatal(err)
	}
	if err := device.DisableCharging(); err != nil {
		t.Fatal(err)
	}
	if transport.Writes[0] != ":01100005000102A1A1A5\r\n" {
		t.Errorf("enable frame = %q", transport.Writes[0])
	}
	if transport.Writes[1] != ":01100005000102E0E027\r\n" {
		t.Errorf("disable frame = %q", transport.Writes[1])
	}
}

func TestReadFirmwareInfo(t *testing.T) {
	device, transport := newTestDevice(t)
	transport.Stub(mustCommand(t, readFirmwareCommand, 1),
		TestResponse([]byte{0x01, 0x03, 0x04, 0x01, 0x41, 0x00, 0x40}))

	info, err := device.ReadFirmwareInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.FirmwareVersion != "V1.41" || info.HardwareVersion != "PCBA 160307" {
		t.Errorf("info = %+v", info)
	}
}

func TestReadSerialNumber(t *testing.T) {
	device, transport := newTestDevice(t)
	transport.Stub(mustCommand(t, readSerialNumberCommand, 1),
		TestResponse(append([]byte{0x01, 0x03, 0x10}, []byte("1W9418192.012345")...)))

	serial, err := device.ReadSerialNumber()
	if err != nil {
		t.Fatal(err)
	}
	if serial != "1W9418192.012345" {
		t.Errorf("serial = %q", serial)
	}
}

func TestReadIdentity(t *testing.T) {
	device, transport := newTestDevice(t)
	transport.Stub(mustCommand(t, readFirmwareCommand, 1),
		TestResponse([]byte{0x01, 0x03, 0x04, 0x01, 0x41, 0x00, 0x40}))

	identity, err := device.ReadIdentity()
	if err != nil {
		t.Fatal(err)
	}
	if identity.SerialNumber != "" {
		t.Errorf("serial = %q", identity.SerialNumber)
	}
	if identity.Firmware == nil || identity.Firmware.FirmwareVersion != "V1.41" {
		t.Errorf("firmware = %+v", identity.Firmware)
	}
}

func TestReadIdentityBothFail(t *testing.T) {
	device, _ := newTestDevice(t)
	if _, err := device.ReadIdentity(); !errors.Is(err, ErrNoResponse) {
		t.Errorf("expected ErrNoResponse, got %v", err)
	}
}

func TestReadDutyCycle(t *testing.T) {
	device, transport := newTestDevice(t)
	transport.Stub(mustCommand(t, readDutyCycleCommand, 1),
		TestResponse([]byte{0x01, 0x03, 0x0A, 0x2E, 0x00, 0x00, 0x10, 0x68, 0x00, 0x00, 0x00, 0x00, 0x00}))

	duty, err := device.ReadDutyCycle()
	if err != nil {
		t.Fatal(err)
	}
	if duty != 42.0 {
		t.Errorf("duty = %v", duty)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	device, _ := newTestDevice(t)
	if err := device.Close(); err != nil {
		t.Fatal(err)
	}
	if err := device.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := device.ReadAllData(); !errors.Is(err, ErrPortClosed) {
		t.Errorf("ReadAllData after close: %v", err)
	}
	if err := device.WriteCurrent(10); !errors.Is(err, ErrPortClosed) {
		t.Errorf("WriteCurrent after close: %v", err)
	}
	if err := device.WakeUp(); !errors.Is(err, ErrPortClosed) {
		t.Errorf("WakeUp after close: %v", err)
	}
}

func TestDeviceInstrument(t *testing.T) {
	transport := NewTestTransport()
	var ops []string
	device, err := NewDevice(transport, DeviceConfig{SlaveID: 1, MaxCurrentAmps: 16}, nil,
		DeviceInstrument{RecordTime: func(opName string, _ time.Duration) {
			ops = append(ops, opName)
		}})
	if err != nil {
		t.Fatal(err)
	}
	device.wakeDelay = 0
	if err := device.Open(); err != nil {
		t.Fatal(err)
	}
	transport.Stub(mustCommand(t, readCurrentCommand, 1),
		TestResponse([]byte{0x01, 0x03, 0x06, 0x33, 0x80, 0xC2, 0x0E, 0x0E, 0x0E}))
	if _, err := device.ReadAllData(); err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 || ops[0] != "ReadAllData" {
		t.Errorf("ops = %v", ops)
	}
}

func TestCalculateConsumption(t *testing.T) {
	reading := CurrentReading{ICT1: 14, ICT2: 14, ICT3: 14}
	if got := CalculateConsumption(reading, 42); got != 9660 {
		t.Errorf("consumption = %v", got)
	}
}
