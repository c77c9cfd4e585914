package emh1_modbus

import (
	"bytes"
	"errors"
	"testing"
)

func decodeTestResponse(t *testing.T, message []byte) *DecodedFrame {
	t.Helper()
	frame, err := DecodeFrame(TestResponse(message))
	if err != nil {
		t.Fatal(err)
	}
	return frame
}

func TestParseCurrentReading(t *testing.T) {
	frame, err := DecodeFrame([]byte(">0103063380C20E0E0E57\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	data, err := ParseCurrentReading(frame, DefaultPhaseCurrentScale)
	if err != nil {
		t.Fatal(err)
	}
	if !data.Available {
		t.Error("expected available")
	}
	if data.State != StateEVCharged {
		t.Errorf("state = %v", data.State)
	}
	if data.StateDescription != "EV is charged" {
		t.Errorf("description = %q", data.StateDescription)
	}
	if !data.ChargingEnabled {
		t.Error("expected charging enabled")
	}
	if data.MaxCurrentAmps != 1318.4 {
		t.Errorf("max current = %v", data.MaxCurrentAmps)
	}
	if data.Currents.ICT1 != 14 || data.Currents.ICT2 != 14 || data.Currents.ICT3 != 14 {
		t.Errorf("currents = %+v", data.Currents)
	}
	if data.Currents.Total() != 42 {
		t.Errorf("total = %v", data.Currents.Total())
	}
}

func TestParseCurrentReadingClampsImplausiblePhases(t *testing.T) {
	frame := decodeTestResponse(t, []byte{0x01, 0x03, 0x06, 0x00, 0xA0, 0xA1, 0x51, 0x10, 0xFF})
	data, err := ParseCurrentReading(frame, DefaultPhaseCurrentScale)
	if err != nil {
		t.Fatal(err)
	}
	if data.Currents.ICT1 != 0 {
		t.Errorf("ict1 = %v, want clamp to 0", data.Currents.ICT1)
	}
	if data.Currents.ICT2 != 16 {
		t.Errorf("ict2 = %v", data.Currents.ICT2)
	}
	if data.Currents.ICT3 != 0 {
		t.Errorf("ict3 = %v, want clamp to 0", data.Currents.ICT3)
	}
	if data.ChargingEnabled {
		t.Error("state A1 must not count as charging")
	}
}

func TestParseCurrentReadingScale(t *testing.T) {
	frame := decodeTestResponse(t, []byte{0x01, 0x03, 0x06, 0x00, 0xA0, 0xB1, 0x0A, 0x0A, 0x0A})
	data, err := ParseCurrentReading(frame, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if data.Currents.ICT1 != 5 {
		t.Errorf("ict1 = %v", data.Currents.ICT1)
	}
}

func TestParseCurrentReadingShortPayload(t *testing.T) {
	frame := decodeTestResponse(t, []byte{0x01, 0x03, 0x04, 0x33, 0x80, 0xC2, 0x0E})
	if _, err := ParseCurrentReading(frame, DefaultPhaseCurrentScale); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("expected ErrMalformedFrame, got %v", err)
	}
}

func TestParseCurrentReadingWrongFunction(t *testing.T) {
	frame := decodeTestResponse(t, []byte{0x01, 0x10, 0x00, 0x33, 0x00, 0x03, 0x00, 0x00, 0x00})
	if _, err := ParseCurrentReading(frame, DefaultPhaseCurrentScale); !errors.Is(err, ErrUnexpectedResponse) {
		t.Errorf("expected ErrUnexpectedResponse, got %v", err)
	}
}

func TestParseFirmwareInfo(t *testing.T) {
	frame := decodeTestResponse(t, []byte{0x01, 0x03, 0x04, 0x01, 0x41, 0x00, 0x40})
	info, err := ParseFirmwareInfo(frame)
	if err != nil {
		t.Fatal(err)
	}
	if info.FirmwareVersion != "V1.41" {
		t.Errorf("firmware = %q", info.FirmwareVersion)
	}
	if info.HardwareVersion != "PCBA 160307" {
		t.Errorf("hardware = %q", info.HardwareVersion)
	}
	if info.RawRegisters != [2]uint16{0x0141, 0x0040} {
		t.Errorf("raw = %v", info.RawRegisters)
	}
}

func TestParseSerialNumber(t *testing.T) {
	message := append([]byte{0x01, 0x03, 0x10}, []byte("1W9418192.012345")...)
	frame := decodeTestResponse(t, message)
	serial, err := ParseSerialNumber(frame)
	if err != nil {
		t.Fatal(err)
	}
	if serial != "1W9418192.012345" {
		t.Errorf("serial = %q", serial)
	}
}

func TestParseSerialNumberUnset(t *testing.T) {
	frame := decodeTestResponse(t, append([]byte{0x01, 0x03, 0x10}, bytes.Repeat([]byte{0xFF}, 16)...))
	serial, err := ParseSerialNumber(frame)
	if err != nil {
		t.Fatal(err)
	}
	if serial != "" {
		t.Errorf("serial = %q, want empty", serial)
	}
}

func TestParseSerialNumberSkipsNonPrintable(t *testing.T) {
	message := append([]byte{0x01, 0x03, 0x10}, []byte("AB\x00CD")...)
	message = append(message, bytes.Repeat([]byte{0x00}, 11)...)
	frame := decodeTestResponse(t, message)
	serial, err := ParseSerialNumber(frame)
	if err != nil {
		t.Fatal(err)
	}
	if serial != "ABCD" {
		t.Errorf("serial = %q", serial)
	}
}

func TestParseDutyCycle(t *testing.T) {
	frame := decodeTestResponse(t, []byte{0x01, 0x03, 0x0A, 0x2E, 0x00, 0x00, 0x10, 0x68, 0x00, 0x00, 0x00, 0x00, 0x00})
	duty, err := ParseDutyCycle(frame)
	if err != nil {
		t.Fatal(err)
	}
	if duty != 42.0 {
		t.Errorf("duty = %v", duty)
	}
}

func TestParseDutyCycleMissingMarker(t *testing.T) {
	frame := decodeTestResponse(t, []byte{0x01, 0x03, 0x0A, 0x00, 0x00, 0x00, 0x10, 0x68, 0x00, 0x00, 0x00, 0x00, 0x00})
	if _, err := ParseDutyCycle(frame); !errors.Is(err, ErrUnexpectedResponse) {
		t.Errorf("expected ErrUnexpectedResponse, got %v", err)
	}
}
