package emh1_modbus

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode"
)

// CurrentReading holds the three per-phase currents of one read transaction,
// in amps. A reading is either fully present or entirely absent: ChargerData
// with Available=false carries no reading at all.
type CurrentReading struct {
	ICT1 float64
	ICT2 float64
	ICT3 float64
}

// Total returns the summed phase current in amps.
func (r CurrentReading) Total() float64 {
	return r.ICT1 + r.ICT2 + r.ICT3
}

// ChargerData is the result of one state/current read.
type ChargerData struct {
	Available        bool
	State            ChargerState
	StateDescription string
	ChargingEnabled  bool
	MaxCurrentAmps   float64
	Currents         CurrentReading
}

// FirmwareInfo is decoded from the two packed firmware/hardware registers.
type FirmwareInfo struct {
	FirmwareVersion string
	HardwareVersion string
	RawRegisters    [2]uint16
}

// DeviceIdentity groups the rarely-read identification data. SerialNumber is
// empty when the hardware returns the all-0xFFFF "unset" block. Callers cache
// this; the driver reads it on demand only.
type DeviceIdentity struct {
	SerialNumber string
	Firmware     *FirmwareInfo
}

// maxPlausiblePhaseCurrent clamps nonsense phase readings: the hardware
// occasionally reports values far above any supported charge current.
const maxPlausiblePhaseCurrent = 80

// hardwareVersions maps bits 6-7 of the second firmware register to the
// PCBA revision.
var hardwareVersions = [4]string{
	"PCBA 141215",
	"PCBA 160307",
	"PCBA 170725",
	"Not Used",
}

// ParseCurrentReading interprets the state/current response (read of 3
// registers at 0x0033): [max_current:2][state:1][ict1:1][ict2:1][ict3:1]
// after the byte count. scale converts raw phase bytes to amps.
func ParseCurrentReading(frame *DecodedFrame, scale float64) (*ChargerData, error) {
	payload, err := readPayload(frame, 6)
	if err != nil {
		return nil, err
	}
	state := ChargerState(payload[2])
	return &ChargerData{
		Available:        true,
		State:            state,
		StateDescription: state.Description(),
		ChargingEnabled:  state.IsCharging(),
		MaxCurrentAmps:   float64(binary.BigEndian.Uint16(payload[0:2])) / 10,
		Currents: CurrentReading{
			ICT1: phaseCurrent(payload[3], scale),
			ICT2: phaseCurrent(payload[4], scale),
			ICT3: phaseCurrent(payload[5], scale),
		},
	}, nil
}

// ParseFirmwareInfo interprets the firmware/hardware response (read of 2
// registers at 0x0001). Register 1 packs major/minor version, register 2
// carries the hardware revision in bits 6-7.
func ParseFirmwareInfo(frame *DecodedFrame) (*FirmwareInfo, error) {
	payload, err := readPayload(frame, 4)
	if err != nil {
		return nil, err
	}
	reg1 := binary.BigEndian.Uint16(payload[0:2])
	reg2 := binary.BigEndian.Uint16(payload[2:4])
	major := (reg1 >> 8) & 0xFF
	minor := reg1 & 0xFF
	return &FirmwareInfo{
		FirmwareVersion: fmt.Sprintf("V%d.%d%d", major, minor/16, minor%16),
		HardwareVersion: hardwareVersions[(reg2>>6)&0x3],
		RawRegisters:    [2]uint16{reg1, reg2},
	}, nil
}

// ParseSerialNumber interprets the serial number response (read of 8
// registers at 0x0050) as ASCII. An all-0xFFFF register block means the
// factory never wrote a serial number; that is reported as "", not an error.
func ParseSerialNumber(frame *DecodedFrame) (string, error) {
	payload, err := readPayload(frame, 16)
	if err != nil {
		return "", err
	}
	unset := true
	for _, b := range payload[:16] {
		if b != 0xFF {
			unset = false
			break
		}
	}
	if unset {
		return "", nil
	}
	var sb strings.Builder
	for _, b := range payload[:16] {
		if b < unicode.MaxASCII && unicode.IsPrint(rune(b)) {
			sb.WriteByte(b)
		}
	}
	return sb.String(), nil
}

// ParseDutyCycle interprets the duty-cycle response (read of 5 registers at
// 0x002E) and returns the percentage. The first payload byte echoes the
// register address low byte; the value sits two bytes further in.
func ParseDutyCycle(frame *DecodedFrame) (float64, error) {
	payload, err := readPayload(frame, 5)
	if err != nil {
		return 0, err
	}
	if payload[0] != byte(regDutyCycle) {
		return 0, fmt.Errorf("%w: duty cycle marker missing in %q", ErrUnexpectedResponse, frame.Raw)
	}
	return float64(binary.BigEndian.Uint16(payload[3:5])) / 100, nil
}

// readPayload validates a 0x03 response and returns the data bytes after the
// byte count. A response shorter than want bytes is rejected, never indexed
// out of bounds.
func readPayload(frame *DecodedFrame, want int) ([]byte, error) {
	if frame.Function != fnReadHoldingRegisters {
		return nil, fmt.Errorf("%w: function %02X in %q", ErrUnexpectedResponse, frame.Function, frame.Raw)
	}
	if len(frame.Data) < 1 || len(frame.Data)-1 < want {
		return nil, fmt.Errorf("%w: payload too short in %q", ErrMalformedFrame, frame.Raw)
	}
	return frame.Data[1:], nil
}

func phaseCurrent(raw byte, scale float64) float64 {
	if raw > maxPlausiblePhaseCurrent {
		return 0
	}
	return float64(raw) * scale
}
