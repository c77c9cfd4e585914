package emh1_modbus

import "math"

const (
	fnReadHoldingRegisters   = 0x03
	fnWriteMultipleRegisters = 0x10

	regFirmware        = 0x0001
	regChargingControl = 0x0005
	regMaxCurrent      = 0x0014
	regDutyCycle       = 0x002E
	regCurrentState    = 0x0033
	regSerialNumber    = 0x0050

	// MinCurrentAmps is the lowest charge current the EVSE accepts; the
	// only value below it is 0, which disables charging entirely.
	MinCurrentAmps = 5

	// DutyCycleScale converts amps to the duty-cycle register value for
	// the current-limit write. Firmware revisions disagree on this factor;
	// 16.6 matches the documented 10A reference command. Validate against
	// hardware before trusting a new firmware.
	DutyCycleScale = 16.6

	// DefaultPhaseCurrentScale converts raw per-phase current bytes of the
	// short-format read to amps. The short format reports whole amps.
	DefaultPhaseCurrentScale = 1.0
)

func readCurrentCommand(slaveID byte) ([]byte, error) {
	return EncodeCommand(slaveID, fnReadHoldingRegisters, regCurrentState, 0x00, 0x03)
}

func readFirmwareCommand(slaveID byte) ([]byte, error) {
	return EncodeCommand(slaveID, fnReadHoldingRegisters, regFirmware, 0x00, 0x02)
}

func readSerialNumberCommand(slaveID byte) ([]byte, error) {
	return EncodeCommand(slaveID, fnReadHoldingRegisters, regSerialNumber, 0x00, 0x08)
}

func readDutyCycleCommand(slaveID byte) ([]byte, error) {
	return EncodeCommand(slaveID, fnReadHoldingRegisters, regDutyCycle, 0x00, 0x05)
}

// writeCurrentCommand encodes a duty-cycle value into the single-register
// current-limit write (function 0x10, one register, two payload bytes).
func writeCurrentCommand(slaveID byte, dutyCycle uint16) ([]byte, error) {
	return EncodeCommand(slaveID, fnWriteMultipleRegisters, regMaxCurrent,
		0x00, 0x01, 0x02, byte(dutyCycle>>8), byte(dutyCycle))
}

// disableCurrentCommand carries the literal 0x03E8 payload the device
// expects for "no charging". The duty-cycle formula does not hold at zero.
func disableCurrentCommand(slaveID byte) ([]byte, error) {
	return writeCurrentCommand(slaveID, 0x03E8)
}

// dutyCycleForAmps converts a charge current to the register value written
// by writeCurrentCommand. Callers must not pass 0; see disableCurrentCommand.
func dutyCycleForAmps(amps uint8) uint16 {
	return uint16(math.Round(float64(amps) * DutyCycleScale))
}

func enableChargingCommand(slaveID byte) ([]byte, error) {
	return EncodeCommand(slaveID, fnWriteMultipleRegisters, regChargingControl,
		0x00, 0x01, 0x02, 0xA1, 0xA1)
}

func disableChargingCommand(slaveID byte) ([]byte, error) {
	return EncodeCommand(slaveID, fnWriteMultipleRegisters, regChargingControl,
		0x00, 0x01, 0x02, 0xE0, 0xE0)
}

// wakeUpSequence builds the three-message wake-up: one firmware read to the
// broadcast address, then two to the real slave. The charger drops the first
// request after its low-power idle; these are sent purely for their side
// effect and any responses are discarded.
func wakeUpSequence(slaveID byte) ([][]byte, error) {
	broadcast, err := readFirmwareCommand(BroadcastID)
	if err != nil {
		return nil, err
	}
	direct, err := readFirmwareCommand(slaveID)
	if err != nil {
		return nil, err
	}
	return [][]byte{broadcast, direct, direct}, nil
}
