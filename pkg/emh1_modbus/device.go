package emh1_modbus

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MainsVoltage is the assumed phase voltage for the consumption estimate.
const MainsVoltage = 230

// defaultWakeDelay spaces out the wake-up messages so the charger's EVCC has
// time to leave its low-power idle between them.
const defaultWakeDelay = 500 * time.Millisecond

// DeviceConfig carries the per-charger settings.
type DeviceConfig struct {
	SlaveID        uint8
	MaxCurrentAmps uint8
	// PhaseCurrentScale converts raw phase bytes to amps. Zero selects
	// DefaultPhaseCurrentScale.
	PhaseCurrentScale float64
}

// DeviceInstrument observes transaction timing, for tracing or metrics.
type DeviceInstrument struct {
	RecordTime func(opName string, elapsed time.Duration)
}

// Device is the handle for one charger on one serial link. It is the sole
// owner of the transport: acquired on Open, released exactly once on Close.
// All operations serialize on an internal mutex; the link is half duplex and
// allows a single in-flight transaction.
type Device struct {
	transport  Transport
	slaveID    byte
	maxCurrent uint8
	scale      float64
	wakeDelay  time.Duration

	mu        sync.Mutex
	open      bool
	lastState ChargerState
	hasState  bool

	logger     *zap.Logger
	instrument []DeviceInstrument
}

// NewDevice builds a device handle over an already-constructed transport.
// The transport is not opened here; call Open.
func NewDevice(transport Transport, cfg DeviceConfig, logger *zap.Logger, instrument ...DeviceInstrument) (*Device, error) {
	if cfg.SlaveID < 1 || cfg.SlaveID > MaxSlaveID {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlaveID, cfg.SlaveID)
	}
	if cfg.MaxCurrentAmps < MinCurrentAmps {
		return nil, fmt.Errorf("emh1: max current %dA below minimum %dA", cfg.MaxCurrentAmps, MinCurrentAmps)
	}
	scale := cfg.PhaseCurrentScale
	if scale == 0 {
		scale = DefaultPhaseCurrentScale
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Device{
		transport:  transport,
		slaveID:    cfg.SlaveID,
		maxCurrent: cfg.MaxCurrentAmps,
		scale:      scale,
		wakeDelay:  defaultWakeDelay,
		logger:     logger.With(zap.Uint8("slave", cfg.SlaveID)),
		instrument: instrument,
	}, nil
}

// CreateSerialDevice builds a device handle over a local serial port.
func CreateSerialDevice(address string, baudRate uint, cfg DeviceConfig, logger *zap.Logger, instrument ...DeviceInstrument) (*Device, error) {
	return NewDevice(NewSerialTransport(address, baudRate), cfg, logger, instrument...)
}

// CreateTCPDevice builds a device handle over a TCP-tunneled serial link.
func CreateTCPDevice(address string, cfg DeviceConfig, logger *zap.Logger, instrument ...DeviceInstrument) (*Device, error) {
	return NewDevice(NewTCPTransport(address), cfg, logger, instrument...)
}

// Open acquires the underlying port. Opening an open device is a no-op.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return nil
	}
	if err := d.transport.Open(); err != nil {
		return err
	}
	d.open = true
	return nil
}

// Close releases the port. Double close is a safe no-op; any operation after
// Close fails with ErrPortClosed.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil
	}
	d.open = false
	return d.transport.Close()
}

// SlaveID returns the configured slave address.
func (d *Device) SlaveID() uint8 {
	return d.slaveID
}

// MaxCurrentAmps returns the configured current ceiling.
func (d *Device) MaxCurrentAmps() uint8 {
	return d.maxCurrent
}

// State returns the last state code seen on the link, if any.
func (d *Device) State() (ChargerState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastState, d.hasState
}

// IsChargingEnabled derives the charging status from the last known state
// code: true iff it belongs to {B1, B2, C2}.
func (d *Device) IsChargingEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hasState && d.lastState.IsCharging()
}

// WakeUp sends the three-message wake sequence and discards any responses.
// The charger silently drops the first real request after an idle period, so
// callers wake before the first read or write after inactivity. WakeUp fails
// only when the port is closed or the write itself errors.
func (d *Device) WakeUp() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wakeUpLocked()
}

func (d *Device) wakeUpLocked() error {
	if !d.open {
		return ErrPortClosed
	}
	defer d.recordTimer("WakeUp")()
	frames, err := wakeUpSequence(d.slaveID)
	if err != nil {
		return err
	}
	d.logger.Debug("sending wake-up sequence")
	for _, frame := range frames {
		if err := d.transport.WriteFrame(frame); err != nil {
			return err
		}
		time.Sleep(d.wakeDelay)
		// response, if any, is noise here
		if _, err := d.transport.ReadLine(); err != nil {
			return err
		}
	}
	return nil
}

// ReadAllData performs the state/current read. If the first attempt yields no
// usable response (timeout, checksum error, garbage), the device is woken
// once and the read retried exactly once; a second failure surfaces as
// Available=false, not as an error. Only a closed handle returns an error.
func (d *Device) ReadAllData() (*ChargerData, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil, ErrPortClosed
	}
	defer d.recordTimer("ReadAllData")()

	data, err := d.readCurrentLocked()
	if err != nil {
		d.logger.Debug("state read failed, waking device", zap.Error(err))
		if wakeErr := d.wakeUpLocked(); wakeErr != nil {
			return nil, wakeErr
		}
		data, err = d.readCurrentLocked()
	}
	if err != nil {
		d.logger.Warn("charger unavailable", zap.Error(err))
		return &ChargerData{Available: false}, nil
	}
	d.lastState = data.State
	d.hasState = true
	return data, nil
}

func (d *Device) readCurrentLocked() (*ChargerData, error) {
	frame, err := d.transact("ReadCurrent", func() ([]byte, error) {
		return readCurrentCommand(d.slaveID)
	})
	if err != nil {
		return nil, err
	}
	return ParseCurrentReading(frame, d.scale)
}

// WriteCurrent sets the charge current limit. amps must be 0 (charging off)
// or within [MinCurrentAmps, configured max]; out-of-range values are
// rejected before any I/O. The response must echo the write command; a
// mismatch or timeout is a failure and is never retried here, since the
// write may already have taken effect.
func (d *Device) WriteCurrent(amps uint8) error {
	if amps != 0 && (amps < MinCurrentAmps || amps > d.maxCurrent) {
		return &CurrentRangeError{Amps: amps, Min: MinCurrentAmps, Max: d.maxCurrent}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return ErrPortClosed
	}
	defer d.recordTimer("WriteCurrent")()

	var cmd []byte
	var err error
	if amps == 0 {
		cmd, err = disableCurrentCommand(d.slaveID)
	} else {
		duty := dutyCycleForAmps(amps)
		d.logger.Debug("writing charge current", zap.Uint8("amps", amps), zap.Uint16("duty_cycle", duty))
		cmd, err = writeCurrentCommand(d.slaveID, duty)
	}
	if err != nil {
		return err
	}
	return d.confirmedWriteLocked(cmd, fmt.Sprintf(">%02X100014", d.slaveID))
}

// EnableCharging releases the charging contactor.
func (d *Device) EnableCharging() error {
	return d.controlWrite("EnableCharging", enableChargingCommand)
}

// DisableCharging opens the charging contactor.
func (d *Device) DisableCharging() error {
	return d.controlWrite("DisableCharging", disableChargingCommand)
}

func (d *Device) controlWrite(name string, build func(byte) ([]byte, error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return ErrPortClosed
	}
	defer d.recordTimer(name)()
	cmd, err := build(d.slaveID)
	if err != nil {
		return err
	}
	return d.confirmedWriteLocked(cmd, fmt.Sprintf(">%02X10", d.slaveID))
}

// confirmedWriteLocked sends a write command and matches the response
// against the expected echo prefix.
func (d *Device) confirmedWriteLocked(cmd []byte, echoPrefix string) error {
	if err := d.transport.WriteFrame(cmd); err != nil {
		return err
	}
	raw, err := d.transport.ReadLine()
	if err != nil {
		return err
	}
	if raw == nil {
		return ErrNoResponse
	}
	if !matchEcho(raw, echoPrefix) {
		d.transport.ClearInput()
		return fmt.Errorf("%w: want echo %s, got %q", ErrUnexpectedResponse, echoPrefix, bytes.TrimSpace(raw))
	}
	return nil
}

// ReadSerialNumber returns the device serial number, or "" when the hardware
// reports the unset sentinel.
func (d *Device) ReadSerialNumber() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return "", ErrPortClosed
	}
	defer d.recordTimer("ReadSerialNumber")()
	frame, err := d.transact("ReadSerialNumber", func() ([]byte, error) {
		return readSerialNumberCommand(d.slaveID)
	})
	if err != nil {
		return "", err
	}
	return ParseSerialNumber(frame)
}

// ReadFirmwareInfo returns the firmware and hardware versions.
func (d *Device) ReadFirmwareInfo() (*FirmwareInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil, ErrPortClosed
	}
	defer d.recordTimer("ReadFirmwareInfo")()
	frame, err := d.transact("ReadFirmwareInfo", func() ([]byte, error) {
		return readFirmwareCommand(d.slaveID)
	})
	if err != nil {
		return nil, err
	}
	return ParseFirmwareInfo(frame)
}

// ReadIdentity fetches serial number and firmware info in one go. A missing
// serial number is tolerated; the call fails only when both reads fail.
func (d *Device) ReadIdentity() (*DeviceIdentity, error) {
	serial, serialErr := d.ReadSerialNumber()
	firmware, fwErr := d.ReadFirmwareInfo()
	if serialErr != nil && fwErr != nil {
		return nil, fwErr
	}
	return &DeviceIdentity{
		SerialNumber: serial,
		Firmware:     firmware,
	}, nil
}

// ReadDutyCycle returns the control pilot duty cycle in percent.
func (d *Device) ReadDutyCycle() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return 0, ErrPortClosed
	}
	defer d.recordTimer("ReadDutyCycle")()
	frame, err := d.transact("ReadDutyCycle", func() ([]byte, error) {
		return readDutyCycleCommand(d.slaveID)
	})
	if err != nil {
		return 0, err
	}
	return ParseDutyCycle(frame)
}

// transact runs one write-then-read exchange and decodes the response. The
// caller holds the device mutex. A corrupted response clears the input
// buffer so its tail cannot poison the next transaction.
func (d *Device) transact(name string, build func() ([]byte, error)) (*DecodedFrame, error) {
	cmd, err := build()
	if err != nil {
		return nil, err
	}
	if err := d.transport.WriteFrame(cmd); err != nil {
		return nil, err
	}
	raw, err := d.transport.ReadLine()
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoResponse, name)
	}
	frame, err := DecodeFrame(raw)
	if err != nil {
		d.transport.ClearInput()
		return nil, err
	}
	if frame.SlaveID != d.slaveID {
		d.transport.ClearInput()
		return nil, fmt.Errorf("%w: slave %02X in %q", ErrUnexpectedResponse, frame.SlaveID, frame.Raw)
	}
	return frame, nil
}

func (d *Device) recordTimer(name string) func() {
	if len(d.instrument) == 0 {
		return func() {}
	}
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		for i := range d.instrument {
			d.instrument[i].RecordTime(name, elapsed)
		}
	}
}

// matchEcho reports whether the response line, after discarding any garbage
// before the start marker, begins with the expected echo prefix.
func matchEcho(raw []byte, prefix string) bool {
	start := bytes.IndexByte(raw, responseStart)
	if start < 0 {
		return false
	}
	return bytes.HasPrefix(raw[start:], []byte(prefix))
}

// CalculateConsumption estimates power draw in watts from a reading, as
// total phase current times mains voltage. The duty cycle is accepted for
// symmetry with the device read but not yet applied; the correction is
// pending hardware validation.
func CalculateConsumption(reading CurrentReading, dutyCycle float64) float64 {
	_ = dutyCycle
	return reading.Total() * MainsVoltage
}
