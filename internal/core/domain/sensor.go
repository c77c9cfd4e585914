package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/matfroh/abl-emh1-modbus/pkg/emh1_modbus"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE           = "bridge"
	SENSOR_ID_CHARGER_AVAILABLE      = "charger_available"
	SENSOR_ID_CHARGER_STATE          = "charger_state"
	SENSOR_ID_CHARGER_MAX_CURRENT    = "charger_max_current"
	SENSOR_ID_CHARGER_PHASE1_CURRENT = "charger_phase1_current"
	SENSOR_ID_CHARGER_PHASE2_CURRENT = "charger_phase2_current"
	SENSOR_ID_CHARGER_PHASE3_CURRENT = "charger_phase3_current"
	SENSOR_ID_CHARGER_TOTAL_CURRENT  = "charger_total_current"
	SENSOR_ID_CHARGER_CONSUMPTION    = "charger_consumption"
	SENSOR_ID_CHARGER_DUTY_CYCLE     = "charger_duty_cycle"
	SENSOR_ID_CHARGER_FIRMWARE       = "charger_firmware"
	SWITCH_ID_EV_CHARGING            = "ev_charging"
	INPUT_NUMBER_ID_CHARGE_CURRENT   = "charge_current"

	STATE_CLASS_MEASUREMENT   = "measurement"
	DEVICE_CLASS_CURRENT      = "current"
	DEVICE_CLASS_POWER        = "power"
	DEVICE_CLASS_CONNECTIVITY = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC   = "diagnostic"
	SENSOR_TYPE_SENSOR        = "sensor"
	SENSOR_TYPE_BINARY        = "binary_sensor"
	INPUT_NUMBER_MODE_BOX     = "box"
	INPUT_NUMBER_MODE_SLIDER  = "slider"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("emh1_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "matfroh",
		Model:        "abl-emh1-modbus",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("eMH1 bridge %s", md5HashShort(baseTopic)),
	}
}

// ChargerDevice builds the device entry for the wallbox itself. A charger
// without a factory serial number is keyed by the MQTT base topic instead.
func ChargerDevice(identity *emh1_modbus.DeviceIdentity, baseTopic string) Device {
	key := baseTopic
	version := ""
	if identity != nil {
		if identity.SerialNumber != "" {
			key = identity.SerialNumber
		}
		if identity.Firmware != nil {
			version = fmt.Sprintf("%s (%s)", identity.Firmware.FirmwareVersion, identity.Firmware.HardwareVersion)
		}
	}
	return Device{
		Id:           fmt.Sprintf("emh1_charger_%s", md5HashShort(key)),
		Manufacturer: "ABL",
		Model:        "eMH1",
		Version:      version,
		Name:         fmt.Sprintf("ABL eMH1 %s", md5HashShort(key)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func ChargerSensors(chargerDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Charger availability
	sensors = append(sensors, GenericSensor{
		Device:         chargerDevice,
		Id:             SENSOR_ID_CHARGER_AVAILABLE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Charger available",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(chargerDevice.Id, SENSOR_ID_CHARGER_AVAILABLE),
	})

	// Charger state
	sensors = append(sensors, GenericSensor{
		Device:     chargerDevice,
		Id:         SENSOR_ID_CHARGER_STATE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Charger state",
		Icon:       "mdi:ev-station",
		UniqueId:   uniqueId(chargerDevice.Id, SENSOR_ID_CHARGER_STATE),
	})

	// Max charge current
	sensors = append(sensors, GenericSensor{
		Device:            chargerDevice,
		Id:                SENSOR_ID_CHARGER_MAX_CURRENT,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Max charge current",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_CURRENT,
		UnitOfMeasurement: "A",
		UniqueId:          uniqueId(chargerDevice.Id, SENSOR_ID_CHARGER_MAX_CURRENT),
	})

	// Per-phase currents
	phaseSensors := []struct {
		id   string
		name string
	}{
		{SENSOR_ID_CHARGER_PHASE1_CURRENT, "Phase 1 current"},
		{SENSOR_ID_CHARGER_PHASE2_CURRENT, "Phase 2 current"},
		{SENSOR_ID_CHARGER_PHASE3_CURRENT, "Phase 3 current"},
	}
	for _, ps := range phaseSensors {
		sensors = append(sensors, GenericSensor{
			Device:            chargerDevice,
			Id:                ps.id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              ps.name,
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_CURRENT,
			UnitOfMeasurement: "A",
			UniqueId:          uniqueId(chargerDevice.Id, ps.id),
		})
	}

	// Total current
	sensors = append(sensors, GenericSensor{
		Device:            chargerDevice,
		Id:                SENSOR_ID_CHARGER_TOTAL_CURRENT,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Total current",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_CURRENT,
		UnitOfMeasurement: "A",
		UniqueId:          uniqueId(chargerDevice.Id, SENSOR_ID_CHARGER_TOTAL_CURRENT),
	})

	// Estimated consumption
	sensors = append(sensors, GenericSensor{
		Device:            chargerDevice,
		Id:                SENSOR_ID_CHARGER_CONSUMPTION,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Consumption",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		Icon:              "mdi:flash",
		UniqueId:          uniqueId(chargerDevice.Id, SENSOR_ID_CHARGER_CONSUMPTION),
	})

	// CP duty cycle
	sensors = append(sensors, GenericSensor{
		Device:            chargerDevice,
		Id:                SENSOR_ID_CHARGER_DUTY_CYCLE,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "CP duty cycle",
		StateClass:        STATE_CLASS_MEASUREMENT,
		UnitOfMeasurement: "%",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(chargerDevice.Id, SENSOR_ID_CHARGER_DUTY_CYCLE),
	})

	// Firmware version
	sensors = append(sensors, GenericSensor{
		Device:         chargerDevice,
		Id:             SENSOR_ID_CHARGER_FIRMWARE,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Firmware version",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(chargerDevice.Id, SENSOR_ID_CHARGER_FIRMWARE),
	})

	return sensors
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func ChargerSwitches(chargerDevice Device) []GenericSwitch {

	var switches []GenericSwitch

	// EV charging on/off
	switches = append(switches, GenericSwitch{
		Device:   chargerDevice,
		Id:       SWITCH_ID_EV_CHARGING,
		Name:     "EV charging",
		UniqueId: uniqueId(chargerDevice.Id, SWITCH_ID_EV_CHARGING),
		Icon:     "mdi:ev-plug-type2",
	})

	return switches
}

func ChargerInputNumbers(chargerDevice Device, minCurrent, maxCurrent uint8) []GenericInputNumber {

	var inputNumbers []GenericInputNumber

	// Charge current limit
	inputNumbers = append(inputNumbers, GenericInputNumber{
		Device:       chargerDevice,
		Id:           INPUT_NUMBER_ID_CHARGE_CURRENT,
		Name:         "Charge current",
		UniqueId:     uniqueId(chargerDevice.Id, INPUT_NUMBER_ID_CHARGE_CURRENT),
		Icon:         "mdi:current-ac",
		Max:          float64(maxCurrent),
		Min:          float64(minCurrent),
		Step:         1,
		Mode:         INPUT_NUMBER_MODE_SLIDER,
		InitialValue: float64(maxCurrent),
	})

	return inputNumbers
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
