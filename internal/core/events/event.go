package events

import (
	"fmt"

	. "github.com/matfroh/abl-emh1-modbus/internal/core/domain"
	"github.com/matfroh/abl-emh1-modbus/pkg/emh1_modbus"
)

// ChargerDataToUpdateEvents converts one state/current read into sensor
// update events. An unavailable reading only yields the availability event;
// stale values are never republished.
func ChargerDataToUpdateEvents(data *emh1_modbus.ChargerData, consumptionWatt float64) []any {
	var events []any

	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CHARGER_AVAILABLE,
		},
		Value: data.Available,
	})
	if !data.Available {
		return events
	}

	// Charger state
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CHARGER_STATE,
		},
		Value: data.StateDescription,
	})
	// Max charge current
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CHARGER_MAX_CURRENT,
		},
		Value:    data.MaxCurrentAmps,
		Decimals: 1,
	})
	// Per-phase currents
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CHARGER_PHASE1_CURRENT,
		},
		Value:    data.Currents.ICT1,
		Decimals: 1,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CHARGER_PHASE2_CURRENT,
		},
		Value:    data.Currents.ICT2,
		Decimals: 1,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CHARGER_PHASE3_CURRENT,
		},
		Value:    data.Currents.ICT3,
		Decimals: 1,
	})
	// Total current
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CHARGER_TOTAL_CURRENT,
		},
		Value:    data.Currents.Total(),
		Decimals: 1,
	})
	// Estimated consumption
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CHARGER_CONSUMPTION,
		},
		Value:    consumptionWatt,
		Decimals: 0,
	})
	// Charging switch reflects the device state
	events = append(events, ChargingSwitchUpdateEvent(data.ChargingEnabled))

	return events
}

func ChargerIdentityToUpdateEvents(identity *emh1_modbus.DeviceIdentity) []any {
	var events []any
	if identity == nil || identity.Firmware == nil {
		return events
	}
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CHARGER_FIRMWARE,
		},
		Value: fmt.Sprintf("%s (%s)", identity.Firmware.FirmwareVersion, identity.Firmware.HardwareVersion),
	})
	return events
}

func DutyCycleToUpdateEvents(dutyCyclePercent float64) []any {
	var events []any
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CHARGER_DUTY_CYCLE,
		},
		Value:    dutyCyclePercent,
		Decimals: 2,
	})
	return events
}

func ChargingSwitchUpdateEvent(enabled bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_EV_CHARGING,
		},
		Value: enabled,
	}
}

func ChargeCurrentUpdateEvent(amps uint8) any {
	return InputNumberSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: INPUT_NUMBER_ID_CHARGE_CURRENT,
		},
		Value: float64(amps),
	}
}
