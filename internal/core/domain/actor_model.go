package domain

import "github.com/matfroh/abl-emh1-modbus/pkg/emh1_modbus"

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_EVSE         = "evse"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_MONITOR      = "monitor"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

// GetChargerInfoRequest asks for the slow-moving identity data: serial
// number, firmware and hardware version.
type GetChargerInfoRequest struct {
	ActorRequestMixIn
}

type GetChargerInfoResponse struct {
	ActorResponseMixIn
	Identity *emh1_modbus.DeviceIdentity
}

// GetChargerDataRequest asks for a state/current read.
type GetChargerDataRequest struct {
	ActorRequestMixIn
}

type GetChargerDataResponse struct {
	ActorResponseMixIn
	Data *emh1_modbus.ChargerData
	// ConsumptionWatt is the estimated power draw for this reading.
	ConsumptionWatt float64
}

type GetDutyCycleRequest struct {
	ActorRequestMixIn
}

type GetDutyCycleResponse struct {
	ActorResponseMixIn
	DutyCyclePercent float64
}

type WakeUpRequest struct {
	ActorRequestMixIn
}

type WakeUpResponse struct {
	ActorResponseMixIn
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
