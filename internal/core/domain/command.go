package domain

import "fmt"

// ChargerControlRequest

type ChargerControlRequest interface {
	ActorRequest
	ChargerControlCommand() string
}

type ChargerControlRequestMixIn struct {
	ActorRequestMixIn
}

func (r ChargerControlRequestMixIn) ChargerControlCommand() string {
	return fmt.Sprintf("%T", r)
}

// ChargerControlResponse

type ChargerControlResponse interface {
	ActorResponse
	ChargerControlResponse() string
}

type ChargerControlResponseMixIn struct {
	ActorResponseMixIn
}

func (r ChargerControlResponseMixIn) ChargerControlResponse() string {
	return fmt.Sprintf("%T", r)
}

// ChargerControl commands

// SetChargeCurrentRequest sets the charge current limit in amps. Amps == 0
// disables charging.
type SetChargeCurrentRequest struct {
	ChargerControlRequestMixIn
	Amps uint8
}

type SetChargeCurrentResponse struct {
	ChargerControlResponseMixIn
	Amps uint8
}

type SetChargingEnabledRequest struct {
	ChargerControlRequestMixIn
	Enable bool
}

type SetChargingEnabledResponse struct {
	ChargerControlResponseMixIn
	Enabled bool
}

// ensure interface compliance
var _ ChargerControlRequest = (*SetChargeCurrentRequest)(nil)
