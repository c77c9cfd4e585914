package emh1_modbus

import "fmt"

// ChargerState is the one-byte status code reported by the EVSE, following
// the IEC 61851 derived state machine of the eMH1 family.
type ChargerState byte

const (
	StateWaitingForEV        ChargerState = 0xA1
	StateEVAskingForCharge   ChargerState = 0xB1
	StateEVChargePermission  ChargerState = 0xB2
	StateEVCharged           ChargerState = 0xC2
	StateReducedCurrentError ChargerState = 0xC3
	StateReducedCurrentImbal ChargerState = 0xC4
	StateOutletDisabled      ChargerState = 0xE0
	StateProductionTest      ChargerState = 0xE1
	StateEVCCSetup           ChargerState = 0xE2
	StateBusIdle             ChargerState = 0xE3
)

// UnknownStateDescription is reported for state codes missing from the table.
// Unknown codes are data, not errors: newer firmware adds codes.
const UnknownStateDescription = "Unknown state"

var stateDescriptions = map[ChargerState]string{
	0xA1: "Waiting for EV",
	0xB1: "EV is asking for charging",
	0xB2: "EV has the permission to charge",
	0xC2: "EV is charged",
	0xC3: "C2, reduced current (error F16, F17)",
	0xC4: "C2, reduced current (imbalance F15)",
	0xE0: "Outlet disabled",
	0xE1: "Production test",
	0xE2: "EVCC setup mode",
	0xE3: "Bus idle",
	0xF1: "Unintended closed contact (welding)",
	0xF2: "Internal error",
	0xF3: "DC residual current detected",
	0xF4: "Upstream communication timeout",
	0xF5: "Lock of socket failed",
	0xF6: "CS out of range",
	0xF7: "State D requested by EV",
	0xF8: "CP out of range",
	0xF9: "Overcurrent detected",
	0xFA: "Temperature outside limits",
	0xFB: "Unintended opened contact",
}

// Description maps the state code to a human readable description. Every
// byte value maps to something; unknown codes get UnknownStateDescription.
func (s ChargerState) Description() string {
	if desc, ok := stateDescriptions[s]; ok {
		return desc
	}
	return UnknownStateDescription
}

// IsCharging reports whether the state code belongs to the charging-active
// set. Unknown codes count as not charging.
func (s ChargerState) IsCharging() bool {
	switch s {
	case StateEVAskingForCharge, StateEVChargePermission, StateEVCharged:
		return true
	}
	return false
}

func (s ChargerState) String() string {
	return fmt.Sprintf("0x%02X", byte(s))
}
