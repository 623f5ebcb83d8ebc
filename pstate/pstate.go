// Package pstate implements the PSCI power_state parameter's bit layout
// (spec.md §4.2, §9 GLOSSARY "power_state"): the 32-bit value CPU_SUSPEND
// callers pass, packing a state id, a standby/powerdown type bit, and
// the power level the request targets.
//
// Grounded on psci.h's psci_make_powerstate/psci_get_pstate_id/
// psci_get_pstate_type/psci_check_power_state macros and
// riscv_pwr_state_to_psci's RISC-V specific encoding.
package pstate

import (
	"errors"

	"github.com/coreward/psci/pwrdomain"
)

const (
	idShift   = 0
	typeShift = 16
	lvlShift  = 24
	idMask    = 0xFFFF
	typeMask  = 0x1
	lvlMask   = 0x3
	validMask = 0xFCFE0000
)

// Type distinguishes a standby request (no domain goes OFF) from a
// power-down request (at least one domain may go OFF).
type Type uint32

const (
	TypeStandby  Type = 0
	TypePowerdown Type = 1
)

// ErrInvalidPowerState is returned when a power_state value sets any of
// the reserved "should-be-zero" bits (psci_check_power_state).
var ErrInvalidPowerState = errors.New("pstate: reserved bits set in power_state parameter")

// Check verifies none of power_state's reserved bits are set.
func Check(powerState uint32) error {
	if powerState&validMask != 0 {
		return ErrInvalidPowerState
	}

	return nil
}

// Make packs a power_state parameter from a state id, type, and level.
func Make(stateID uint32, t Type, lvl pwrdomain.Level) uint32 {
	return (stateID&idMask)<<idShift | (uint32(t)&typeMask)<<typeShift | (uint32(lvl)&lvlMask)<<lvlShift
}

// StateID extracts the state id field.
func StateID(powerState uint32) uint32 { return (powerState >> idShift) & idMask }

// PStateType extracts the standby/powerdown type field.
func PStateType(powerState uint32) Type { return Type((powerState >> typeShift) & typeMask) }

// Level extracts the power level field.
func Level(powerState uint32) pwrdomain.Level {
	return pwrdomain.Level((powerState >> lvlShift) & lvlMask)
}

// RISC-V suspend power-state bit positions: wider than the ARM-derived
// power_state above, since a RISC-V SBI HSM suspend type packs the
// standby/powerdown bit at bit 31 rather than bit 16 (riscv_pwr_state_to_psci).
const (
	riscvTypeShift = 31
	riscvLvlShift  = 24
)

// DecodeRISCVPowerState translates an SBI HSM suspend_type value into
// the power_state layout the rest of this package understands, mapping
// only the type bit and the power-level field the way
// riscv_pwr_state_to_psci does (it does not touch the state id bits).
func DecodeRISCVPowerState(rstate uint32) uint32 {
	var out uint32

	if rstate&(1<<riscvTypeShift) != 0 {
		out |= 1 << typeShift
	}

	out |= rstate & (lvlMask << riscvLvlShift)

	return out
}
