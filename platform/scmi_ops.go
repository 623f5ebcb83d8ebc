package platform

import (
	"fmt"

	"github.com/coreward/psci/coordinate"
	"github.com/coreward/psci/pstate"
	"github.com/coreward/psci/pwrdomain"
	"github.com/coreward/psci/scmi"
)

// SCMIOps is a platform.Ops backend that forwards every power-management
// decision to an external system-control processor over the mailbox
// transport (spec.md §4.8): instead of poking rails directly, it packs
// the whole per-level state vector into one SCMI power-state word and
// lets POWER_STATE_SET carry it across.
type SCMIOps struct {
	tree   *pwrdomain.Tree
	handle *scmi.Handle
}

// NewSCMIOps builds an SCMIOps backend over an already-initialized SCMI
// handle.
func NewSCMIOps(tree *pwrdomain.Tree, handle *scmi.Handle) *SCMIOps {
	return &SCMIOps{tree: tree, handle: handle}
}

// packWord packs every level of state into one SCMI power-state word
// (spec.md §4.8): level 0 holds the deepest OFF/ON/SLEEP encoding for
// the CPU, subsequent nibbles hold each ancestor level, and the max-
// level field records the highest level that is not RUN (level 0 when
// every level is RUN).
func packWord(state *coordinate.PowerState) uint32 {
	var word uint32

	for lvl, s := range state.Levels {
		word = scmi.SetPwrStateLvl(word, uint(lvl), wireState(s))
	}

	maxLvl := state.FindTargetSuspendLevel()
	if maxLvl == pwrdomain.InvalidLevel {
		maxLvl = pwrdomain.LevelCPU
	}

	word = scmi.SetMaxLevel(word, uint(maxLvl))

	return word
}

func wireState(s pwrdomain.LocalState) uint32 {
	switch s.Type() {
	case pwrdomain.TypeRun:
		return scmi.WireStateOn
	case pwrdomain.TypeRetention:
		return scmi.WireStateSleep
	default:
		return scmi.WireStateOff
	}
}

func (s *SCMIOps) CPUStandby(cpuIdx int, cpuState pwrdomain.LocalState) {}

// PowerDomainOn asks the SCP to bring hartID's domain up.
func (s *SCMIOps) PowerDomainOn(hartID uint64) error {
	idx, ok := s.tree.CPUIndexByHartID(hartID)
	if !ok {
		return scmi.ErrProtocolViolation
	}

	return s.handle.Client.PowerStateSet(uint32(idx), scmi.WireStateOn, true)
}

// PowerDomainOff packs target and forwards it as an async POWER_STATE_SET
// scoped to cpuIdx's domain.
func (s *SCMIOps) PowerDomainOff(cpuIdx int, target *coordinate.PowerState) {
	word := packWord(target)
	_ = s.handle.Client.PowerStateSet(uint32(cpuIdx), word, true)
}

// PowerDomainSuspend mirrors PowerDomainOff.
func (s *SCMIOps) PowerDomainSuspend(cpuIdx int, target *coordinate.PowerState) {
	s.PowerDomainOff(cpuIdx, target)
}

func (s *SCMIOps) PowerDomainOnFinish(cpuIdx int, target *coordinate.PowerState)      {}
func (s *SCMIOps) PowerDomainSuspendFinish(cpuIdx int, target *coordinate.PowerState) {}
func (s *SCMIOps) PowerDomainPwrDownWFI(cpuIdx int, target *coordinate.PowerState)    {}

// SystemOff issues a forceful SYSTEM_POWER_STATE_SET(SHUTDOWN).
func (s *SCMIOps) SystemOff() {
	_ = s.handle.Client.SystemPowerStateSet(scmi.FlagForceful, scmi.SystemStateShutdown)
}

// SystemReset issues a forceful SYSTEM_POWER_STATE_SET(COLD_RESET).
func (s *SCMIOps) SystemReset() {
	_ = s.handle.Client.SystemPowerStateSet(scmi.FlagForceful, scmi.SystemStateCold)
}

// SystemSuspend issues a forceful SYSTEM_POWER_STATE_SET(SUSPEND), the
// call S3 requires happen exactly once per system_suspend.
func (s *SCMIOps) SystemSuspend() {
	_ = s.handle.Client.SystemPowerStateSet(scmi.FlagForceful, scmi.SystemStateSuspend)
}

func (s *SCMIOps) ValidatePowerState(powerState uint32, reqState *coordinate.PowerState) error {
	if err := pstate.Check(powerState); err != nil {
		return err
	}

	lvl := pstate.Level(powerState)
	if int(lvl) >= len(reqState.Levels) {
		return fmt.Errorf("%w: power level %d exceeds platform max", pstate.ErrInvalidPowerState, lvl)
	}

	stateID := pstate.StateID(powerState)

	for l := pwrdomain.Level(0); l <= lvl; l++ {
		reqState.Levels[l] = pwrdomain.LocalState(stateID)
	}

	for l := lvl + 1; l < pwrdomain.Level(len(reqState.Levels)); l++ {
		reqState.Levels[l] = pwrdomain.StateRun
	}

	return nil
}

// GetSysSuspendPowerState targets OFF at every level, same as DirectOps:
// the choice of transport doesn't change what a system suspend asks for.
func (s *SCMIOps) GetSysSuspendPowerState() *coordinate.PowerState {
	state := coordinate.NewPowerState(s.tree.MaxLvl)
	for l := range state.Levels {
		state.Levels[l] = pwrdomain.StateOff
	}

	return state
}
