package psci

import (
	"fmt"

	"github.com/coreward/psci/coordinate"
	"github.com/coreward/psci/platform"
	"github.com/coreward/psci/pstate"
	"github.com/coreward/psci/pwrdomain"
)

// CPUSuspend implements PSCI_CPU_SUSPEND (spec.md §4.7) for the calling
// CPU cpuIdx. A retention-only request at CPU level takes the fast
// "CPU standby" path and never touches the tree; anything deeper runs
// full state coordination.
func (c *Coordinator) CPUSuspend(cpuIdx int, powerState uint32, entrypoint uint64) error {
	reqState := coordinate.NewPowerState(c.maxLvl)

	if err := c.ops.ValidatePowerState(powerState, reqState); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	// The system level is clamped to RUN: only SystemSuspend may take the
	// system domain down.
	reqState.Levels[c.maxLvl] = pwrdomain.StateRun

	isPowerDown := pstate.PStateType(powerState) == pstate.TypePowerdown

	if err := coordinate.ValidateSuspendRequest(reqState, isPowerDown); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	targetLvl := reqState.FindTargetSuspendLevel()

	if targetLvl == pwrdomain.LevelCPU && !isPowerDown {
		return c.cpuStandby(cpuIdx, reqState.Levels[pwrdomain.LevelCPU])
	}

	path := c.engine.AcquireLocks(cpuIdx, targetLvl)

	if err := c.engine.DoStateCoordination(cpuIdx, targetLvl, reqState); err != nil {
		c.engine.ReleaseLocks(path)
		panic(fmt.Errorf("psci: cpu_suspend: %w", err))
	}

	c.engine.SetTargetLocalStates(cpuIdx, targetLvl, reqState, c.scratch)

	if early, ok := c.ops.(platform.EarlySuspendPowerDowner); ok && isPowerDown {
		early.PowerDomainSuspendPwrdownEarly(cpuIdx, reqState)
	}

	c.ops.PowerDomainSuspend(cpuIdx, reqState)

	c.engine.ReleaseLocks(path)

	if isPowerDown {
		// Powers down toward the same warm-boot re-entry cpu_off uses;
		// the caller does not return from here in real firmware.
		return nil
	}

	return c.suspendToStandbyFinisher(cpuIdx, targetLvl)
}

// cpuStandby is the CPU-standby fast path (spec.md §4.7 step 4): the CPU
// parks briefly without powering any domain off and without taking any
// coordination lock.
func (c *Coordinator) cpuStandby(cpuIdx int, cpuState pwrdomain.LocalState) error {
	rec := c.scratch.Get(cpuIdx)

	rec.SetLocalState(cpuState)
	c.ops.CPUStandby(cpuIdx, cpuState)
	rec.SetLocalState(pwrdomain.StateRun)

	return nil
}

// suspendToStandbyFinisher runs once a retention-only (non-power-down)
// suspend's wait-for-interrupt returns: it re-acquires the same parent
// chain, reads back the coordinated state, lets the platform finish the
// suspend, and restores every level to RUN (spec.md §4.7 step 6).
func (c *Coordinator) suspendToStandbyFinisher(cpuIdx int, endLvl pwrdomain.Level) error {
	path := c.engine.AcquireLocks(cpuIdx, endLvl)

	state := c.engine.GetTargetLocalStates(cpuIdx, endLvl, c.scratch)
	c.ops.PowerDomainSuspendFinish(cpuIdx, state)
	c.engine.SetPowerDomainsToRun(cpuIdx, endLvl, c.scratch)

	c.engine.ReleaseLocks(path)

	return nil
}
