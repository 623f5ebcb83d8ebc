package psci

import (
	"fmt"

	"github.com/coreward/psci/coordinate"
)

// SystemSuspend implements PSCI_SYSTEM_SUSPEND (spec.md §4.7), called by
// cpuIdx. It is only legal when cpuIdx is the last CPU still ON; every
// other CPU must already have gone through cpu_off or a power-down
// suspend. The target state always targets OFF at every level, distinct
// from CPUSuspend's per-call target, and reaches system level (cpu_suspend
// deliberately clamps the system level to RUN; only this entry point may
// take the system the rest of the way down — spec.md §9 open question).
func (c *Coordinator) SystemSuspend(cpuIdx int, entrypoint uint64) error {
	if c.countOn() > 1 {
		return fmt.Errorf("%w: more than one cpu on", ErrDenied)
	}

	target := c.ops.GetSysSuspendPowerState()

	if err := coordinate.ValidateSuspendRequest(target, true); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	path := c.engine.AcquireLocks(cpuIdx, c.maxLvl)

	if err := c.engine.DoStateCoordination(cpuIdx, c.maxLvl, target); err != nil {
		c.engine.ReleaseLocks(path)
		panic(fmt.Errorf("psci: system_suspend: %w", err))
	}

	c.engine.SetTargetLocalStates(cpuIdx, c.maxLvl, target, c.scratch)

	c.ops.PowerDomainSuspend(cpuIdx, target)
	c.ops.SystemSuspend()

	c.engine.ReleaseLocks(path)

	return nil
}
