package psci

import (
	"fmt"

	"github.com/coreward/psci/coordinate"
	"github.com/coreward/psci/platform"
	"github.com/coreward/psci/pwrdomain"
)

// CPUOff implements PSCI_CPU_OFF (spec.md §4.7) for the calling CPU
// cpuIdx. It never returns in the original (the CPU parks in
// pwr_domain_pwr_down_wfi); this port returns once that final hook
// completes so a test or simulated-hart goroutine can observe the
// sequence finished.
func (c *Coordinator) CPUOff(cpuIdx int) error {
	endLvl := c.maxLvl

	target := coordinate.NewPowerState(endLvl)
	for lvl := range target.Levels {
		target.Levels[lvl] = pwrdomain.StateOff
	}

	if early, ok := c.ops.(platform.EarlyOffer); ok {
		if err := early.PowerDomainOffEarly(cpuIdx, target); err != nil {
			return fmt.Errorf("%w: %v", ErrDenied, err)
		}
	}

	path := c.engine.AcquireLocks(cpuIdx, endLvl)

	if err := c.engine.DoStateCoordination(cpuIdx, endLvl, target); err != nil {
		c.engine.ReleaseLocks(path)
		panic(fmt.Errorf("psci: cpu_off: %w", err))
	}

	c.engine.SetTargetLocalStates(cpuIdx, endLvl, target, c.scratch)

	// Point of no return: once this returns the domains named in target
	// have lost power.
	c.ops.PowerDomainOff(cpuIdx, target)

	c.engine.ReleaseLocks(path)

	c.scratch.Get(cpuIdx).SetAffInfoState(pwrdomain.AffOff)

	c.ops.PowerDomainPwrDownWFI(cpuIdx, target)

	return nil
}
