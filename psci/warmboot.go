package psci

import (
	"fmt"

	"github.com/coreward/psci/platform"
	"github.com/coreward/psci/pwrdomain"
)

// WarmBootEntry is C9: the path every CPU runs on reset re-entry (spec.md
// §4.7 "Warm-boot entry", §9 "Coroutine-like warm-boot"). If the CPU's
// own local state is already RUN this is a spurious wake during a
// retention suspend and there is nothing to finish. Otherwise the CPU's
// affinity state says whether this is a cpu_on completion (ON_PENDING)
// or a suspend completion (ON), and every ancestor domain is finally
// forced back to RUN under the same lock the finish call ran under.
func (c *Coordinator) WarmBootEntry(cpuIdx int) error {
	rec := c.scratch.Get(cpuIdx)

	if rec.LocalState().IsRun() {
		return nil
	}

	path := c.engine.AcquireLocks(cpuIdx, c.maxLvl)
	state := c.engine.GetTargetLocalStates(cpuIdx, c.maxLvl, c.scratch)

	switch affState := rec.AffInfoState(); affState {
	case pwrdomain.AffOnPending:
		c.ops.PowerDomainOnFinish(cpuIdx, state)

		if late, ok := c.ops.(platform.LateOnFinisher); ok {
			late.PowerDomainOnFinishLate(cpuIdx, state)
		}

		rec.SetAffInfoState(pwrdomain.AffOn)
	case pwrdomain.AffOn:
		c.ops.PowerDomainSuspendFinish(cpuIdx, state)
	default:
		c.engine.ReleaseLocks(path)
		panic(fmt.Errorf("psci: warm_boot_entry: cpu %d has impossible affinity state %s", cpuIdx, affState))
	}

	c.engine.SetPowerDomainsToRun(cpuIdx, c.maxLvl, c.scratch)
	c.engine.ReleaseLocks(path)

	return nil
}
