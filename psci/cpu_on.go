package psci

import (
	"fmt"

	"github.com/coreward/psci/pwrdomain"
)

// CPUOn implements PSCI_CPU_ON (spec.md §4.7): resolves targetHartID to
// a tree index, serializes against concurrent cpu_on calls for the same
// target via that CPU's cpu_lock, and asks the platform backend to
// release it from reset.
func (c *Coordinator) CPUOn(targetHartID uint64, entrypoint uint64) error {
	idx, ok := c.tree.CPUIndexByHartID(targetHartID)
	if !ok {
		return fmt.Errorf("%w: unknown hart id %#x", ErrInvalidParams, targetHartID)
	}

	cpu := c.tree.CPUs[idx]
	cpu.Lock()
	defer cpu.Unlock()

	rec := c.scratch.Get(idx)

	switch state := rec.AffInfoState(); state {
	case pwrdomain.AffOn:
		return ErrAlreadyOn
	case pwrdomain.AffOnPending:
		return ErrOnPending
	case pwrdomain.AffOff:
		// fall through
	default:
		panic(fmt.Errorf("psci: cpu_on: cpu %d has impossible affinity state %s", idx, state))
	}

	rec.SetAffInfoState(pwrdomain.AffOnPending)

	if err := c.ops.PowerDomainOn(targetHartID); err != nil {
		rec.SetAffInfoState(pwrdomain.AffOff)

		return fmt.Errorf("psci: cpu_on: %w", err)
	}

	return nil
}
