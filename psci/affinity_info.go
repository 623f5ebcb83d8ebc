package psci

import (
	"fmt"

	"github.com/coreward/psci/pwrdomain"
)

// AffinityInfo implements PSCI_AFFINITY_INFO (spec.md §4.7): reports the
// last-observed affinity state of the CPU identified by targetHartID.
// Only lowestLevel == LevelCPU is supported, matching this spec's scope
// (affinity queries above CPU granularity are out of scope).
func (c *Coordinator) AffinityInfo(targetHartID uint64, lowestLevel pwrdomain.Level) (pwrdomain.AffState, error) {
	if lowestLevel != pwrdomain.LevelCPU {
		return 0, fmt.Errorf("%w: lowest level %d not supported", ErrInvalidParams, lowestLevel)
	}

	idx, ok := c.tree.CPUIndexByHartID(targetHartID)
	if !ok {
		return 0, fmt.Errorf("%w: unknown hart id %#x", ErrInvalidParams, targetHartID)
	}

	return c.scratch.Get(idx).AffInfoState(), nil
}
