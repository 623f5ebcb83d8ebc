package psci

import (
	"github.com/coreward/psci/coordinate"
	"github.com/coreward/psci/platform"
	"github.com/coreward/psci/pwrdomain"
)

// Coordinator wires a power-domain tree, its state-coordination engine,
// per-CPU scratch, and a platform backend together into the PSCI call
// surface (spec.md §2 "Data flow": a PSCI call enters C7, which consults
// C5/C6, then invokes C8).
type Coordinator struct {
	tree    *pwrdomain.Tree
	engine  *coordinate.Engine
	scratch *pwrdomain.Scratch
	ops     platform.Ops
	maxLvl  pwrdomain.Level
}

// NewCoordinator builds a Coordinator over tree, driving ops for every
// hardware transition. ops must be installed before the first PSCI call
// is served (spec.md §4.8).
func NewCoordinator(tree *pwrdomain.Tree, ops platform.Ops) *Coordinator {
	return &Coordinator{
		tree:    tree,
		engine:  coordinate.NewEngine(tree),
		scratch: pwrdomain.NewScratch(tree),
		ops:     ops,
		maxLvl:  tree.MaxLvl,
	}
}

// Scratch exposes the per-CPU record table for callers (tests, a
// dispatch shim) that need to inspect affinity state directly.
func (c *Coordinator) Scratch() *pwrdomain.Scratch { return c.scratch }

// SeedOnline marks cpuIdx's requested state as RUN at every ancestor
// level. A fresh PerCpuRecord defaults to the ON affinity state (a
// simulation convenience: the simulator boots every CPU running rather
// than modeling cold-boot release of only the primary core), but the
// requested-state table independently defaults every cell to the
// deepest OFF state, the same initialization the original's
// psci_init_req_local_pwr_states performs at cold boot. Call SeedOnline
// once for every CPU the simulation starts in the ON state so the two
// tables agree before the first coordination pass runs.
func (c *Coordinator) SeedOnline(cpuIdx int) {
	c.engine.SetPowerDomainsToRun(cpuIdx, c.maxLvl, c.scratch)
}

// countOn returns how many CPUs currently report ON, used by
// SystemSuspend to enforce "only the last ON CPU may suspend the
// system" (spec.md §4.7).
func (c *Coordinator) countOn() int {
	n := 0

	for i := range c.tree.CPUs {
		if c.scratch.Get(i).AffInfoState() == pwrdomain.AffOn {
			n++
		}
	}

	return n
}
