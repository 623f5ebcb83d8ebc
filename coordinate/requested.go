// Package coordinate implements the platform-coordinated state
// coordination engine (spec.md §4.6): the per-level minimum-over-children
// rule that turns one CPU's locally requested power state into a target
// state for every domain between it and some end level.
//
// Grounded on psci_common.c's psci_req_local_pwr_states table and
// psci_do_state_coordination/psci_set_pwr_domains_to_run.
package coordinate

import (
	"github.com/coreward/psci/cachectl"
	"github.com/coreward/psci/pwrdomain"
)

// RequestedStates holds, for every non-CPU level and every CPU, the
// local power state that CPU last requested for that level. The original
// keeps this cache-line aligned per level so writes from different CPUs
// at the same level don't thrash a shared line; here each (level, cpu)
// cell is its own cachectl.Line for the same reason.
type RequestedStates struct {
	maxLvl pwrdomain.Level
	nCPUs  int
	rows   []*cachectl.Line[pwrdomain.LocalState]
}

// NewRequestedStates allocates the table for a tree with maxLvl non-CPU
// levels and nCPUs leaves, every cell initialized to the deepest OFF
// state (psci_init_req_local_pwr_states).
func NewRequestedStates(maxLvl pwrdomain.Level, nCPUs int) *RequestedStates {
	rows := make([]*cachectl.Line[pwrdomain.LocalState], int(maxLvl)*nCPUs)
	for i := range rows {
		rows[i] = cachectl.NewLine(pwrdomain.MaxOffState)
	}

	return &RequestedStates{maxLvl: maxLvl, nCPUs: nCPUs, rows: rows}
}

func (r *RequestedStates) index(lvl pwrdomain.Level, cpuIdx int) int {
	return (int(lvl)-1)*r.nCPUs + cpuIdx
}

// Set records cpuIdx's requested local power state for lvl (lvl must be
// > LevelCPU: the CPU level doesn't use this table, since a CPU's
// requested and target state are the same thing).
func (r *RequestedStates) Set(lvl pwrdomain.Level, cpuIdx int, state pwrdomain.LocalState) {
	r.rows[r.index(lvl, cpuIdx)].CleanInvalidate(state)
}

// Get returns cpuIdx's last requested local power state for lvl.
func (r *RequestedStates) Get(lvl pwrdomain.Level, cpuIdx int) pwrdomain.LocalState {
	return r.rows[r.index(lvl, cpuIdx)].Invalidate()
}

// TargetState folds the requested states of the cpuStart..cpuStart+nCPUs-1
// range at lvl down to a single target, using the minimum-over-children
// rule: the shallowest numeric value wins, since lower LocalState values
// are shallower (spec.md §4.6, plat_get_target_pwr_state).
func (r *RequestedStates) TargetState(lvl pwrdomain.Level, cpuStart, nCPUs int) pwrdomain.LocalState {
	target := pwrdomain.MaxOffState

	for c := cpuStart; c < cpuStart+nCPUs; c++ {
		if s := r.Get(lvl, c); s < target {
			target = s
		}
	}

	return target
}
