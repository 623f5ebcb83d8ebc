package coordinate

import (
	"errors"
	"fmt"

	"github.com/coreward/psci/pwrdomain"
)

// ErrLevelOutOfRange is returned when endLvl exceeds the tree's MaxLvl.
// The original treats this as a cold-path programming error and halts
// (sbi_hart_hang); here it is a plain error so the caller decides.
var ErrLevelOutOfRange = errors.New("coordinate: end level exceeds tree depth")

// Engine runs state coordination for one tree: it owns the requested-
// state table and exposes the per-operation entry points every PSCI
// handler drives (spec.md §4.6).
type Engine struct {
	tree      *pwrdomain.Tree
	requested *RequestedStates
}

// NewEngine builds an Engine over tree.
func NewEngine(tree *pwrdomain.Tree) *Engine {
	return &Engine{
		tree:      tree,
		requested: NewRequestedStates(tree.MaxLvl, len(tree.CPUs)),
	}
}

// DoStateCoordination walks the parent chain from cpuIdx up to endLvl,
// folding each level's newly recorded request against every sibling
// CPU's last request for that level (the minimum-over-children rule),
// and writes the result back into state. It stops climbing as soon as a
// level's target comes back RUN, since a domain that must stay RUN
// makes every ancestor RUN too (spec.md §4.6, psci_do_state_coordination).
//
// state must already hold cpuIdx's own requested state for every level
// up to endLvl; on return it holds the coordinated target for each of
// those levels instead.
func (e *Engine) DoStateCoordination(cpuIdx int, endLvl pwrdomain.Level, state *PowerState) error {
	if endLvl > e.tree.MaxLvl {
		return fmt.Errorf("%w: %d > %d", ErrLevelOutOfRange, endLvl, e.tree.MaxLvl)
	}

	path := e.tree.ParentNodes(cpuIdx, endLvl)

	brokeAt := endLvl + 1

	for i, lvl := 0, pwrdomain.Level(1); lvl <= endLvl; i, lvl = i+1, lvl+1 {
		nodeIdx := path[i]
		node := e.tree.NonCPU[nodeIdx]

		e.requested.Set(lvl, cpuIdx, state.Levels[lvl])

		target := e.requested.TargetState(lvl, node.CPUStartIdx, node.NCPUs)
		state.Levels[lvl] = target

		if target.IsRun() {
			brokeAt = lvl
			break
		}
	}

	// Any level above where we broke early never got its target
	// computed; its requested state is whatever state already carried
	// for it, and its target collapses to RUN since the level below it
	// is RUN (psci_do_state_coordination's second loop).
	for lvl := brokeAt + 1; lvl <= endLvl; lvl++ {
		e.requested.Set(lvl, cpuIdx, state.Levels[lvl])
		state.Levels[lvl] = pwrdomain.StateRun
	}

	return nil
}

// SetTargetLocalStates writes the coordinated target state of every
// level between cpuIdx and endLvl back into the tree's per-domain
// storage (psci_set_target_local_pwr_states). Call this after
// DoStateCoordination once the caller is ready to commit the new
// topology-wide view (normally immediately before powering the domain
// down).
func (e *Engine) SetTargetLocalStates(cpuIdx int, endLvl pwrdomain.Level, state *PowerState, scratch *pwrdomain.Scratch) {
	scratch.Get(cpuIdx).SetLocalState(state.Levels[pwrdomain.LevelCPU])

	path := e.tree.ParentNodes(cpuIdx, endLvl)
	for i, lvl := 0, pwrdomain.Level(1); lvl <= endLvl; i, lvl = i+1, lvl+1 {
		e.tree.NonCPU[path[i]].SetLocalState(state.Levels[lvl])
	}
}

// GetTargetLocalStates reads back the local power state of every domain
// from cpuIdx up to and including endLvl, setting every level above
// endLvl to RUN (psci_get_target_local_pwr_states). Called after a CPU
// has been physically powered on, to learn which state each ancestor
// domain actually emerged from.
func (e *Engine) GetTargetLocalStates(cpuIdx int, endLvl pwrdomain.Level, scratch *pwrdomain.Scratch) *PowerState {
	state := NewPowerState(e.tree.MaxLvl)
	state.Levels[pwrdomain.LevelCPU] = scratch.Get(cpuIdx).LocalState()

	path := e.tree.ParentNodes(cpuIdx, endLvl)
	for i, lvl := 0, pwrdomain.Level(1); lvl <= endLvl; i, lvl = i+1, lvl+1 {
		state.Levels[lvl] = e.tree.NonCPU[path[i]].LocalState()
	}

	for lvl := endLvl + 1; lvl <= e.tree.MaxLvl; lvl++ {
		state.Levels[lvl] = pwrdomain.StateRun
	}

	return state
}

// SetPowerDomainsToRun forces the requested and target state of cpuIdx
// and every ancestor up to endLvl back to RUN (psci_set_pwr_domains_to_run),
// called once a CPU has finished its warm-boot path and its domains are
// known to be live again.
func (e *Engine) SetPowerDomainsToRun(cpuIdx int, endLvl pwrdomain.Level, scratch *pwrdomain.Scratch) {
	scratch.Get(cpuIdx).SetLocalState(pwrdomain.StateRun)

	path := e.tree.ParentNodes(cpuIdx, endLvl)
	for i, lvl := 0, pwrdomain.Level(1); lvl <= endLvl; i, lvl = i+1, lvl+1 {
		e.requested.Set(lvl, cpuIdx, pwrdomain.StateRun)
		e.tree.NonCPU[path[i]].SetLocalState(pwrdomain.StateRun)
	}
}

// AcquireLocks takes the coordination locks for cpuIdx's ancestor chain
// up to endLvl, bottom-up.
func (e *Engine) AcquireLocks(cpuIdx int, endLvl pwrdomain.Level) []int {
	path := e.tree.ParentNodes(cpuIdx, endLvl)
	e.tree.AcquireLocks(path)

	return path
}

// ReleaseLocks releases a path previously returned by AcquireLocks,
// top-down.
func (e *Engine) ReleaseLocks(path []int) {
	e.tree.ReleaseLocks(path)
}
