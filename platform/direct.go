package platform

import (
	"fmt"

	"github.com/coreward/psci/cachectl"
	"github.com/coreward/psci/coordinate"
	"github.com/coreward/psci/interconnect"
	"github.com/coreward/psci/pstate"
	"github.com/coreward/psci/pwrdomain"
)

// PowerRailRegs is the simulated power-controller register interface a
// DirectOps backend pokes directly: one rail per domain (CPU or
// cluster), following the same Get/Set-over-a-handle shape as the
// hypervisor register accessors this module's register-poking code is
// grounded on.
type PowerRailRegs interface {
	// RequestRail asks the power controller to turn domainID on (on ==
	// true) or off.
	RequestRail(domainID int, on bool)

	// RailOn reports whether domainID's rail has actually settled to
	// the requested state. DirectOps polls this after RequestRail.
	RailOn(domainID int) bool
}

// DirectOps is a platform.Ops backend that drives power rails and
// interconnect coherency directly: no external processor, no mailbox,
// just register pokes bracketed by the fences cachectl exposes. This is
// the backend a single-chip platform without an SCP would register.
type DirectOps struct {
	tree         *pwrdomain.Tree
	interconnect *interconnect.Controller
	rails        PowerRailRegs

	// masterIDOf maps a cluster's NonCpuDomain index to the
	// interconnect master id whose snoop/DVM bit guards that cluster's
	// coherency participation.
	masterIDOf map[int]int

	// l2RegsOf maps a cluster's NonCpuDomain index to the L2
	// flush-handshake registers guarding that cluster's L2, consulted
	// only when the cluster itself is going OFF. A cluster with no
	// entry here is treated as having no software-visible L2 flush step.
	l2RegsOf map[int]cachectl.L2FlushRegisters

	// dcache and cacheState are this simulation's per-CPU D-cache
	// content and enable/prefetch bits (§4.1): one of each per CPU
	// index, built once at construction.
	dcache     map[int]*cachectl.Controller
	cacheState map[int]*cachectl.CoreCacheState
}

// dcacheRegionSize is the simulated size of one core's L1 D-cache
// content region: a handful of lines is enough to exercise Flush/
// InvalidateAll's line-touching behavior without modeling a real cache.
const dcacheRegionSize = 4 * cachectl.LineSize

// NewDirectOps builds a DirectOps backend over tree, wiring rail
// control through rails, coherency control through ic, and each
// cluster's L2 flush handshake through l2RegsOf. masterIDOf and
// l2RegsOf both map a level-1 (cluster) NonCpuDomain index to that
// cluster's hardware; a cluster missing from l2RegsOf is simply treated
// as having no software L2 flush step.
func NewDirectOps(
	tree *pwrdomain.Tree,
	ic *interconnect.Controller,
	rails PowerRailRegs,
	masterIDOf map[int]int,
	l2RegsOf map[int]cachectl.L2FlushRegisters,
) *DirectOps {
	d := &DirectOps{
		tree:         tree,
		interconnect: ic,
		rails:        rails,
		masterIDOf:   masterIDOf,
		l2RegsOf:     l2RegsOf,
		dcache:       make(map[int]*cachectl.Controller, len(tree.CPUs)),
		cacheState:   make(map[int]*cachectl.CoreCacheState, len(tree.CPUs)),
	}

	for i := range tree.CPUs {
		d.dcache[i] = cachectl.NewController(dcacheRegionSize)
		d.cacheState[i] = cachectl.NewCoreCacheState()
	}

	return d
}

// CPUStandby parks cpuIdx in a standby state: a real backend would
// execute wfi here. The simulation only needs the fence that would
// otherwise order the standby instruction against prior stores.
func (d *DirectOps) CPUStandby(cpuIdx int, cpuState pwrdomain.LocalState) {
	cachectl.FenceRWRW()
}

// clusterOf returns cpuIdx's immediate (level-1) ancestor NonCpuDomain
// index.
func (d *DirectOps) clusterOf(cpuIdx int) int {
	path := d.tree.ParentNodes(cpuIdx, 1)

	return path[0]
}

// PowerDomainOn requests hartID's rail on and polls until it settles.
func (d *DirectOps) PowerDomainOn(hartID uint64) error {
	idx, ok := d.tree.CPUIndexByHartID(hartID)
	if !ok {
		return fmt.Errorf("platform: unknown hart id %#x", hartID)
	}

	d.rails.RequestRail(idx, true)

	for !d.rails.RailOn(idx) {
		cachectl.FenceIO()
	}

	return nil
}

// PowerDomainOff runs the §4.1/§4.7-step-5 power-down sequence for
// cpuIdx: disable data prefetch, flush the core's own D-cache, disable
// the D-cache, drop the cluster out of coherency and flush its L2 if
// target takes the cluster OFF too, then assert the core's rail off. A
// cluster never loses power while a CPU inside it is still live, so
// coherency and L2 are dropped before the rail is cut, never after.
func (d *DirectOps) PowerDomainOff(cpuIdx int, target *coordinate.PowerState) {
	maxOffLvl := target.FindMaxOffLevel()
	if maxOffLvl == pwrdomain.InvalidLevel {
		return
	}

	cache := d.cacheState[cpuIdx]
	cache.DisableDataPrefetch()
	d.dcache[cpuIdx].FlushAll()
	cache.DisableDCache()

	if maxOffLvl >= 1 {
		nodeIdx := d.clusterOf(cpuIdx)

		if master, ok := d.masterIDOf[nodeIdx]; ok {
			_ = d.interconnect.DisableSnoopDVM(master)
		}

		if regs, ok := d.l2RegsOf[nodeIdx]; ok {
			cachectl.L2Flush(regs, cachectl.L2FlushSoftwareRequest)
		}
	}

	d.rails.RequestRail(cpuIdx, false)

	for d.rails.RailOn(cpuIdx) {
		cachectl.FenceIO()
	}
}

// PowerDomainSuspend mirrors PowerDomainOff for a suspend-initiated
// power-down: the distinction between the two only matters to a
// backend that needs to preserve more context across the deeper OFF
// state, which this simulation doesn't model.
func (d *DirectOps) PowerDomainSuspend(cpuIdx int, target *coordinate.PowerState) {
	d.PowerDomainOff(cpuIdx, target)
}

// PowerDomainOnFinish runs the §4.1/§4.9 power-up sequence for cpuIdx:
// re-enable coherency for its cluster if this CPU's power-on brought the
// cluster back, then invalidate and re-enable the core's own D-cache and
// data prefetch regardless, since the core itself always lost both on
// the way down.
func (d *DirectOps) PowerDomainOnFinish(cpuIdx int, target *coordinate.PowerState) {
	if !target.Levels[1].IsRun() {
		nodeIdx := d.clusterOf(cpuIdx)
		if master, ok := d.masterIDOf[nodeIdx]; ok {
			_ = d.interconnect.EnableSnoopDVM(master)
		}
	}

	d.dcache[cpuIdx].InvalidateAll()

	cache := d.cacheState[cpuIdx]
	cache.EnableDCache()
	cache.EnableDataPrefetch()
}

// PowerDomainSuspendFinish mirrors PowerDomainOnFinish.
func (d *DirectOps) PowerDomainSuspendFinish(cpuIdx int, target *coordinate.PowerState) {
	d.PowerDomainOnFinish(cpuIdx, target)
}

// PowerDomainPwrDownWFI is the last step of the power-down path: in
// real firmware this never returns because the rail cuts power to the
// core underneath it; the simulation returns so a test harness can
// observe the full sequence completed.
func (d *DirectOps) PowerDomainPwrDownWFI(cpuIdx int, target *coordinate.PowerState) {
	cachectl.FenceRWRW()
}

func (d *DirectOps) SystemOff()     {}
func (d *DirectOps) SystemReset()   {}
func (d *DirectOps) SystemSuspend() {}

// ValidatePowerState decodes a raw CPU_SUSPEND power_state parameter
// using this backend's own bit layout and fills reqState accordingly.
// DirectOps uses the pstate package's layout directly (no
// further translation needed, since it never leaves this process).
func (d *DirectOps) ValidatePowerState(powerState uint32, reqState *coordinate.PowerState) error {
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

// GetSysSuspendPowerState targets OFF at every level: a system suspend
// powers everything down but the retention needed to resume.
func (d *DirectOps) GetSysSuspendPowerState() *coordinate.PowerState {
	state := coordinate.NewPowerState(d.tree.MaxLvl)
	for l := range state.Levels {
		state.Levels[l] = pwrdomain.StateOff
	}

	return state
}
