package pwrdomain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/coreward/psci/cachectl"
)

// ErrTopologyOverflow is returned by BuildTree when the descriptor
// requests more domains than maxNonCPUDomains/maxCPUs allow. It is
// fatal-at-cold-boot in the original (sbi_hart_hang); callers here are
// expected to treat it the same way — there is no platform to boot if
// the topology doesn't fit.
var ErrTopologyOverflow = errors.New("pwrdomain: topology descriptor overflows compile-time bound")

// NonCpuDomain is an interior tree node: a cluster (level 1) or the
// system (the highest level). Cache-line aligned in the original so that
// writes to different domains don't thrash a shared line; here that's
// modeled by each domain owning its own cachectl.Line for local_state.
type NonCpuDomain struct {
	CPUStartIdx int
	NCPUs       int
	ParentIdx   int // -1 for the root
	Level       Level
	LockIndex   int

	lock       sync.Mutex
	localState *cachectl.Line[LocalState]
}

// LocalState returns the domain's current local state, performing the
// invalidate the original does before any cross-core read.
func (d *NonCpuDomain) LocalState() LocalState { return d.localState.Invalidate() }

// SetLocalState clean-invalidates the domain's local state to newState
// (spec.md invariant 4).
func (d *NonCpuDomain) SetLocalState(newState LocalState) { d.localState.CleanInvalidate(newState) }

// Lock acquires this domain's coordination lock. Only AcquireLocks and
// ReleaseLocks in locks.go should call this; ad-hoc acquisition defeats
// the bottom-up/top-down ordering the deadlock-freedom argument depends
// on (spec.md §4.5, §5).
func (d *NonCpuDomain) Lock() { d.lock.Lock() }

// Unlock releases this domain's coordination lock.
func (d *NonCpuDomain) Unlock() { d.lock.Unlock() }

// CpuDomain identifies one CPU leaf in the tree.
type CpuDomain struct {
	HartID    uint64
	ParentIdx int
	lock      sync.Mutex // cpu_lock: serializes concurrent cpu_on against this CPU
}

// Lock acquires this CPU's cpu_lock.
func (c *CpuDomain) Lock() { c.lock.Lock() }

// Unlock releases this CPU's cpu_lock.
func (c *CpuDomain) Unlock() { c.lock.Unlock() }

// Tree is the built power-domain tree: a flat array of non-CPU domains
// (indexed globally, parent pointers resolved within the array) and a
// flat array of CPU domains indexed by CPU index.
type Tree struct {
	NonCPU   []*NonCpuDomain
	CPUs     []*CpuDomain
	MaxLvl   Level
	byHartID map[uint64]int
}

// BuildTree expands a breadth-first domain descriptor into a Tree.
// descriptor[0] is the number of roots; each subsequent entry gives the
// child count of the previously-named node, continuing breadth-first
// until the leaves (CPUs) are reached (spec.md §4.5).
//
// nonCPULevels is the platform's fixed tree depth above the CPUs (this
// spec's system -> cluster -> core topology is nonCPULevels == 2); like
// the original's PLAT_MAX_PWR_LVL, it is a platform constant, not
// something the descriptor encodes itself, so it is passed in rather
// than guessed from descriptor's shape.
//
// maxNonCPUDomains and maxCPUs are the platform's compile-time bounds;
// exceeding either fails with ErrTopologyOverflow, mirroring the
// original's fixed-size psci_non_cpu_pd_nodes/psci_cpu_pd_nodes arrays.
func BuildTree(descriptor []int, nonCPULevels Level, maxNonCPUDomains, maxCPUs int) (*Tree, error) {
	if len(descriptor) == 0 {
		return nil, fmt.Errorf("%w: empty descriptor", ErrTopologyOverflow)
	}

	t := &Tree{byHartID: make(map[uint64]int)}

	// Breadth-first expansion, level by level, from the roots down to
	// level 1 (clusters). Each entry in descriptor is consumed in
	// order; numNodesAtLvl tracks the fan at the current level the way
	// the original's populate function does. parentOfNode[i] is the
	// global NonCpuDomain index the i-th node discovered at the current
	// level should record as its parent (-1 for roots).
	idx := 0
	numNodesAtLvl := descriptor[idx]
	idx++

	parentOfNode := make([]int, numNodesAtLvl)
	for i := range parentOfNode {
		parentOfNode[i] = -1
	}

	for level := nonCPULevels; level >= 1; level-- {
		nextParentOfNode := make([]int, 0)

		for i := 0; i < numNodesAtLvl; i++ {
			if idx >= len(descriptor) {
				return nil, fmt.Errorf("%w: descriptor truncated", ErrTopologyOverflow)
			}

			nChildren := descriptor[idx]
			idx++

			if len(t.NonCPU) >= maxNonCPUDomains {
				return nil, fmt.Errorf("%w: more than %d non-cpu domains", ErrTopologyOverflow, maxNonCPUDomains)
			}

			nd := &NonCpuDomain{
				ParentIdx:  parentOfNode[i],
				Level:      level,
				LockIndex:  len(t.NonCPU),
				localState: cachectl.NewLine(StateRun),
			}
			t.NonCPU = append(t.NonCPU, nd)

			globalIdx := len(t.NonCPU) - 1

			if level == 1 {
				// This node's children are CPU leaves, not further
				// non-CPU domains: nChildren is a CPU count.
				for c := 0; c < nChildren; c++ {
					if len(t.CPUs) >= maxCPUs {
						return nil, fmt.Errorf("%w: more than %d cpus", ErrTopologyOverflow, maxCPUs)
					}

					t.CPUs = append(t.CPUs, &CpuDomain{ParentIdx: globalIdx})
				}

				continue
			}

			for c := 0; c < nChildren; c++ {
				nextParentOfNode = append(nextParentOfNode, globalIdx)
			}
		}

		parentOfNode = nextParentOfNode
		numNodesAtLvl = len(nextParentOfNode)
	}

	for i, cpu := range t.CPUs {
		t.byHartID[cpu.HartID] = i
	}

	t.MaxLvl = nonCPULevels

	t.updatePwrLvlLimits()

	return t, nil
}

// updatePwrLvlLimits fills in CPUStartIdx/NCPUs for every non-CPU domain
// at every level, not just the ones directly above a CPU. It works by
// walking each CPU's ancestor chain in CPU-index order and noticing,
// per level, when the ancestor at that level changes from the previous
// CPU — which only works because BuildTree allocates the children of a
// given parent at contiguous CPU indices (grounded on
// psci_update_pwrlvl_limits's same assumption).
func (t *Tree) updatePwrLvlLimits() {
	nodeAtLvl := make([]int, t.MaxLvl)

	for cpuIdx := range t.CPUs {
		path := t.ParentNodes(cpuIdx, t.MaxLvl)

		for lvl := int(t.MaxLvl) - 1; lvl >= 0; lvl-- {
			nodeIdx := path[lvl]

			// nodeAtLvl starts zero-valued, which happens to equal a
			// fresh NonCpuDomain's zero-valued CPUStartIdx too, so the
			// very first CPU under node 0 at a given level needs no
			// explicit assignment here (grounded on
			// psci_update_pwrlvl_limits's identical reliance on static
			// zero-initialization).
			if nodeIdx != nodeAtLvl[lvl] {
				nodeAtLvl[lvl] = nodeIdx
				t.NonCPU[nodeIdx].CPUStartIdx = cpuIdx
			}

			t.NonCPU[nodeIdx].NCPUs++
		}
	}
}

// AssignHartID records hartID as cpuIdx's hart id and makes it
// resolvable through CPUIndexByHartID. Nothing in the warm-boot path
// calls it; the tree's builder assigns hart ids after BuildTree.
func (t *Tree) AssignHartID(cpuIdx int, hartID uint64) {
	t.CPUs[cpuIdx].HartID = hartID
	t.byHartID[hartID] = cpuIdx
}

// CPUIndexByHartID resolves a hart id to a CPU index, or (-1, false) if
// unknown (spec.md core_pos_by_mpidr / psci_validate_mpidr).
func (t *Tree) CPUIndexByHartID(hartID uint64) (int, bool) {
	idx, ok := t.byHartID[hartID]
	if !ok {
		return -1, false
	}

	return idx, true
}

// ParentNodes returns the ordered ancestor chain for cpuIdx from level 1
// up to and including upToLevel (spec.md psci_get_parent_pwr_domain_nodes).
func (t *Tree) ParentNodes(cpuIdx int, upToLevel Level) []int {
	path := make([]int, 0, int(upToLevel))

	parent := t.CPUs[cpuIdx].ParentIdx

	for lvl := Level(1); lvl <= upToLevel; lvl++ {
		path = append(path, parent)
		parent = t.NonCPU[parent].ParentIdx
	}

	return path
}
