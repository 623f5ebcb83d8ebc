package pwrdomain

// AcquireLocks takes the coordination locks along path in order of
// increasing power level (bottom-up: the domain closest to the CPU
// first), so that by the time every lock is held the topology above the
// calling CPU cannot change underneath it (spec.md §4.5,
// psci_acquire_pwr_domain_locks). path is expected to be the output of
// Tree.ParentNodes, already ordered level 1 upward.
//
// Every AcquireLocks must be paired with a ReleaseLocks over the same
// path; callers should not take a NonCpuDomain's lock directly.
func (t *Tree) AcquireLocks(path []int) {
	for _, nodeIdx := range path {
		t.NonCPU[nodeIdx].Lock()
	}
}

// ReleaseLocks releases the locks taken by AcquireLocks in the opposite
// order (top-down: the domain farthest from the CPU first), mirroring
// psci_release_pwr_domain_locks.
func (t *Tree) ReleaseLocks(path []int) {
	for i := len(path) - 1; i >= 0; i-- {
		t.NonCPU[path[i]].Unlock()
	}
}
