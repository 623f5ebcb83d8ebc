package psci

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreward/psci/pstate"
	"github.com/coreward/psci/pwrdomain"
)

func twoClusterDescriptor() []int {
	return []int{1, 2, 4, 4}
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeOps, *pwrdomain.Tree) {
	t.Helper()

	tree, err := pwrdomain.BuildTree(twoClusterDescriptor(), 2, 16, 16)
	require.NoError(t, err)

	for i := range tree.CPUs {
		tree.AssignHartID(i, uint64(i)+1)
	}

	ops := newFakeOps(tree)
	c := NewCoordinator(tree, ops)

	for i := range tree.CPUs {
		c.SeedOnline(i)
	}

	return c, ops, tree
}

func TestCPUOnSuccessMarksOnPending(t *testing.T) {
	c, ops, tree := newTestCoordinator(t)

	idx, ok := tree.CPUIndexByHartID(3)
	require.True(t, ok)

	c.Scratch().Get(idx).SetAffInfoState(pwrdomain.AffOff)

	require.NoError(t, c.CPUOn(3, 0x1000))
	require.Equal(t, pwrdomain.AffOnPending, c.Scratch().Get(idx).AffInfoState())
	require.Equal(t, []uint64{3}, ops.onCalls)
}

func TestCPUOnRejectsAlreadyOn(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	// Fresh scratch records default to ON.
	err := c.CPUOn(1, 0x1000)
	require.ErrorIs(t, err, ErrAlreadyOn)
}

func TestCPUOnRejectsOnPending(t *testing.T) {
	c, _, tree := newTestCoordinator(t)

	idx, _ := tree.CPUIndexByHartID(2)
	c.Scratch().Get(idx).SetAffInfoState(pwrdomain.AffOnPending)

	err := c.CPUOn(2, 0x1000)
	require.ErrorIs(t, err, ErrOnPending)
}

func TestCPUOnRevertsOnPlatformFailure(t *testing.T) {
	c, ops, tree := newTestCoordinator(t)

	idx, _ := tree.CPUIndexByHartID(4)
	c.Scratch().Get(idx).SetAffInfoState(pwrdomain.AffOff)
	ops.onErr = errDeniedForTest

	err := c.CPUOn(4, 0x1000)
	require.Error(t, err)
	require.Equal(t, pwrdomain.AffOff, c.Scratch().Get(idx).AffInfoState())
}

func TestCPUOnRejectsUnknownHart(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	err := c.CPUOn(0xDEAD, 0)
	require.ErrorIs(t, err, ErrInvalidParams)
}

func TestAffinityInfoReflectsState(t *testing.T) {
	c, _, tree := newTestCoordinator(t)

	idx, _ := tree.CPUIndexByHartID(5)
	c.Scratch().Get(idx).SetAffInfoState(pwrdomain.AffOff)

	state, err := c.AffinityInfo(5, pwrdomain.LevelCPU)
	require.NoError(t, err)
	require.Equal(t, pwrdomain.AffOff, state)
}

func TestAffinityInfoRejectsNonCPULevel(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	_, err := c.AffinityInfo(1, pwrdomain.Level(1))
	require.ErrorIs(t, err, ErrInvalidParams)
}

// TestScenarioS1SingleClusterOneCPUOffLeavesClusterRun is S1's "not every
// sibling requested OFF" branch: CPU0 goes off alone while CPU1..3 in its
// cluster stay ON, so the cluster as a whole must stay RUN.
func TestScenarioS1SingleClusterOneCPUOffLeavesClusterRun(t *testing.T) {
	c, ops, tree := newTestCoordinator(t)

	require.NoError(t, c.CPUOff(0))

	require.Equal(t, pwrdomain.AffOff, c.Scratch().Get(0).AffInfoState())

	clusterIdx := tree.CPUs[0].ParentIdx
	require.Equal(t, pwrdomain.StateRun, tree.NonCPU[clusterIdx].LocalState())
	require.Len(t, ops.offCalls, 1)
	require.Equal(t, pwrdomain.StateOff, ops.offTargets[0].Levels[pwrdomain.LevelCPU])
	require.Equal(t, pwrdomain.StateRun, ops.offTargets[0].Levels[1])
}

// TestScenarioS1SingleClusterAllCPUsOffTakesClusterOff completes S1's
// other branch: once every CPU in the cluster has requested OFF, the
// cluster's local_state coordinates down to OFF too.
func TestScenarioS1SingleClusterAllCPUsOffTakesClusterOff(t *testing.T) {
	c, _, tree := newTestCoordinator(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.CPUOff(i))
	}

	clusterIdx := tree.CPUs[0].ParentIdx
	require.Equal(t, pwrdomain.StateRun, tree.NonCPU[clusterIdx].LocalState())

	require.NoError(t, c.CPUOff(3))
	require.Equal(t, pwrdomain.StateOff, tree.NonCPU[clusterIdx].LocalState())
}

// TestScenarioS2SuspendClusterLevelLeavesSystemRun mirrors S2: CPU7
// suspends with a power-down request that targets its whole cluster,
// while the other cluster stays ON, so the system level must stay RUN
// and CPU7's own affinity state must stay ON (suspend, unlike off,
// preserves ON).
func TestScenarioS2SuspendClusterLevelLeavesSystemRun(t *testing.T) {
	c, ops, tree := newTestCoordinator(t)

	// CPU4..7 are cluster 1. Every sibling must also request the
	// cluster OFF before the cluster coordinates down; suspend the
	// other three at cluster level first.
	powerDown := pstate.Make(uint32(pwrdomain.StateOff), pstate.TypePowerdown, pwrdomain.Level(1))

	for i := 4; i < 7; i++ {
		require.NoError(t, c.CPUSuspend(i, powerDown, 0))
	}

	require.NoError(t, c.CPUSuspend(7, powerDown, 0))

	cluster1Idx := tree.CPUs[7].ParentIdx
	systemIdx := tree.NonCPU[cluster1Idx].ParentIdx

	require.Equal(t, pwrdomain.StateOff, tree.NonCPU[cluster1Idx].LocalState())
	require.Equal(t, pwrdomain.StateRun, tree.NonCPU[systemIdx].LocalState())
	require.Equal(t, pwrdomain.AffOn, c.Scratch().Get(7).AffInfoState())
	require.Equal(t, pwrdomain.StateOff, c.Scratch().Get(7).LocalState())
	require.NotEmpty(t, ops.suspendCalls)
}

// TestScenarioS3SystemSuspendIssuesSystemSuspendOnce mirrors S3: every
// CPU but CPU0 is already OFF, so CPU0's system_suspend call is legal and
// must drive every level to OFF while calling SystemSuspend exactly once.
func TestScenarioS3SystemSuspendIssuesSystemSuspendOnce(t *testing.T) {
	c, ops, tree := newTestCoordinator(t)

	for i := 1; i < len(tree.CPUs); i++ {
		require.NoError(t, c.CPUOff(i))
	}

	require.NoError(t, c.SystemSuspend(0, 0xE))

	for _, nd := range tree.NonCPU {
		require.Equal(t, pwrdomain.StateOff, nd.LocalState())
	}

	require.Equal(t, 1, ops.systemSuspendCalls)
}

// TestScenarioS4ConcurrentCPUOnSerializesOnTargetLock mirrors S4: two
// callers race to cpu_on the same OFF target; the target's cpu_lock
// must serialize them so exactly one sees OFF and succeeds.
func TestScenarioS4ConcurrentCPUOnSerializesOnTargetLock(t *testing.T) {
	c, _, tree := newTestCoordinator(t)

	idx, _ := tree.CPUIndexByHartID(3)
	c.Scratch().Get(idx).SetAffInfoState(pwrdomain.AffOff)

	results := make(chan error, 2)

	for i := 0; i < 2; i++ {
		go func() { results <- c.CPUOn(3, 0x1000) }()
	}

	first, second := <-results, <-results

	successes := 0
	for _, err := range []error{first, second} {
		if err == nil {
			successes++
		} else {
			require.True(t, err == ErrOnPending || err == ErrAlreadyOn)
		}
	}

	require.Equal(t, 1, successes)
}

// TestScenarioS5CPUOnAgainstOnTargetFailsAlreadyOn mirrors S5.
func TestScenarioS5CPUOnAgainstOnTargetFailsAlreadyOn(t *testing.T) {
	c, _, tree := newTestCoordinator(t)

	before := snapshotTree(tree)

	err := c.CPUOn(1, 0x1000)
	require.ErrorIs(t, err, ErrAlreadyOn)
	require.Equal(t, before, snapshotTree(tree))
}

// TestScenarioS6SuspendWithOutOfRangeLevelFailsInvalidParams mirrors S6.
func TestScenarioS6SuspendWithOutOfRangeLevelFailsInvalidParams(t *testing.T) {
	c, _, tree := newTestCoordinator(t)

	before := snapshotTree(tree)

	// tree.MaxLvl is 2; level 3 is out of range for this topology.
	badState := pstate.Make(0, pstate.TypePowerdown, pwrdomain.Level(3))

	err := c.CPUSuspend(0, badState, 0)
	require.ErrorIs(t, err, ErrInvalidParams)
	require.Equal(t, before, snapshotTree(tree))
}

func snapshotTree(tree *pwrdomain.Tree) []pwrdomain.LocalState {
	states := make([]pwrdomain.LocalState, len(tree.NonCPU))
	for i, nd := range tree.NonCPU {
		states[i] = nd.LocalState()
	}

	return states
}

func TestWarmBootEntryCompletesCPUOn(t *testing.T) {
	c, ops, tree := newTestCoordinator(t)

	idx, _ := tree.CPUIndexByHartID(6)
	rec := c.Scratch().Get(idx)
	rec.SetAffInfoState(pwrdomain.AffOff)

	require.NoError(t, c.CPUOn(6, 0x2000))
	require.Equal(t, pwrdomain.AffOnPending, rec.AffInfoState())

	// Warm boot only runs the finish path once local_state shows the
	// CPU actually went non-RUN; simulate that cpu_on_start's caller
	// would have set on the real power-down path.
	rec.SetLocalState(pwrdomain.StateOff)

	require.NoError(t, c.WarmBootEntry(idx))
	require.Equal(t, pwrdomain.AffOn, rec.AffInfoState())
	require.Equal(t, pwrdomain.StateRun, rec.LocalState())
	require.Equal(t, []int{idx}, ops.onFinishCalls)
}

func TestWarmBootEntrySpuriousWakeIsNoop(t *testing.T) {
	c, ops, _ := newTestCoordinator(t)

	require.NoError(t, c.WarmBootEntry(0))
	require.Empty(t, ops.onFinishCalls)
	require.Empty(t, ops.suspendFinishCalls)
}

func TestCPUOffEarlyDenyAbortsBeforeLocks(t *testing.T) {
	tree, err := pwrdomain.BuildTree(twoClusterDescriptor(), 2, 16, 16)
	require.NoError(t, err)

	base := newFakeOps(tree)
	base.denyOff = true
	ops := &fakeEarlyOffer{fakeOps: base}

	c := NewCoordinator(tree, ops)

	err = c.CPUOff(0)
	require.ErrorIs(t, err, ErrDenied)
	require.Empty(t, ops.offCalls)
	require.Equal(t, pwrdomain.AffOn, c.Scratch().Get(0).AffInfoState())
}

func TestCPUStandbyFastPathLeavesTreeUntouched(t *testing.T) {
	c, ops, tree := newTestCoordinator(t)

	before := snapshotTree(tree)

	retention := pstate.Make(uint32(pwrdomain.StateRet), pstate.TypeStandby, pwrdomain.LevelCPU)

	require.NoError(t, c.CPUSuspend(2, retention, 0))
	require.Equal(t, before, snapshotTree(tree))
	require.Equal(t, pwrdomain.StateRun, c.Scratch().Get(2).LocalState())
	require.Empty(t, ops.suspendCalls)
}
