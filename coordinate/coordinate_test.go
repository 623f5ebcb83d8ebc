package coordinate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreward/psci/pwrdomain"
)

func newTestTree(t *testing.T) *pwrdomain.Tree {
	t.Helper()

	descriptor := []int{1, 2, 4, 4}
	tree, err := pwrdomain.BuildTree(descriptor, 2, 16, 16)
	require.NoError(t, err)

	return tree
}

func TestDoStateCoordinationMinRuleWithinCluster(t *testing.T) {
	tree := newTestTree(t)
	engine := NewEngine(tree)

	// CPU 0 requests OFF at both levels.
	s0 := NewPowerState(tree.MaxLvl)
	s0.Levels[pwrdomain.LevelCPU] = pwrdomain.StateOff
	s0.Levels[1] = pwrdomain.StateOff
	s0.Levels[2] = pwrdomain.StateOff
	require.NoError(t, engine.DoStateCoordination(0, 2, s0))
	require.Equal(t, pwrdomain.StateOff, s0.Levels[1])
	require.Equal(t, pwrdomain.StateOff, s0.Levels[2])

	// CPU 1 (same cluster) only requests RUN: the cluster and the
	// system must both fold back to RUN, since RUN is the minimum.
	s1 := NewPowerState(tree.MaxLvl)
	s1.Levels[pwrdomain.LevelCPU] = pwrdomain.StateRun
	s1.Levels[1] = pwrdomain.StateRun
	s1.Levels[2] = pwrdomain.StateRun
	require.NoError(t, engine.DoStateCoordination(1, 2, s1))
	require.Equal(t, pwrdomain.StateRun, s1.Levels[1])
	require.Equal(t, pwrdomain.StateRun, s1.Levels[2])
}

func TestDoStateCoordinationBreaksEarlyOnRun(t *testing.T) {
	tree := newTestTree(t)
	engine := NewEngine(tree)

	// Cluster 1 (CPUs 4..7) starts with every sibling requesting OFF.
	for c := 4; c < 8; c++ {
		s := NewPowerState(tree.MaxLvl)
		s.Levels[pwrdomain.LevelCPU] = pwrdomain.StateOff
		s.Levels[1] = pwrdomain.StateOff
		s.Levels[2] = pwrdomain.StateOff
		require.NoError(t, engine.DoStateCoordination(c, 2, s))
	}

	// One CPU in that cluster now only wants RUN at the cluster level:
	// the cluster folds to RUN and the system level is never considered
	// (it should come back RUN too, via the early-break fixup).
	s := NewPowerState(tree.MaxLvl)
	s.Levels[pwrdomain.LevelCPU] = pwrdomain.StateRun
	s.Levels[1] = pwrdomain.StateRun
	s.Levels[2] = pwrdomain.StateOff
	require.NoError(t, engine.DoStateCoordination(4, 2, s))

	require.Equal(t, pwrdomain.StateRun, s.Levels[1])
	require.Equal(t, pwrdomain.StateRun, s.Levels[2])
}

func TestDoStateCoordinationRejectsOutOfRangeLevel(t *testing.T) {
	tree := newTestTree(t)
	engine := NewEngine(tree)

	s := NewPowerState(tree.MaxLvl)
	err := engine.DoStateCoordination(0, pwrdomain.Level(5), s)
	require.ErrorIs(t, err, ErrLevelOutOfRange)
}

func TestSetAndGetTargetLocalStatesRoundTrip(t *testing.T) {
	tree := newTestTree(t)
	engine := NewEngine(tree)
	scratch := pwrdomain.NewScratch(tree)

	s := NewPowerState(tree.MaxLvl)
	s.Levels[pwrdomain.LevelCPU] = pwrdomain.StateOff
	s.Levels[1] = pwrdomain.StateRet
	s.Levels[2] = pwrdomain.StateRun

	engine.SetTargetLocalStates(0, 2, s, scratch)

	got := engine.GetTargetLocalStates(0, 2, scratch)
	require.Equal(t, pwrdomain.StateOff, got.Levels[pwrdomain.LevelCPU])
	require.Equal(t, pwrdomain.StateRet, got.Levels[1])
	require.Equal(t, pwrdomain.StateRun, got.Levels[2])
}

func TestSetPowerDomainsToRunResetsChain(t *testing.T) {
	tree := newTestTree(t)
	engine := NewEngine(tree)
	scratch := pwrdomain.NewScratch(tree)

	tree.NonCPU[1].SetLocalState(pwrdomain.StateOff)
	tree.NonCPU[0].SetLocalState(pwrdomain.StateOff)
	scratch.Get(0).SetLocalState(pwrdomain.StateOff)

	engine.SetPowerDomainsToRun(0, 2, scratch)

	require.Equal(t, pwrdomain.StateRun, scratch.Get(0).LocalState())
	require.Equal(t, pwrdomain.StateRun, tree.NonCPU[1].LocalState())
	require.Equal(t, pwrdomain.StateRun, tree.NonCPU[0].LocalState())
}

func TestValidateSuspendRequestRejectsShallowerAtLowerLevel(t *testing.T) {
	s := NewPowerState(2)
	s.Levels[0] = pwrdomain.StateRet
	s.Levels[1] = pwrdomain.StateOff // deeper than level 0: invalid, depth must be non-decreasing downward
	s.Levels[2] = pwrdomain.StateRun

	err := ValidateSuspendRequest(s, true)
	require.ErrorIs(t, err, ErrInvalidSuspendRequest)
}

func TestValidateSuspendRequestAcceptsWellFormedPowerDown(t *testing.T) {
	s := NewPowerState(2)
	s.Levels[0] = pwrdomain.StateOff
	s.Levels[1] = pwrdomain.StateOff
	s.Levels[2] = pwrdomain.StateRun

	require.NoError(t, ValidateSuspendRequest(s, true))
}

func TestValidateSuspendRequestRejectsOffForStandby(t *testing.T) {
	s := NewPowerState(2)
	s.Levels[0] = pwrdomain.StateOff
	s.Levels[1] = pwrdomain.StateRun
	s.Levels[2] = pwrdomain.StateRun

	err := ValidateSuspendRequest(s, false)
	require.ErrorIs(t, err, ErrInvalidSuspendRequest)
}

func TestValidateSuspendRequestAcceptsStandby(t *testing.T) {
	s := NewPowerState(2)
	s.Levels[0] = pwrdomain.StateRet
	s.Levels[1] = pwrdomain.StateRun
	s.Levels[2] = pwrdomain.StateRun

	require.NoError(t, ValidateSuspendRequest(s, false))
}

func TestRequestedStatesTargetStateMinRule(t *testing.T) {
	rs := NewRequestedStates(2, 8)

	rs.Set(1, 0, pwrdomain.StateOff)
	rs.Set(1, 1, pwrdomain.StateRet)
	rs.Set(1, 2, pwrdomain.StateOff)
	rs.Set(1, 3, pwrdomain.StateOff)

	require.Equal(t, pwrdomain.StateRet, rs.TargetState(1, 0, 4))
}
