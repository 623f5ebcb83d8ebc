package psci

import (
	"errors"

	"github.com/coreward/psci/coordinate"
	"github.com/coreward/psci/pstate"
	"github.com/coreward/psci/pwrdomain"
)

// fakeOps is an in-memory platform.Ops that records every call it
// receives instead of touching real hardware, letting tests assert on
// exactly what the coordination core asked the platform to do.
type fakeOps struct {
	tree *pwrdomain.Tree

	onCalls             []uint64
	offCalls            []int
	offTargets          []*coordinate.PowerState
	onFinishCalls       []int
	suspendCalls        []int
	suspendFinishCalls  []int
	pwrDownWFICalls     []int
	systemSuspendCalls  int
	denyOff             bool
	onErr               error
	sysSuspendAllOff    bool
}

func newFakeOps(tree *pwrdomain.Tree) *fakeOps {
	return &fakeOps{tree: tree, sysSuspendAllOff: true}
}

func (f *fakeOps) CPUStandby(cpuIdx int, cpuState pwrdomain.LocalState) {}

func (f *fakeOps) PowerDomainOn(hartID uint64) error {
	f.onCalls = append(f.onCalls, hartID)

	return f.onErr
}

func (f *fakeOps) PowerDomainOff(cpuIdx int, target *coordinate.PowerState) {
	f.offCalls = append(f.offCalls, cpuIdx)
	f.offTargets = append(f.offTargets, target)
}

func (f *fakeOps) PowerDomainSuspend(cpuIdx int, target *coordinate.PowerState) {
	f.suspendCalls = append(f.suspendCalls, cpuIdx)
	f.offTargets = append(f.offTargets, target)
}

func (f *fakeOps) PowerDomainOnFinish(cpuIdx int, target *coordinate.PowerState) {
	f.onFinishCalls = append(f.onFinishCalls, cpuIdx)
}

func (f *fakeOps) PowerDomainSuspendFinish(cpuIdx int, target *coordinate.PowerState) {
	f.suspendFinishCalls = append(f.suspendFinishCalls, cpuIdx)
}

func (f *fakeOps) PowerDomainPwrDownWFI(cpuIdx int, target *coordinate.PowerState) {
	f.pwrDownWFICalls = append(f.pwrDownWFICalls, cpuIdx)
}

func (f *fakeOps) SystemOff()     {}
func (f *fakeOps) SystemReset()   {}
func (f *fakeOps) SystemSuspend() { f.systemSuspendCalls++ }

func (f *fakeOps) ValidatePowerState(powerState uint32, reqState *coordinate.PowerState) error {
	if err := pstate.Check(powerState); err != nil {
		return err
	}

	lvl := pstate.Level(powerState)
	if int(lvl) >= len(reqState.Levels) {
		return errors.New("fakeOps: power level exceeds platform max")
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

func (f *fakeOps) GetSysSuspendPowerState() *coordinate.PowerState {
	state := coordinate.NewPowerState(f.tree.MaxLvl)
	for l := range state.Levels {
		state.Levels[l] = pwrdomain.StateOff
	}

	return state
}

var errDeniedForTest = errors.New("fakeOps: off denied")

// fakeEarlyOffer wraps fakeOps to add an optional PowerDomainOffEarly
// veto, picked up by platform.EarlyOffer's type assertion.
type fakeEarlyOffer struct {
	*fakeOps
}

func (f *fakeEarlyOffer) PowerDomainOffEarly(cpuIdx int, target *coordinate.PowerState) error {
	if f.denyOff {
		return errDeniedForTest
	}

	return nil
}
