// Package sim builds a canned two-cluster, four-core-per-cluster
// power-domain tree and drives it through the scenarios spec.md §8
// describes, logging every transition the way a manual bring-up session
// would want to see it.
package sim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/coreward/psci/cachectl"
	"github.com/coreward/psci/interconnect"
	"github.com/coreward/psci/platform"
	"github.com/coreward/psci/psci"
	"github.com/coreward/psci/pstate"
	"github.com/coreward/psci/pwrdomain"
	"github.com/coreward/psci/scmi"
)

// topology is the fixed system -> 2 clusters -> 4 cores descriptor this
// spec pins.
var topology = []int{1, 2, 4, 4}

// ErrUnknownScenario is returned for a -name value that isn't one of
// s1..s6 or "all".
var ErrUnknownScenario = errors.New("sim: unknown scenario")

// simRails is an in-memory PowerRailRegs that settles immediately,
// enough to exercise DirectOps without real hardware.
type simRails struct {
	on map[int]bool
}

func newSimRails() *simRails { return &simRails{on: make(map[int]bool)} }

func (r *simRails) RequestRail(domainID int, on bool) { r.on[domainID] = on }
func (r *simRails) RailOn(domainID int) bool          { return r.on[domainID] }

// simL2Regs is an in-memory cachectl.L2FlushRegisters that completes a
// software-request flush on the first poll.
type simL2Regs struct {
	requested bool
	cleared   bool
}

func (r *simL2Regs) RequestFlush(mode cachectl.L2FlushMode) { r.requested = true }
func (r *simL2Regs) FlushDone() bool                        { return true }
func (r *simL2Regs) ClearRequest()                          { r.cleared = true }

func buildTree() (*pwrdomain.Tree, error) {
	tree, err := pwrdomain.BuildTree(topology, 2, 16, 16)
	if err != nil {
		return nil, err
	}

	for i := range tree.CPUs {
		tree.AssignHartID(i, uint64(i)+1)
	}

	return tree, nil
}

// clusterMasterIDs maps every level-1 NonCpuDomain index to a sequential
// interconnect master id.
func clusterMasterIDs(tree *pwrdomain.Tree) map[int]int {
	masterIDOf := make(map[int]int)
	next := 0

	for idx, nd := range tree.NonCPU {
		if nd.Level == 1 {
			masterIDOf[idx] = next
			next++
		}
	}

	return masterIDOf
}

func buildDirectOps(tree *pwrdomain.Tree) platform.Ops {
	masterIDOf := clusterMasterIDs(tree)

	masterMap := make([]int, len(masterIDOf))
	for _, m := range masterIDOf {
		masterMap[m] = m
	}

	ic := interconnect.New(0, masterMap, len(masterMap))

	l2RegsOf := make(map[int]cachectl.L2FlushRegisters, len(masterIDOf))
	for nodeIdx := range masterIDOf {
		l2RegsOf[nodeIdx] = &simL2Regs{}
	}

	return platform.NewDirectOps(tree, ic, newSimRails(), masterIDOf, l2RegsOf)
}

// buildSCMIOps wires an SCMIOps backend over a FakeSCP standing in for a
// system-control processor: psci-sim has no real SCP to talk to, and the
// whole point of this harness is simulation, so the same double the
// scmi package's own tests use is the right backend here too.
func buildSCMIOps(tree *pwrdomain.Tree) (platform.Ops, error) {
	scp := scmi.NewFakeSCP()
	scp.Respond = func(protoID, msgID uint32, req []byte) []byte {
		switch msgID {
		case scmi.MsgProtocolVersion:
			reply := make([]byte, 8)
			binary.LittleEndian.PutUint32(reply[4:], versionFor(protoID))

			return reply
		default:
			return make([]byte, 4)
		}
	}

	handle, err := scmi.Init(scp.Channel())
	if err != nil {
		return nil, fmt.Errorf("sim: scmi init: %w", err)
	}

	return platform.NewSCMIOps(tree, handle), nil
}

func versionFor(protoID uint32) uint32 {
	if protoID == scmi.ProtoSysPwr {
		return scmi.SysPwrDriverVersion
	}

	return scmi.PwrDmnDriverVersion
}

func buildCoordinator(backend string) (*psci.Coordinator, *pwrdomain.Tree, error) {
	tree, err := buildTree()
	if err != nil {
		return nil, nil, err
	}

	var ops platform.Ops

	switch backend {
	case "direct", "":
		ops = buildDirectOps(tree)
	case "scmi":
		ops, err = buildSCMIOps(tree)
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, fmt.Errorf("sim: unknown backend %q", backend)
	}

	c := psci.NewCoordinator(tree, ops)
	for i := range tree.CPUs {
		c.SeedOnline(i)
	}

	return c, tree, nil
}

// Run builds a fresh tree and coordinator and executes the named
// scenario (s1..s6, or "all").
func Run(name, backend string) error {
	switch name {
	case "s1":
		return scenarioS1(backend)
	case "s2":
		return scenarioS2(backend)
	case "s3":
		return scenarioS3(backend)
	case "s4":
		return scenarioS4(backend)
	case "s5":
		return scenarioS5(backend)
	case "s6":
		return scenarioS6(backend)
	case "all":
		for _, s := range []string{"s1", "s2", "s3", "s4", "s5", "s6"} {
			if err := Run(s, backend); err != nil {
				return fmt.Errorf("%s: %w", s, err)
			}
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownScenario, name)
	}
}

func scenarioS1(backend string) error {
	c, tree, err := buildCoordinator(backend)
	if err != nil {
		return err
	}

	if err := c.CPUOff(0); err != nil {
		return err
	}

	clusterIdx := tree.CPUs[0].ParentIdx
	log.Printf("s1: cpu0 off, cluster0 local_state=%s (cpu1..3 still on)", tree.NonCPU[clusterIdx].LocalState())

	return nil
}

func scenarioS2(backend string) error {
	c, tree, err := buildCoordinator(backend)
	if err != nil {
		return err
	}

	g := new(errgroup.Group)

	for i := 4; i < 8; i++ {
		cpuIdx := i

		g.Go(func() error {
			word := pstate.Make(uint32(pwrdomain.StateOff), pstate.TypePowerdown, pwrdomain.Level(1))

			return c.CPUSuspend(cpuIdx, word, 0)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	cluster1Idx := tree.CPUs[7].ParentIdx
	systemIdx := tree.NonCPU[cluster1Idx].ParentIdx
	log.Printf("s2: cluster1 local_state=%s, system local_state=%s, cpu7 aff=%s",
		tree.NonCPU[cluster1Idx].LocalState(), tree.NonCPU[systemIdx].LocalState(), c.Scratch().Get(7).AffInfoState())

	return nil
}

func scenarioS3(backend string) error {
	c, tree, err := buildCoordinator(backend)
	if err != nil {
		return err
	}

	for i := 1; i < len(tree.CPUs); i++ {
		if err := c.CPUOff(i); err != nil {
			return err
		}
	}

	if err := c.SystemSuspend(0, 0xE); err != nil {
		return err
	}

	log.Printf("s3: system_suspend completed, every domain now off")

	return nil
}

func scenarioS4(backend string) error {
	c, tree, err := buildCoordinator(backend)
	if err != nil {
		return err
	}

	idx, _ := tree.CPUIndexByHartID(3)
	c.Scratch().Get(idx).SetAffInfoState(pwrdomain.AffOff)

	results := make(chan error, 2)

	for i := 0; i < 2; i++ {
		go func() { results <- c.CPUOn(3, 0x1000) }()
	}

	first, second := <-results, <-results
	log.Printf("s4: concurrent cpu_on(target=cpu3) results: %v, %v", first, second)

	return nil
}

func scenarioS5(backend string) error {
	c, _, err := buildCoordinator(backend)
	if err != nil {
		return err
	}

	err = c.CPUOn(1, 0x1000)
	log.Printf("s5: cpu_on against already-on target: %v", err)

	if !errors.Is(err, psci.ErrAlreadyOn) {
		return fmt.Errorf("sim: expected ErrAlreadyOn, got %v", err)
	}

	return nil
}

func scenarioS6(backend string) error {
	c, _, err := buildCoordinator(backend)
	if err != nil {
		return err
	}

	word := pstate.Make(uint32(pwrdomain.StateOff), pstate.TypePowerdown, pwrdomain.Level(3))

	err = c.CPUSuspend(0, word, 0)
	log.Printf("s6: cpu_suspend with out-of-range level: %v", err)

	if !errors.Is(err, psci.ErrInvalidParams) {
		return fmt.Errorf("sim: expected ErrInvalidParams, got %v", err)
	}

	return nil
}
