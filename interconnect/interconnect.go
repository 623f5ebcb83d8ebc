// Package interconnect models the snoop/DVM control sequence that must
// bracket every cluster power transition (spec.md §4.2): enable snoop and
// DVM message broadcast before a cluster rejoins coherency, disable them
// before it leaves.
package interconnect

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/coreward/psci/cachectl"
)

// Unused is the master_map sentinel meaning a master id has no slave
// interface mapped to it.
const Unused = -1

// ErrInvalidMaster is returned when a master id maps to the Unused
// sentinel.
var ErrInvalidMaster = errors.New("interconnect: master id has no mapped slave interface")

const (
	snoopEn       = 1 << 0
	dvmEn         = 1 << 1
	changePending = 1 << 0
)

// slaveInterface is the per-slave-interface register pair the controller
// pokes: a snoop-control register and a shared global status register
// whose CHANGE_PENDING bit clears once the write has settled.
type slaveInterface struct {
	snoopCtrl     uint32
	changePending *uint32 // shared global status register; every interface uses its single CHANGE_PENDING bit
}

// Controller is the snoop/DVM controller for one interconnect instance,
// serving every master id in its master map.
type Controller struct {
	masterMap []int // master id -> slave interface index, or Unused
	ifaces    []slaveInterface
	status    uint32 // simulated global status register
}

// New builds a Controller from a base address placeholder (kept for
// parity with the platform register-poke contract; unused in the
// simulated backend) and a master-id -> slave-interface map.
func New(base uintptr, masterMap []int, nMasters int) *Controller {
	maxIface := 0

	for _, idx := range masterMap {
		if idx > maxIface {
			maxIface = idx
		}
	}

	c := &Controller{
		masterMap: append([]int(nil), masterMap[:nMasters]...),
		ifaces:    make([]slaveInterface, maxIface+1),
	}

	for i := range c.ifaces {
		c.ifaces[i].changePending = &c.status
	}

	return c
}

func (c *Controller) resolve(masterID int) (int, error) {
	if masterID < 0 || masterID >= len(c.masterMap) || c.masterMap[masterID] == Unused {
		return 0, fmt.Errorf("%w: master %d", ErrInvalidMaster, masterID)
	}

	return c.masterMap[masterID], nil
}

// EnableSnoopDVM enables snoop and DVM message broadcast for masterID's
// slave interface, then polls CHANGE_PENDING until it clears.
func (c *Controller) EnableSnoopDVM(masterID int) error {
	idx, err := c.resolve(masterID)
	if err != nil {
		return err
	}

	c.ifaces[idx].snoopCtrl = snoopEn | dvmEn
	cachectl.FenceIO()
	c.settle()

	return nil
}

// DisableSnoopDVM is the symmetric teardown, run before a cluster leaves
// coherency on its way to OFF.
func (c *Controller) DisableSnoopDVM(masterID int) error {
	idx, err := c.resolve(masterID)
	if err != nil {
		return err
	}

	c.ifaces[idx].snoopCtrl = 0
	cachectl.FenceIO()
	c.settle()

	return nil
}

// settle polls the global status register until CHANGE_PENDING clears.
// Hardware polls never time out (§5): the simulated register always
// reports settled on the first read, since there is no in-flight
// asynchronous hardware here to wait for.
func (c *Controller) settle() {
	for atomic.LoadUint32(&c.status)&changePending == changePending {
		atomic.StoreUint32(&c.status, c.status&^uint32(changePending))
	}
}

// SnoopEnabled reports whether masterID's interface currently has snoop
// and DVM enabled, for tests and diagnostics.
func (c *Controller) SnoopEnabled(masterID int) (bool, error) {
	idx, err := c.resolve(masterID)
	if err != nil {
		return false, err
	}

	return c.ifaces[idx].snoopCtrl&(snoopEn|dvmEn) == (snoopEn | dvmEn), nil
}
