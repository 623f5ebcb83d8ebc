// Package platform defines the pluggable power-management backend a
// Coordinator drives once state coordination has picked a target state
// (spec.md §4.8, plat_psci_ops_t): everything about how a domain is
// actually powered up or down — poking a register, waiting on an
// interconnect, or messaging an external processor — lives behind this
// interface rather than in the coordination core.
package platform

import (
	"github.com/coreward/psci/coordinate"
	"github.com/coreward/psci/pwrdomain"
)

// Ops is the set of hooks the coordination core calls into during a
// power management operation, mirroring plat_psci_ops_t's mandatory
// members. A backend need only implement this interface; the optional
// hooks (early/late variants) are picked up via the Early*/Late
// interfaces below, the way an io.ReaderFrom is detected on an
// io.Writer.
//
// Every hook that acts on behalf of a particular CPU takes that CPU's
// tree index explicitly. The original instead reads current_hartid()
// off an implicit per-hart scratch register; Go has no equivalent
// ambient "current hart" a goroutine can read, so the index is passed
// the same way any other Go API threads caller identity through.
type Ops interface {
	// CPUStandby places cpuIdx into a shallow standby state and returns
	// once an interrupt wakes it (cpu_standby). It must not power the
	// CPU off.
	CPUStandby(cpuIdx int, cpuState pwrdomain.LocalState)

	// PowerDomainOn physically powers on the CPU identified by hartID
	// (pwr_domain_on).
	PowerDomainOn(hartID uint64) error

	// PowerDomainOff carries out the generic power-down sequence for
	// every domain in target, up to and including the highest OFF
	// level, on behalf of cpuIdx (pwr_domain_off). It is not expected
	// to return control the way a real implementation's caller never
	// resumes past it, but this port does return so the caller can
	// finish bookkeeping and release locks.
	PowerDomainOff(cpuIdx int, target *coordinate.PowerState)

	// PowerDomainSuspend carries out the suspend sequence for every
	// domain in target (pwr_domain_suspend).
	PowerDomainSuspend(cpuIdx int, target *coordinate.PowerState)

	// PowerDomainOnFinish completes a power-on: it is called once the
	// CPU is confirmed physically up, with caches still disabled
	// (pwr_domain_on_finish).
	PowerDomainOnFinish(cpuIdx int, target *coordinate.PowerState)

	// PowerDomainSuspendFinish is PowerDomainOnFinish's suspend-side
	// counterpart (pwr_domain_suspend_finish).
	PowerDomainSuspendFinish(cpuIdx int, target *coordinate.PowerState)

	// PowerDomainPwrDownWFI is the last thing run on the power-down
	// path once every lock has been released; a real implementation
	// never returns from this (pwr_domain_pwr_down_wfi).
	PowerDomainPwrDownWFI(cpuIdx int, target *coordinate.PowerState)

	// SystemOff and SystemReset carry out SYSTEM_OFF/SYSTEM_RESET.
	// Neither is expected to return.
	SystemOff()
	SystemReset()

	// SystemSuspend marks the whole system's entry into a suspended
	// state, called once the state-coordination engine has already
	// driven every domain to its OFF target (PSCI_SYSTEM_SUSPEND, after
	// pwr_domain_suspend).
	SystemSuspend()

	// ValidatePowerState checks a raw CPU_SUSPEND power-state
	// parameter and, if valid, fills reqState with the per-level
	// states it requests (validate_power_state).
	ValidatePowerState(powerState uint32, reqState *coordinate.PowerState) error

	// GetSysSuspendPowerState returns the per-level target state a
	// SYSTEM_SUSPEND request should use (get_sys_suspend_power_state).
	GetSysSuspendPowerState() *coordinate.PowerState
}

// EarlyOffer is implemented by backends that want a chance to veto a
// CPU_OFF before any lock is taken or state committed
// (pwr_domain_off_early). Returning any non-nil error aborts the
// CPU_OFF, which then reports it wrapped in psci.ErrDenied.
type EarlyOffer interface {
	PowerDomainOffEarly(cpuIdx int, target *coordinate.PowerState) error
}

// EarlySuspendPowerDowner runs just before a power-down CPU_SUSPEND
// starts actually powering domains down, ahead of PowerDomainSuspend
// (pwr_domain_suspend_pwrdown_early).
type EarlySuspendPowerDowner interface {
	PowerDomainSuspendPwrdownEarly(cpuIdx int, target *coordinate.PowerState)
}

// LateOnFinisher runs once a CPU and its ancestor domains are confirmed
// coherent, after PowerDomainOnFinish (pwr_domain_on_finish_late).
type LateOnFinisher interface {
	PowerDomainOnFinishLate(cpuIdx int, target *coordinate.PowerState)
}
