// Package psci implements the PSCI operation handlers that sit on top of
// the power-domain tree and state-coordination engine (spec.md §4.7):
// cpu_on, cpu_off, cpu_suspend, affinity_info, system_suspend, and the
// warm-boot re-entry path every core runs on wake.
package psci

import "errors"

// Error kinds returned across the PSCI call boundary (spec.md §7).
// An impossible affinity state or a failed state-coordination pass is
// not in this list: the handlers panic on it instead. An SCMI protocol
// violation does not panic either: CPUOn returns it wrapped, and the
// platform hooks that return nothing (PowerDomainOff, SystemSuspend and
// the like) drop it.
var (
	ErrInvalidParams = errors.New("psci: invalid params")
	ErrAlreadyOn     = errors.New("psci: target already on")
	ErrOnPending     = errors.New("psci: target on_pending")
	ErrDenied        = errors.New("psci: denied")
)
