package coordinate

import (
	"errors"

	"github.com/coreward/psci/pwrdomain"
)

// ErrInvalidSuspendRequest is returned by ValidateSuspendRequest when a
// CPU_SUSPEND request's per-level states don't form a coherent
// power-down shape (spec.md §4.6, psci_validate_suspend_req).
var ErrInvalidSuspendRequest = errors.New("coordinate: invalid suspend request")

// ValidateSuspendRequest checks that state is internally consistent for
// a suspend request:
//
//   - the state requested for a lower level must never be shallower
//     than the state requested for the level immediately above it
//     (depth must be non-decreasing on the way down from target_lvl);
//   - if isPowerDownState is false (a standby/retention-only request,
//     as from cpu_standby), no level may be OFF and at least one level
//     must be in a non-RUN state.
func ValidateSuspendRequest(state *PowerState, isPowerDownState bool) error {
	targetLvl := state.FindTargetSuspendLevel()
	if targetLvl == pwrdomain.InvalidLevel {
		return ErrInvalidSuspendRequest
	}

	deepest := pwrdomain.TypeRun
	for lvl := int(targetLvl); lvl >= 0; lvl-- {
		reqType := state.Levels[lvl].Type()
		if reqType < deepest {
			return ErrInvalidSuspendRequest
		}

		deepest = reqType
	}

	maxOffLvl := state.FindMaxOffLevel()

	maxRetnLvl := pwrdomain.InvalidLevel
	if targetLvl != maxOffLvl {
		maxRetnLvl = targetLvl
	}

	// A non-power-down (standby/retention) request must not touch any
	// OFF level, and must actually target some retention level.
	if !isPowerDownState && (maxOffLvl != pwrdomain.InvalidLevel || maxRetnLvl == pwrdomain.InvalidLevel) {
		return ErrInvalidSuspendRequest
	}

	return nil
}
