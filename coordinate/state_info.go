package coordinate

import "github.com/coreward/psci/pwrdomain"

// PowerState is the per-level local power state vector passed between a
// CPU and the coordination engine (spec.md §4.6, psci_power_state_t):
// index 0 is the CPU's own state, index lvl is the state requested/
// targeted for the non-CPU domain at that level.
type PowerState struct {
	Levels []pwrdomain.LocalState
}

// NewPowerState allocates a PowerState covering levels 0..maxLvl,
// every level initialized to RUN.
func NewPowerState(maxLvl pwrdomain.Level) *PowerState {
	levels := make([]pwrdomain.LocalState, int(maxLvl)+1)

	return &PowerState{Levels: levels}
}

// FindMaxOffLevel returns the highest level in s that is OFF, or
// pwrdomain.InvalidLevel if nothing is off (psci_find_max_off_lvl).
func (s *PowerState) FindMaxOffLevel() pwrdomain.Level {
	for lvl := len(s.Levels) - 1; lvl >= 0; lvl-- {
		if s.Levels[lvl].IsOff() {
			return pwrdomain.Level(lvl)
		}
	}

	return pwrdomain.InvalidLevel
}

// FindTargetSuspendLevel returns the highest level in s that is not RUN,
// or pwrdomain.InvalidLevel if every level is RUN (psci_find_target_suspend_lvl).
func (s *PowerState) FindTargetSuspendLevel() pwrdomain.Level {
	for lvl := len(s.Levels) - 1; lvl >= 0; lvl-- {
		if !s.Levels[lvl].IsRun() {
			return pwrdomain.Level(lvl)
		}
	}

	return pwrdomain.InvalidLevel
}
