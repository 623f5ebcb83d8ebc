// Package pwrdomain implements the static power-domain tree (spec.md
// §3, §4.5): a breadth-first descriptor is expanded once at cold boot
// into a tree of non-CPU domains (clusters, system) and CPU domains,
// each holding a lock and a local power state.
//
// Grounded on machine/machine.go's per-vCPU slice bookkeeping (a flat
// []CpuDomain indexed by CPU index, the same shape as gokvm's
// m.vcpuFds/m.runs) and migration/state.go's aggregation of distributed
// per-vCPU state into one coordinated view.
package pwrdomain

import "fmt"

// LocalState is a domain's local power state. Lower values are
// shallower: RUN (0) is shallowest, OFF is deepest. The coordination
// rule (spec.md §4.6) is a plain numeric minimum over this ordering.
type LocalState uint8

const (
	StateRun LocalState = 0
	StateRet LocalState = 1
	StateOff LocalState = 2
)

// MaxRetState is the deepest retention state; anything beyond it is OFF.
const MaxRetState = StateRet

// MaxOffState is the deepest valid local state.
const MaxOffState = StateOff

// StateType categorizes a LocalState the way find_local_state_type does
// in the original: RUN, RETENTION, or OFF.
type StateType int

const (
	TypeRun StateType = iota
	TypeRetention
	TypeOff
)

// Type categorizes s.
func (s LocalState) Type() StateType {
	switch {
	case s == StateRun:
		return TypeRun
	case s <= MaxRetState:
		return TypeRetention
	default:
		return TypeOff
	}
}

// IsRun reports whether s is the RUN state.
func (s LocalState) IsRun() bool { return s == StateRun }

// IsOff reports whether s is strictly past the deepest retention state.
func (s LocalState) IsOff() bool { return s > MaxRetState }

func (s LocalState) String() string {
	switch s.Type() {
	case TypeRun:
		return "RUN"
	case TypeRetention:
		return "RETENTION"
	default:
		return "OFF"
	}
}

// Level identifies a level in the power-domain tree. LevelCPU is always
// 0; non-CPU levels run 1..MaxPwrLvl, with higher numbers further from
// the CPUs (cluster, then system).
type Level int

const LevelCPU Level = 0

// InvalidLevel marks "no such level" (e.g. the break-early sentinel
// returned by FindMaxOffLevel when nothing is off).
const InvalidLevel Level = -1

// AffState is the affinity state a CPU reports to PSCI_AFFINITY_INFO
// (spec.md §4.7).
type AffState int

const (
	AffOn AffState = iota
	AffOff
	AffOnPending
)

func (a AffState) String() string {
	switch a {
	case AffOn:
		return "ON"
	case AffOff:
		return "OFF"
	case AffOnPending:
		return "ON_PENDING"
	default:
		return fmt.Sprintf("AffState(%d)", int(a))
	}
}
