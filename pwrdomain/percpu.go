package pwrdomain

import "github.com/coreward/psci/cachectl"

// PerCpuRecord is the per-CPU scratch data the coordination engine reads
// and writes on every PSCI call (spec.md §3, psci_cpu_pd_nodes'
// struct psci_cpu_data): the affinity-info state machine value, the
// deepest level a pending suspend/off targeted, and the CPU's own local
// state. Each field is its own cachectl.Line so a write to one doesn't
// force a clean-invalidate of the others.
type PerCpuRecord struct {
	affInfo      *cachectl.Line[AffState]
	targetPwrLvl *cachectl.Line[Level]
	localState   *cachectl.Line[LocalState]
}

// NewPerCpuRecord returns a record in the reset state: ON, no pending
// target level, local state RUN (a CPU that has just come up is running).
func NewPerCpuRecord() *PerCpuRecord {
	return &PerCpuRecord{
		affInfo:      cachectl.NewLine(AffOn),
		targetPwrLvl: cachectl.NewLine(LevelCPU),
		localState:   cachectl.NewLine(StateRun),
	}
}

// AffInfoState returns the CPU's current affinity-info state.
func (r *PerCpuRecord) AffInfoState() AffState { return r.affInfo.Invalidate() }

// SetAffInfoState clean-invalidates the CPU's affinity-info state.
func (r *PerCpuRecord) SetAffInfoState(s AffState) { r.affInfo.CleanInvalidate(s) }

// TargetPwrLvl returns the deepest level the CPU's current off/suspend
// request targeted.
func (r *PerCpuRecord) TargetPwrLvl() Level { return r.targetPwrLvl.Invalidate() }

// SetTargetPwrLvl clean-invalidates the CPU's target power level.
func (r *PerCpuRecord) SetTargetPwrLvl(l Level) { r.targetPwrLvl.CleanInvalidate(l) }

// LocalState returns the CPU's own local power state.
func (r *PerCpuRecord) LocalState() LocalState { return r.localState.Invalidate() }

// SetLocalState clean-invalidates the CPU's own local power state.
func (r *PerCpuRecord) SetLocalState(s LocalState) { r.localState.CleanInvalidate(s) }

// Scratch is a PerCpu<T>-style accessor keyed by CPU index, the shape
// the Design Notes call for so the coordination engine never reaches
// into a raw slice directly. It is backed by a plain slice rather than a
// map: CPU count is fixed at tree build time and the index space is
// dense, so there is nothing a map buys over direct indexing.
type Scratch struct {
	records []*PerCpuRecord
}

// NewScratch allocates one PerCpuRecord per CPU in t.
func NewScratch(t *Tree) *Scratch {
	s := &Scratch{records: make([]*PerCpuRecord, len(t.CPUs))}
	for i := range s.records {
		s.records[i] = NewPerCpuRecord()
	}

	return s
}

// Get returns the PerCpuRecord for cpuIdx.
func (s *Scratch) Get(cpuIdx int) *PerCpuRecord { return s.records[cpuIdx] }
