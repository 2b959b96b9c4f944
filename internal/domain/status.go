package domain

// CycleStatus is the closed set of crop-cycle lifecycle states.
type CycleStatus string

const (
	CyclePlanned   CycleStatus = "planned"
	CycleActive    CycleStatus = "active"
	CycleCompleted CycleStatus = "completed"
	CycleFailed    CycleStatus = "failed"
	CycleAbandoned CycleStatus = "abandoned"
)

// cycleTransitions is the single source of truth for cycle status legality.
// It is never mutated after init; wrapper operations add timestamps and field
// population but always go through TransitionTo.
var cycleTransitions = map[CycleStatus][]CycleStatus{
	CyclePlanned:   {CycleActive, CycleAbandoned},
	CycleActive:    {CycleCompleted, CycleFailed, CycleAbandoned},
	CycleCompleted: {},
	CycleFailed:    {},
	CycleAbandoned: {},
}

// CycleStatuses lists all valid cycle statuses.
var CycleStatuses = []CycleStatus{CyclePlanned, CycleActive, CycleCompleted, CycleFailed, CycleAbandoned}

func (s CycleStatus) Valid() bool {
	_, ok := cycleTransitions[s]
	return ok
}

// Terminal reports whether no further transitions are allowed from s.
func (s CycleStatus) Terminal() bool {
	next, ok := cycleTransitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether s -> next appears in the transition table.
func (s CycleStatus) CanTransitionTo(next CycleStatus) bool {
	for _, allowed := range cycleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the cycle to next, or returns *InvalidTransitionError
// leaving the in-memory status untouched. The caller persists.
func (c *CropCycle) TransitionTo(next CycleStatus) error {
	if !c.Status.CanTransitionTo(next) {
		return &InvalidTransitionError{Entity: "crop_cycle", From: string(c.Status), To: string(next)}
	}
	c.Status = next
	return nil
}

// StageStatus is the closed set of crop-cycle-stage states.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageSkipped    StageStatus = "skipped"
)

var stageTransitions = map[StageStatus][]StageStatus{
	StagePending:    {StageInProgress, StageSkipped},
	StageInProgress: {StageCompleted},
	StageCompleted:  {},
	StageSkipped:    {},
}

// StageStatuses lists all valid stage statuses.
var StageStatuses = []StageStatus{StagePending, StageInProgress, StageCompleted, StageSkipped}

func (s StageStatus) Valid() bool {
	_, ok := stageTransitions[s]
	return ok
}

// Done reports whether the stage no longer blocks its successor.
func (s StageStatus) Done() bool {
	return s == StageCompleted || s == StageSkipped
}

func (s StageStatus) CanTransitionTo(next StageStatus) bool {
	for _, allowed := range stageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the stage to next, or returns *InvalidTransitionError
// leaving the in-memory status untouched. The caller persists.
func (st *CropCycleStage) TransitionTo(next StageStatus) error {
	if !st.Status.CanTransitionTo(next) {
		return &InvalidTransitionError{Entity: "crop_cycle_stage", From: string(st.Status), To: string(next)}
	}
	st.Status = next
	return nil
}
