package domain

import "fmt"

// InvalidTransitionError reports a state change not present in the transition
// table of the named entity.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition %s -> %s", e.Entity, e.From, e.To)
}

// OverlapError reports a planned interval intersecting an existing
// non-terminal cycle on the same parcel. Endpoints touching count as overlap.
type OverlapError struct {
	ConflictID    int64
	ConflictCode  string
	ConflictStart string
	ConflictEnd   string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("planned dates overlap cycle %s (%s to %s)", e.ConflictCode, e.ConflictStart, e.ConflictEnd)
}

// ActiveCycleExistsError reports that the parcel already carries an active
// cycle; a second one is rejected regardless of dates.
type ActiveCycleExistsError struct {
	LandParcelID int64
	CycleID      int64
	CycleCode    string
}

func (e *ActiveCycleExistsError) Error() string {
	return fmt.Sprintf("parcel %d already has active cycle %s", e.LandParcelID, e.CycleCode)
}

// NotEditableError reports a plan change attempted on a cycle whose status
// forbids it.
type NotEditableError struct {
	CycleID int64
	Status  CycleStatus
}

func (e *NotEditableError) Error() string {
	return fmt.Sprintf("cycle %d is %s and can no longer be edited", e.CycleID, e.Status)
}

// NotDeletableError reports a delete attempted on a cycle that has left
// planned.
type NotDeletableError struct {
	CycleID int64
	Status  CycleStatus
}

func (e *NotDeletableError) Error() string {
	return fmt.Sprintf("cycle %d is %s and cannot be deleted", e.CycleID, e.Status)
}

// PreviousStageIncompleteError reports a stage start attempted while the
// preceding stage is neither completed nor skipped.
type PreviousStageIncompleteError struct {
	StageID      int64
	PrevSequence int
	PrevStatus   StageStatus
}

func (e *PreviousStageIncompleteError) Error() string {
	return fmt.Sprintf("stage %d blocked: stage #%d is still %s", e.StageID, e.PrevSequence, e.PrevStatus)
}

// CycleNotActiveError reports a stage start attempted while the parent cycle
// is not active.
type CycleNotActiveError struct {
	CycleID   int64
	CycleCode string
	Status    CycleStatus
	StageName string
}

func (e *CycleNotActiveError) Error() string {
	return fmt.Sprintf("stage %s cannot start: cycle %s is %s", e.StageName, e.CycleCode, e.Status)
}

// PreconditionError reports an operation blocked by a cross-entity rule that
// is not a status transition: a parcel still referenced by cycles, a season
// or water source from another farm, a parcel that disagrees with its cycle.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string { return e.Msg }

// ImmutableRecordError reports a mutation attempted on an append-only record.
type ImmutableRecordError struct {
	Entity string
	ID     int64
}

func (e *ImmutableRecordError) Error() string {
	return fmt.Sprintf("%s %d is immutable", e.Entity, e.ID)
}
