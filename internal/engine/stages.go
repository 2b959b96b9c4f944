package engine

import (
	"context"
	"errors"
	"fmt"

	"cropline/internal/domain"
	"cropline/internal/events"
)

// StageCreateOptions are parameters for appending a stage to a cycle.
type StageCreateOptions struct {
	CropCycleID      int64
	StageName        string
	PlannedStartDate *string
	PlannedEndDate   *string
	Notes            string
	ActorID          string
}

// CreateStage appends a pending stage after the cycle's existing stages.
func (e Engine) CreateStage(ctx context.Context, opts StageCreateOptions) (domain.CropCycleStage, error) {
	if opts.StageName == "" {
		return domain.CropCycleStage{}, errors.New("stage_name is required")
	}
	if opts.PlannedStartDate != nil && !validDate(*opts.PlannedStartDate) {
		return domain.CropCycleStage{}, errors.New("invalid planned_start_date, expected YYYY-MM-DD")
	}
	if opts.PlannedEndDate != nil && !validDate(*opts.PlannedEndDate) {
		return domain.CropCycleStage{}, errors.New("invalid planned_end_date, expected YYYY-MM-DD")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CropCycleStage{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCycleTx(ctx, tx, opts.CropCycleID)
	if err != nil {
		return domain.CropCycleStage{}, err
	}
	if !c.Editable() {
		return domain.CropCycleStage{}, &domain.NotEditableError{CycleID: c.ID, Status: c.Status}
	}
	max, err := e.Repo.MaxStageSequenceTx(ctx, tx, c.ID)
	if err != nil {
		return domain.CropCycleStage{}, err
	}
	now := e.timestamp()
	st := domain.CropCycleStage{
		CropCycleID:      c.ID,
		StageName:        opts.StageName,
		SequenceOrder:    max + 1,
		Status:           domain.StagePending,
		PlannedStartDate: opts.PlannedStartDate,
		PlannedEndDate:   opts.PlannedEndDate,
		Notes:            opts.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := e.Repo.InsertStageTx(ctx, tx, &st); err != nil {
		return domain.CropCycleStage{}, err
	}
	if err := e.Events.Append(ctx, tx, "stage.created", c.FarmID, "crop_cycle_stage", fmt.Sprint(st.ID), opts.ActorID, events.EventPayload{
		"cycle_code": c.CycleCode,
		"stage_name": st.StageName,
		"sequence":   st.SequenceOrder,
	}); err != nil {
		return domain.CropCycleStage{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CropCycleStage{}, err
	}
	return st, nil
}

// StartStage moves a pending stage to in_progress. The cycle must be active
// and every earlier stage must already be completed or skipped.
func (e Engine) StartStage(ctx context.Context, id int64, actualStart, actorID string) (domain.CropCycleStage, error) {
	if actualStart == "" {
		actualStart = e.today()
	}
	if !validDate(actualStart) {
		return domain.CropCycleStage{}, errors.New("invalid actual_start_date, expected YYYY-MM-DD")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CropCycleStage{}, err
	}
	defer tx.Rollback()

	st, err := e.Repo.GetStageTx(ctx, tx, id)
	if err != nil {
		return domain.CropCycleStage{}, err
	}
	c, err := e.Repo.GetCycleTx(ctx, tx, st.CropCycleID)
	if err != nil {
		return domain.CropCycleStage{}, err
	}
	if c.Status != domain.CycleActive {
		return domain.CropCycleStage{}, &domain.CycleNotActiveError{
			CycleID:   c.ID,
			CycleCode: c.CycleCode,
			Status:    c.Status,
			StageName: st.StageName,
		}
	}
	prev, err := e.Repo.PreviousStageTx(ctx, tx, st.CropCycleID, st.SequenceOrder)
	if err != nil {
		return domain.CropCycleStage{}, err
	}
	if prev != nil && !prev.Status.Done() {
		return domain.CropCycleStage{}, &domain.PreviousStageIncompleteError{
			StageID:      st.ID,
			PrevSequence: prev.SequenceOrder,
			PrevStatus:   prev.Status,
		}
	}
	if err := st.TransitionTo(domain.StageInProgress); err != nil {
		return domain.CropCycleStage{}, err
	}
	st.ActualStartDate = &actualStart
	st.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateStageTx(ctx, tx, st); err != nil {
		return domain.CropCycleStage{}, err
	}
	if err := e.Events.Append(ctx, tx, "stage.started", c.FarmID, "crop_cycle_stage", fmt.Sprint(st.ID), actorID, events.EventPayload{
		"cycle_code": c.CycleCode,
		"stage_name": st.StageName,
	}); err != nil {
		return domain.CropCycleStage{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CropCycleStage{}, err
	}
	return st, nil
}

// CompleteStage moves an in_progress stage to completed.
func (e Engine) CompleteStage(ctx context.Context, id int64, actualEnd, notes, actorID string) (domain.CropCycleStage, error) {
	if actualEnd == "" {
		actualEnd = e.today()
	}
	if !validDate(actualEnd) {
		return domain.CropCycleStage{}, errors.New("invalid actual_end_date, expected YYYY-MM-DD")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CropCycleStage{}, err
	}
	defer tx.Rollback()

	st, err := e.Repo.GetStageTx(ctx, tx, id)
	if err != nil {
		return domain.CropCycleStage{}, err
	}
	c, err := e.Repo.GetCycleTx(ctx, tx, st.CropCycleID)
	if err != nil {
		return domain.CropCycleStage{}, err
	}
	if err := st.TransitionTo(domain.StageCompleted); err != nil {
		return domain.CropCycleStage{}, err
	}
	st.ActualEndDate = &actualEnd
	st.Notes = appendNote(st.Notes, notes)
	st.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateStageTx(ctx, tx, st); err != nil {
		return domain.CropCycleStage{}, err
	}
	if err := e.Events.Append(ctx, tx, "stage.completed", c.FarmID, "crop_cycle_stage", fmt.Sprint(st.ID), actorID, events.EventPayload{
		"cycle_code": c.CycleCode,
		"stage_name": st.StageName,
	}); err != nil {
		return domain.CropCycleStage{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CropCycleStage{}, err
	}
	return st, nil
}

// SkipStage marks a pending stage as skipped so its successor can start.
func (e Engine) SkipStage(ctx context.Context, id int64, reason, actorID string) (domain.CropCycleStage, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CropCycleStage{}, err
	}
	defer tx.Rollback()

	st, err := e.Repo.GetStageTx(ctx, tx, id)
	if err != nil {
		return domain.CropCycleStage{}, err
	}
	c, err := e.Repo.GetCycleTx(ctx, tx, st.CropCycleID)
	if err != nil {
		return domain.CropCycleStage{}, err
	}
	if err := st.TransitionTo(domain.StageSkipped); err != nil {
		return domain.CropCycleStage{}, err
	}
	st.Notes = appendNote(st.Notes, reason)
	st.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateStageTx(ctx, tx, st); err != nil {
		return domain.CropCycleStage{}, err
	}
	if err := e.Events.Append(ctx, tx, "stage.skipped", c.FarmID, "crop_cycle_stage", fmt.Sprint(st.ID), actorID, events.EventPayload{
		"cycle_code": c.CycleCode,
		"stage_name": st.StageName,
		"reason":     reason,
	}); err != nil {
		return domain.CropCycleStage{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CropCycleStage{}, err
	}
	return st, nil
}
