package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cropline/internal/domain"
	"cropline/internal/events"
)

// CycleCreateOptions are parameters for planning a new crop cycle.
type CycleCreateOptions struct {
	FarmID           string
	LandParcelID     int64
	CropTypeID       int64
	SeasonID         *int64
	PlannedStartDate string
	PlannedEndDate   string
	Notes            string
	ActorID          string
}

// CreateCycle plans a new crop cycle. The active-cycle guard, the overlap
// check and the insert run in one transaction so two concurrent requests for
// the same parcel cannot both pass the checks and both commit.
func (e Engine) CreateCycle(ctx context.Context, opts CycleCreateOptions) (domain.CropCycle, error) {
	if opts.PlannedStartDate == "" || opts.PlannedEndDate == "" {
		return domain.CropCycle{}, errors.New("planned_start_date and planned_end_date are required")
	}
	if !validDate(opts.PlannedStartDate) || !validDate(opts.PlannedEndDate) {
		return domain.CropCycle{}, errors.New("invalid date, expected YYYY-MM-DD")
	}
	if opts.PlannedStartDate >= opts.PlannedEndDate {
		return domain.CropCycle{}, errors.New("invalid date range: planned_end_date must be after planned_start_date")
	}
	parcel, err := e.Repo.GetParcel(ctx, opts.LandParcelID)
	if err != nil {
		return domain.CropCycle{}, fmt.Errorf("land parcel %d: %w", opts.LandParcelID, err)
	}
	if opts.FarmID != "" && parcel.FarmID != opts.FarmID {
		return domain.CropCycle{}, &domain.PreconditionError{Msg: fmt.Sprintf("parcel %s not in farm %s", parcel.Code, opts.FarmID)}
	}
	cropType, err := e.Repo.GetCropType(ctx, opts.CropTypeID)
	if err != nil {
		return domain.CropCycle{}, fmt.Errorf("crop type %d: %w", opts.CropTypeID, err)
	}
	if opts.SeasonID != nil {
		season, err := e.Repo.GetSeason(ctx, *opts.SeasonID)
		if err != nil {
			return domain.CropCycle{}, fmt.Errorf("season %d: %w", *opts.SeasonID, err)
		}
		if season.FarmID != parcel.FarmID {
			return domain.CropCycle{}, &domain.PreconditionError{Msg: fmt.Sprintf("season %d not in farm %s", season.ID, parcel.FarmID)}
		}
	}

	now := e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CropCycle{}, err
	}
	defer tx.Rollback()

	// A parcel with an active cycle rejects new plans outright, whatever
	// their dates: the active cycle has no fixed end until it closes.
	active, err := e.Repo.ActiveCycleOnParcelTx(ctx, tx, parcel.ID, 0)
	if err != nil {
		return domain.CropCycle{}, err
	}
	if active != nil {
		return domain.CropCycle{}, &domain.ActiveCycleExistsError{
			LandParcelID: parcel.ID,
			CycleID:      active.ID,
			CycleCode:    active.CycleCode,
		}
	}
	conflict, err := e.Repo.FindOverlappingTx(ctx, tx, parcel.ID, opts.PlannedStartDate, opts.PlannedEndDate, 0)
	if err != nil {
		return domain.CropCycle{}, err
	}
	if conflict != nil {
		return domain.CropCycle{}, &domain.OverlapError{
			ConflictID:    conflict.ID,
			ConflictCode:  conflict.CycleCode,
			ConflictStart: conflict.PlannedStartDate,
			ConflictEnd:   conflict.PlannedEndDate,
		}
	}

	prefix := fmt.Sprintf("%s-%s-", parcel.Code, opts.PlannedStartDate[:4])
	seq, err := e.Repo.NextCycleSequenceTx(ctx, tx, prefix)
	if err != nil {
		return domain.CropCycle{}, err
	}
	c := domain.CropCycle{
		CycleCode:        fmt.Sprintf("%s%03d", prefix, seq),
		FarmID:           parcel.FarmID,
		LandParcelID:     parcel.ID,
		CropTypeID:       cropType.ID,
		SeasonID:         opts.SeasonID,
		Status:           domain.CyclePlanned,
		PlannedStartDate: opts.PlannedStartDate,
		PlannedEndDate:   opts.PlannedEndDate,
		Notes:            opts.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := e.Repo.InsertCycleTx(ctx, tx, &c); err != nil {
		return domain.CropCycle{}, err
	}
	if err := e.materializeStagesTx(ctx, tx, &c, cropType.Code, now); err != nil {
		return domain.CropCycle{}, err
	}
	if err := e.Events.Append(ctx, tx, "cycle.created", c.FarmID, "crop_cycle", fmt.Sprint(c.ID), opts.ActorID, events.EventPayload{
		"cycle_code": c.CycleCode,
		"status":     string(c.Status),
	}); err != nil {
		return domain.CropCycle{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CropCycle{}, err
	}
	cyclesCreatedTotal.Inc()
	return c, nil
}

// materializeStagesTx seeds pending stages from the crop's stage template,
// laying the planned windows end to end from the cycle's planned start.
func (e Engine) materializeStagesTx(ctx context.Context, tx *sql.Tx, c *domain.CropCycle, cropCode, now string) error {
	if e.Config == nil {
		return nil
	}
	template := e.Config.StagesFor(cropCode)
	if len(template) == 0 {
		return nil
	}
	start, err := time.Parse("2006-01-02", c.PlannedStartDate)
	if err != nil {
		return err
	}
	for i, t := range template {
		end := start.AddDate(0, 0, t.DurationDays)
		plannedStart := start.Format("2006-01-02")
		plannedEnd := end.Format("2006-01-02")
		st := domain.CropCycleStage{
			CropCycleID:      c.ID,
			StageName:        t.Name,
			SequenceOrder:    i + 1,
			Status:           domain.StagePending,
			PlannedStartDate: &plannedStart,
			PlannedEndDate:   &plannedEnd,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := e.Repo.InsertStageTx(ctx, tx, &st); err != nil {
			return fmt.Errorf("seed stage %s: %w", t.Name, err)
		}
		start = end
	}
	return nil
}

// CycleUpdateOptions carry the editable plan fields; nil means unchanged.
type CycleUpdateOptions struct {
	PlannedStartDate *string
	PlannedEndDate   *string
	SeasonID         *int64
	Notes            *string
	ActorID          string
}

// UpdateCyclePlan edits a cycle's plan. Only planned and active cycles are
// editable, and new dates are re-checked for overlap against siblings.
func (e Engine) UpdateCyclePlan(ctx context.Context, id int64, opts CycleUpdateOptions) (domain.CropCycle, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CropCycle{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCycleTx(ctx, tx, id)
	if err != nil {
		return domain.CropCycle{}, err
	}
	if !c.Editable() {
		return domain.CropCycle{}, &domain.NotEditableError{CycleID: c.ID, Status: c.Status}
	}
	if opts.PlannedStartDate != nil {
		if !validDate(*opts.PlannedStartDate) {
			return domain.CropCycle{}, errors.New("invalid planned_start_date, expected YYYY-MM-DD")
		}
		c.PlannedStartDate = *opts.PlannedStartDate
	}
	if opts.PlannedEndDate != nil {
		if !validDate(*opts.PlannedEndDate) {
			return domain.CropCycle{}, errors.New("invalid planned_end_date, expected YYYY-MM-DD")
		}
		c.PlannedEndDate = *opts.PlannedEndDate
	}
	if c.PlannedStartDate >= c.PlannedEndDate {
		return domain.CropCycle{}, errors.New("invalid date range: planned_end_date must be after planned_start_date")
	}
	if opts.SeasonID != nil {
		season, err := e.Repo.GetSeason(ctx, *opts.SeasonID)
		if err != nil {
			return domain.CropCycle{}, fmt.Errorf("season %d: %w", *opts.SeasonID, err)
		}
		if season.FarmID != c.FarmID {
			return domain.CropCycle{}, &domain.PreconditionError{Msg: fmt.Sprintf("season %d not in farm %s", season.ID, c.FarmID)}
		}
		c.SeasonID = opts.SeasonID
	}
	if opts.Notes != nil {
		c.Notes = *opts.Notes
	}
	conflict, err := e.Repo.FindOverlappingTx(ctx, tx, c.LandParcelID, c.PlannedStartDate, c.PlannedEndDate, c.ID)
	if err != nil {
		return domain.CropCycle{}, err
	}
	if conflict != nil {
		return domain.CropCycle{}, &domain.OverlapError{
			ConflictID:    conflict.ID,
			ConflictCode:  conflict.CycleCode,
			ConflictStart: conflict.PlannedStartDate,
			ConflictEnd:   conflict.PlannedEndDate,
		}
	}
	c.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateCycleTx(ctx, tx, c); err != nil {
		return domain.CropCycle{}, err
	}
	if err := e.Events.Append(ctx, tx, "cycle.updated", c.FarmID, "crop_cycle", fmt.Sprint(c.ID), opts.ActorID, nil); err != nil {
		return domain.CropCycle{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CropCycle{}, err
	}
	return c, nil
}

// ActivateCycle moves a planned cycle to active. A parcel carries at most one
// active cycle, checked in the same transaction as the status write.
func (e Engine) ActivateCycle(ctx context.Context, id int64, actualStart, actorID string) (domain.CropCycle, error) {
	if actualStart == "" {
		actualStart = e.today()
	}
	if !validDate(actualStart) {
		return domain.CropCycle{}, errors.New("invalid actual_start_date, expected YYYY-MM-DD")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CropCycle{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCycleTx(ctx, tx, id)
	if err != nil {
		return domain.CropCycle{}, err
	}
	if err := c.TransitionTo(domain.CycleActive); err != nil {
		return domain.CropCycle{}, err
	}
	active, err := e.Repo.ActiveCycleOnParcelTx(ctx, tx, c.LandParcelID, c.ID)
	if err != nil {
		return domain.CropCycle{}, err
	}
	if active != nil {
		return domain.CropCycle{}, &domain.ActiveCycleExistsError{
			LandParcelID: c.LandParcelID,
			CycleID:      active.ID,
			CycleCode:    active.CycleCode,
		}
	}
	c.ActualStartDate = &actualStart
	c.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateCycleTx(ctx, tx, c); err != nil {
		return domain.CropCycle{}, err
	}
	if err := e.Events.Append(ctx, tx, "cycle.activated", c.FarmID, "crop_cycle", fmt.Sprint(c.ID), actorID, events.EventPayload{
		"cycle_code":        c.CycleCode,
		"actual_start_date": actualStart,
	}); err != nil {
		return domain.CropCycle{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CropCycle{}, err
	}
	cycleTransitionsTotal.WithLabelValues(string(domain.CycleActive)).Inc()
	return c, nil
}

// CycleCompleteOptions carry the harvest outcome recorded at completion.
type CycleCompleteOptions struct {
	ActualEndDate string
	YieldValue    *float64
	YieldUnitID   *int64
	QualityRating string
	Notes         string
	ActorID       string
}

// CompleteCycle closes an active cycle as a successful harvest.
func (e Engine) CompleteCycle(ctx context.Context, id int64, opts CycleCompleteOptions) (domain.CropCycle, error) {
	if opts.ActualEndDate == "" {
		opts.ActualEndDate = e.today()
	}
	if !validDate(opts.ActualEndDate) {
		return domain.CropCycle{}, errors.New("invalid actual_end_date, expected YYYY-MM-DD")
	}
	if opts.QualityRating != "" && !domain.ValidQualityRating(opts.QualityRating) {
		return domain.CropCycle{}, fmt.Errorf("invalid quality_rating %q", opts.QualityRating)
	}
	if opts.YieldUnitID != nil {
		if _, err := e.Repo.GetUnit(ctx, *opts.YieldUnitID); err != nil {
			return domain.CropCycle{}, fmt.Errorf("yield unit %d: %w", *opts.YieldUnitID, err)
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CropCycle{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCycleTx(ctx, tx, id)
	if err != nil {
		return domain.CropCycle{}, err
	}
	if err := c.TransitionTo(domain.CycleCompleted); err != nil {
		return domain.CropCycle{}, err
	}
	c.ActualEndDate = &opts.ActualEndDate
	if opts.YieldValue != nil {
		c.YieldValue = opts.YieldValue
	}
	if opts.YieldUnitID != nil {
		c.YieldUnitID = opts.YieldUnitID
	}
	if opts.QualityRating != "" {
		c.QualityRating = &opts.QualityRating
	}
	c.Notes = appendNote(c.Notes, opts.Notes)
	c.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateCycleTx(ctx, tx, c); err != nil {
		return domain.CropCycle{}, err
	}
	payload := events.EventPayload{"cycle_code": c.CycleCode, "actual_end_date": opts.ActualEndDate}
	if c.YieldValue != nil {
		payload["yield_value"] = *c.YieldValue
	}
	if err := e.Events.Append(ctx, tx, "cycle.completed", c.FarmID, "crop_cycle", fmt.Sprint(c.ID), opts.ActorID, payload); err != nil {
		return domain.CropCycle{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CropCycle{}, err
	}
	cycleTransitionsTotal.WithLabelValues(string(domain.CycleCompleted)).Inc()
	return c, nil
}

// FailCycle closes an active cycle as lost.
func (e Engine) FailCycle(ctx context.Context, id int64, reason, actorID string) (domain.CropCycle, error) {
	return e.closeCycle(ctx, id, domain.CycleFailed, reason, actorID)
}

// AbandonCycle closes a planned or active cycle without an outcome.
func (e Engine) AbandonCycle(ctx context.Context, id int64, reason, actorID string) (domain.CropCycle, error) {
	return e.closeCycle(ctx, id, domain.CycleAbandoned, reason, actorID)
}

func (e Engine) closeCycle(ctx context.Context, id int64, target domain.CycleStatus, reason, actorID string) (domain.CropCycle, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CropCycle{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCycleTx(ctx, tx, id)
	if err != nil {
		return domain.CropCycle{}, err
	}
	if err := c.TransitionTo(target); err != nil {
		return domain.CropCycle{}, err
	}
	if c.ActualEndDate == nil {
		today := e.today()
		c.ActualEndDate = &today
	}
	c.Notes = appendNote(c.Notes, reason)
	c.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateCycleTx(ctx, tx, c); err != nil {
		return domain.CropCycle{}, err
	}
	evtType := "cycle." + string(target)
	if err := e.Events.Append(ctx, tx, evtType, c.FarmID, "crop_cycle", fmt.Sprint(c.ID), actorID, events.EventPayload{
		"cycle_code": c.CycleCode,
		"reason":     reason,
	}); err != nil {
		return domain.CropCycle{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CropCycle{}, err
	}
	cycleTransitionsTotal.WithLabelValues(string(target)).Inc()
	return c, nil
}

// DeleteCycle removes a cycle that never left planned. Stages go with it.
func (e Engine) DeleteCycle(ctx context.Context, id int64, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCycleTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if !c.Deletable() {
		return &domain.NotDeletableError{CycleID: c.ID, Status: c.Status}
	}
	if err := e.Repo.DeleteCycleTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "cycle.deleted", c.FarmID, "crop_cycle", fmt.Sprint(c.ID), actorID, events.EventPayload{
		"cycle_code": c.CycleCode,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func appendNote(existing, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return existing
	}
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
