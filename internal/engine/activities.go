package engine

import (
	"context"
	"errors"
	"fmt"

	"cropline/internal/domain"
	"cropline/internal/events"
)

// ActivityOptions are parameters for recording an activity. Either
// CropCycleID or LandParcelID must be set; the farm is resolved from them.
type ActivityOptions struct {
	ActivityTypeID    int64
	CropCycleID       *int64
	LandParcelID      *int64
	WaterSourceID     *int64
	ActivityDate      string
	StartTime         *string
	EndTime           *string
	Description       string
	QuantityValue     *float64
	QuantityUnitID    *int64
	CostValue         *float64
	CostUnitID        *int64
	PerformedBy       string
	WeatherConditions string
	ActorID           string
}

// RecordActivity appends an activity log row. The row is immutable once
// written; corrections are made by recording a new activity.
func (e Engine) RecordActivity(ctx context.Context, opts ActivityOptions) (domain.ActivityLog, error) {
	if opts.CropCycleID == nil && opts.LandParcelID == nil {
		return domain.ActivityLog{}, errors.New("either crop_cycle_id or land_parcel_id is required")
	}
	if opts.Description == "" {
		return domain.ActivityLog{}, errors.New("description is required")
	}
	if opts.ActivityDate == "" {
		opts.ActivityDate = e.today()
	}
	if !validDate(opts.ActivityDate) {
		return domain.ActivityLog{}, errors.New("invalid activity_date, expected YYYY-MM-DD")
	}
	if _, err := e.Repo.GetActivityType(ctx, opts.ActivityTypeID); err != nil {
		return domain.ActivityLog{}, fmt.Errorf("activity type %d: %w", opts.ActivityTypeID, err)
	}

	var farmID string
	if opts.CropCycleID != nil {
		c, err := e.Repo.GetCycle(ctx, *opts.CropCycleID)
		if err != nil {
			return domain.ActivityLog{}, fmt.Errorf("crop cycle %d: %w", *opts.CropCycleID, err)
		}
		farmID = c.FarmID
		if opts.LandParcelID == nil {
			opts.LandParcelID = &c.LandParcelID
		} else if *opts.LandParcelID != c.LandParcelID {
			return domain.ActivityLog{}, &domain.PreconditionError{Msg: fmt.Sprintf("parcel %d does not match cycle %s", *opts.LandParcelID, c.CycleCode)}
		}
	} else {
		p, err := e.Repo.GetParcel(ctx, *opts.LandParcelID)
		if err != nil {
			return domain.ActivityLog{}, fmt.Errorf("land parcel %d: %w", *opts.LandParcelID, err)
		}
		farmID = p.FarmID
	}
	if opts.WaterSourceID != nil {
		w, err := e.Repo.GetWaterSource(ctx, *opts.WaterSourceID)
		if err != nil {
			return domain.ActivityLog{}, fmt.Errorf("water source %d: %w", *opts.WaterSourceID, err)
		}
		if w.FarmID != farmID {
			return domain.ActivityLog{}, &domain.PreconditionError{Msg: fmt.Sprintf("water source %d not in farm %s", w.ID, farmID)}
		}
	}
	if opts.QuantityUnitID != nil {
		if _, err := e.Repo.GetUnit(ctx, *opts.QuantityUnitID); err != nil {
			return domain.ActivityLog{}, fmt.Errorf("quantity unit %d: %w", *opts.QuantityUnitID, err)
		}
	}
	if opts.CostUnitID != nil {
		if _, err := e.Repo.GetUnit(ctx, *opts.CostUnitID); err != nil {
			return domain.ActivityLog{}, fmt.Errorf("cost unit %d: %w", *opts.CostUnitID, err)
		}
	}

	a := domain.ActivityLog{
		FarmID:            farmID,
		ActivityTypeID:    opts.ActivityTypeID,
		CropCycleID:       opts.CropCycleID,
		LandParcelID:      opts.LandParcelID,
		WaterSourceID:     opts.WaterSourceID,
		ActivityDate:      opts.ActivityDate,
		StartTime:         opts.StartTime,
		EndTime:           opts.EndTime,
		Description:       opts.Description,
		QuantityValue:     opts.QuantityValue,
		QuantityUnitID:    opts.QuantityUnitID,
		CostValue:         opts.CostValue,
		CostUnitID:        opts.CostUnitID,
		PerformedBy:       opts.PerformedBy,
		WeatherConditions: opts.WeatherConditions,
		CreatedAt:         e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActivityLog{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertActivityTx(ctx, tx, &a); err != nil {
		return domain.ActivityLog{}, err
	}
	if err := e.Events.Append(ctx, tx, "activity.recorded", farmID, "activity_log", fmt.Sprint(a.ID), opts.ActorID, events.EventPayload{
		"activity_date": a.ActivityDate,
	}); err != nil {
		return domain.ActivityLog{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ActivityLog{}, err
	}
	activitiesRecordedTotal.Inc()
	return a, nil
}
