package repo

import (
	"context"
	"database/sql"
	"strings"

	"cropline/internal/domain"
)

const activityCols = `id,farm_id,activity_type_id,crop_cycle_id,land_parcel_id,water_source_id,activity_date,start_time,end_time,description,quantity_value,quantity_unit_id,cost_value,cost_unit_id,performed_by,weather_conditions,created_at`

func scanActivity(row cycleScanner) (domain.ActivityLog, error) {
	var a domain.ActivityLog
	var cycleID, parcelID, waterSourceID, quantityUnitID, costUnitID sql.NullInt64
	var startTime, endTime, performedBy, weather sql.NullString
	var quantity, cost sql.NullFloat64
	err := row.Scan(&a.ID, &a.FarmID, &a.ActivityTypeID, &cycleID, &parcelID, &waterSourceID,
		&a.ActivityDate, &startTime, &endTime, &a.Description, &quantity, &quantityUnitID,
		&cost, &costUnitID, &performedBy, &weather, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if cycleID.Valid {
		a.CropCycleID = &cycleID.Int64
	}
	if parcelID.Valid {
		a.LandParcelID = &parcelID.Int64
	}
	if waterSourceID.Valid {
		a.WaterSourceID = &waterSourceID.Int64
	}
	if startTime.Valid {
		a.StartTime = &startTime.String
	}
	if endTime.Valid {
		a.EndTime = &endTime.String
	}
	if quantity.Valid {
		a.QuantityValue = &quantity.Float64
	}
	if quantityUnitID.Valid {
		a.QuantityUnitID = &quantityUnitID.Int64
	}
	if cost.Valid {
		a.CostValue = &cost.Float64
	}
	if costUnitID.Valid {
		a.CostUnitID = &costUnitID.Int64
	}
	if performedBy.Valid {
		a.PerformedBy = performedBy.String
	}
	if weather.Valid {
		a.WeatherConditions = weather.String
	}
	return a, nil
}

// InsertActivityTx appends an activity row. There is deliberately no update or
// delete counterpart; the table is append-only.
func (r Repo) InsertActivityTx(ctx context.Context, tx *sql.Tx, a *domain.ActivityLog) error {
	res, err := tx.ExecContext(ctx, `INSERT INTO activity_logs(farm_id,activity_type_id,crop_cycle_id,land_parcel_id,water_source_id,activity_date,start_time,end_time,description,quantity_value,quantity_unit_id,cost_value,cost_unit_id,performed_by,weather_conditions,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.FarmID, a.ActivityTypeID, nullableInt64Ptr(a.CropCycleID), nullableInt64Ptr(a.LandParcelID), nullableInt64Ptr(a.WaterSourceID),
		a.ActivityDate, nullableStringPtr(a.StartTime), nullableStringPtr(a.EndTime), a.Description,
		nullableFloatPtr(a.QuantityValue), nullableInt64Ptr(a.QuantityUnitID), nullableFloatPtr(a.CostValue), nullableInt64Ptr(a.CostUnitID),
		nullable(a.PerformedBy), nullable(a.WeatherConditions), a.CreatedAt)
	if err != nil {
		return err
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (r Repo) GetActivity(ctx context.Context, id int64) (domain.ActivityLog, error) {
	return scanActivity(r.DB.QueryRowContext(ctx, `SELECT `+activityCols+` FROM activity_logs WHERE id=?`, id))
}

type ActivityFilters struct {
	FarmID          string
	CropCycleID     int64
	LandParcelID    int64
	ActivityTypeID  int64
	DateFrom        string
	DateTo          string
	Limit           int
	CursorCreatedAt string
	CursorID        int64
}

func (r Repo) ListActivities(ctx context.Context, f ActivityFilters) ([]domain.ActivityLog, error) {
	var clauses []string
	var args []any
	if f.FarmID != "" {
		clauses = append(clauses, "farm_id=?")
		args = append(args, f.FarmID)
	}
	if f.CropCycleID > 0 {
		clauses = append(clauses, "crop_cycle_id=?")
		args = append(args, f.CropCycleID)
	}
	if f.LandParcelID > 0 {
		clauses = append(clauses, "land_parcel_id=?")
		args = append(args, f.LandParcelID)
	}
	if f.ActivityTypeID > 0 {
		clauses = append(clauses, "activity_type_id=?")
		args = append(args, f.ActivityTypeID)
	}
	if f.DateFrom != "" {
		clauses = append(clauses, "activity_date >= ?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		clauses = append(clauses, "activity_date <= ?")
		args = append(args, f.DateTo)
	}
	if f.CursorCreatedAt != "" && f.CursorID > 0 {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + activityCols + ` FROM activity_logs ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActivityLog
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, nil
}

func (r Repo) LatestEvents(ctx context.Context, limit int, farmID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, farmID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, farmID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if farmID != "" {
		clauses = append(clauses, "farm_id=?")
		args = append(args, farmID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT id,ts,type,COALESCE(farm_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events ` + where + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.FarmID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, farmID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if farmID != "" {
		clauses = append(clauses, "farm_id=?")
		args = append(args, farmID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT id,ts,type,COALESCE(farm_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events ` + where + ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.FarmID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

// LatestEventID returns the most recent event ID for a farm.
func (r Repo) LatestEventID(ctx context.Context, farmID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE farm_id=?`, farmID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
