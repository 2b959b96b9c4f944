package repo

import (
	"context"
	"database/sql"
	"strings"

	"cropline/internal/domain"
)

const cycleCols = `id,cycle_code,farm_id,land_parcel_id,crop_type_id,season_id,status,planned_start_date,planned_end_date,actual_start_date,actual_end_date,yield_value,yield_unit_id,quality_rating,notes,created_at,updated_at`

type cycleScanner interface {
	Scan(dest ...any) error
}

func scanCycle(row cycleScanner) (domain.CropCycle, error) {
	var c domain.CropCycle
	var seasonID, yieldUnitID sql.NullInt64
	var actualStart, actualEnd, quality, notes sql.NullString
	var yieldValue sql.NullFloat64
	err := row.Scan(&c.ID, &c.CycleCode, &c.FarmID, &c.LandParcelID, &c.CropTypeID, &seasonID, &c.Status,
		&c.PlannedStartDate, &c.PlannedEndDate, &actualStart, &actualEnd, &yieldValue, &yieldUnitID, &quality, &notes,
		&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if seasonID.Valid {
		c.SeasonID = &seasonID.Int64
	}
	if actualStart.Valid {
		c.ActualStartDate = &actualStart.String
	}
	if actualEnd.Valid {
		c.ActualEndDate = &actualEnd.String
	}
	if yieldValue.Valid {
		c.YieldValue = &yieldValue.Float64
	}
	if yieldUnitID.Valid {
		c.YieldUnitID = &yieldUnitID.Int64
	}
	if quality.Valid {
		c.QualityRating = &quality.String
	}
	if notes.Valid {
		c.Notes = notes.String
	}
	return c, nil
}

func (r Repo) InsertCycleTx(ctx context.Context, tx *sql.Tx, c *domain.CropCycle) error {
	res, err := tx.ExecContext(ctx, `INSERT INTO crop_cycles(cycle_code,farm_id,land_parcel_id,crop_type_id,season_id,status,planned_start_date,planned_end_date,actual_start_date,actual_end_date,yield_value,yield_unit_id,quality_rating,notes,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.CycleCode, c.FarmID, c.LandParcelID, c.CropTypeID, nullableInt64Ptr(c.SeasonID), c.Status,
		c.PlannedStartDate, c.PlannedEndDate, nullableStringPtr(c.ActualStartDate), nullableStringPtr(c.ActualEndDate),
		nullableFloatPtr(c.YieldValue), nullableInt64Ptr(c.YieldUnitID), nullableStringPtr(c.QualityRating), nullable(c.Notes),
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (r Repo) GetCycle(ctx context.Context, id int64) (domain.CropCycle, error) {
	return scanCycle(r.DB.QueryRowContext(ctx, `SELECT `+cycleCols+` FROM crop_cycles WHERE id=?`, id))
}

func (r Repo) GetCycleTx(ctx context.Context, tx *sql.Tx, id int64) (domain.CropCycle, error) {
	return scanCycle(tx.QueryRowContext(ctx, `SELECT `+cycleCols+` FROM crop_cycles WHERE id=?`, id))
}

func (r Repo) GetCycleByCode(ctx context.Context, code string) (domain.CropCycle, error) {
	return scanCycle(r.DB.QueryRowContext(ctx, `SELECT `+cycleCols+` FROM crop_cycles WHERE cycle_code=?`, code))
}

func (r Repo) UpdateCycleTx(ctx context.Context, tx *sql.Tx, c domain.CropCycle) error {
	res, err := tx.ExecContext(ctx, `UPDATE crop_cycles SET land_parcel_id=?, crop_type_id=?, season_id=?, status=?, planned_start_date=?, planned_end_date=?, actual_start_date=?, actual_end_date=?, yield_value=?, yield_unit_id=?, quality_rating=?, notes=?, updated_at=? WHERE id=?`,
		c.LandParcelID, c.CropTypeID, nullableInt64Ptr(c.SeasonID), c.Status, c.PlannedStartDate, c.PlannedEndDate,
		nullableStringPtr(c.ActualStartDate), nullableStringPtr(c.ActualEndDate), nullableFloatPtr(c.YieldValue),
		nullableInt64Ptr(c.YieldUnitID), nullableStringPtr(c.QualityRating), nullable(c.Notes), c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteCycleTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM crop_cycles WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type CycleFilters struct {
	FarmID          string
	LandParcelID    int64
	CropTypeID      int64
	SeasonID        int64
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        int64
}

func (r Repo) ListCycles(ctx context.Context, f CycleFilters) ([]domain.CropCycle, error) {
	var clauses []string
	var args []any
	if f.FarmID != "" {
		clauses = append(clauses, "farm_id=?")
		args = append(args, f.FarmID)
	}
	if f.LandParcelID > 0 {
		clauses = append(clauses, "land_parcel_id=?")
		args = append(args, f.LandParcelID)
	}
	if f.CropTypeID > 0 {
		clauses = append(clauses, "crop_type_id=?")
		args = append(args, f.CropTypeID)
	}
	if f.SeasonID > 0 {
		clauses = append(clauses, "season_id=?")
		args = append(args, f.SeasonID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID > 0 {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + cycleCols + ` FROM crop_cycles ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CropCycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

// FindOverlappingTx returns the first planned or active cycle on the parcel
// whose planned interval intersects [start,end], both endpoints inclusive.
// Dates are ISO strings so lexical comparison matches chronological order.
func (r Repo) FindOverlappingTx(ctx context.Context, tx *sql.Tx, parcelID int64, start, end string, excludeID int64) (*domain.CropCycle, error) {
	c, err := scanCycle(tx.QueryRowContext(ctx, `SELECT `+cycleCols+` FROM crop_cycles
		WHERE land_parcel_id=? AND id<>? AND status IN ('planned','active')
		AND planned_start_date <= ? AND planned_end_date >= ?
		ORDER BY planned_start_date LIMIT 1`, parcelID, excludeID, end, start))
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ActiveCycleOnParcelTx returns the active cycle on the parcel, if any.
func (r Repo) ActiveCycleOnParcelTx(ctx context.Context, tx *sql.Tx, parcelID int64, excludeID int64) (*domain.CropCycle, error) {
	c, err := scanCycle(tx.QueryRowContext(ctx, `SELECT `+cycleCols+` FROM crop_cycles
		WHERE land_parcel_id=? AND id<>? AND status='active' LIMIT 1`, parcelID, excludeID))
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// likeEscaper neutralizes LIKE wildcards in user-supplied parcel codes so a
// code like P_1 cannot match sibling codes when computing the next sequence.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// NextCycleSequenceTx returns one past the highest numeric suffix among cycle
// codes sharing the prefix, so deleted planned cycles never cause reuse below
// the high-water mark.
func (r Repo) NextCycleSequenceTx(ctx context.Context, tx *sql.Tx, prefix string) (int, error) {
	var maxSeq sql.NullInt64
	err := tx.QueryRowContext(ctx, `SELECT MAX(CAST(substr(cycle_code, ?) AS INTEGER)) FROM crop_cycles WHERE cycle_code LIKE ? ESCAPE '\'`,
		len(prefix)+1, likeEscaper.Replace(prefix)+"%").Scan(&maxSeq)
	if err != nil {
		return 0, err
	}
	return int(maxSeq.Int64) + 1, nil
}

func (r Repo) CountCyclesByStatus(ctx context.Context, farmID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM crop_cycles WHERE farm_id=? GROUP BY status`, farmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, nil
}
