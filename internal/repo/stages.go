package repo

import (
	"context"
	"database/sql"

	"cropline/internal/domain"
)

const stageCols = `id,crop_cycle_id,stage_name,sequence_order,status,planned_start_date,planned_end_date,actual_start_date,actual_end_date,notes,created_at,updated_at`

func scanStage(row cycleScanner) (domain.CropCycleStage, error) {
	var st domain.CropCycleStage
	var plannedStart, plannedEnd, actualStart, actualEnd, notes sql.NullString
	err := row.Scan(&st.ID, &st.CropCycleID, &st.StageName, &st.SequenceOrder, &st.Status,
		&plannedStart, &plannedEnd, &actualStart, &actualEnd, &notes, &st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return st, ErrNotFound
	}
	if err != nil {
		return st, err
	}
	if plannedStart.Valid {
		st.PlannedStartDate = &plannedStart.String
	}
	if plannedEnd.Valid {
		st.PlannedEndDate = &plannedEnd.String
	}
	if actualStart.Valid {
		st.ActualStartDate = &actualStart.String
	}
	if actualEnd.Valid {
		st.ActualEndDate = &actualEnd.String
	}
	if notes.Valid {
		st.Notes = notes.String
	}
	return st, nil
}

func (r Repo) InsertStageTx(ctx context.Context, tx *sql.Tx, st *domain.CropCycleStage) error {
	res, err := tx.ExecContext(ctx, `INSERT INTO crop_cycle_stages(crop_cycle_id,stage_name,sequence_order,status,planned_start_date,planned_end_date,actual_start_date,actual_end_date,notes,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		st.CropCycleID, st.StageName, st.SequenceOrder, st.Status,
		nullableStringPtr(st.PlannedStartDate), nullableStringPtr(st.PlannedEndDate),
		nullableStringPtr(st.ActualStartDate), nullableStringPtr(st.ActualEndDate),
		nullable(st.Notes), st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return err
	}
	st.ID, err = res.LastInsertId()
	return err
}

func (r Repo) GetStage(ctx context.Context, id int64) (domain.CropCycleStage, error) {
	return scanStage(r.DB.QueryRowContext(ctx, `SELECT `+stageCols+` FROM crop_cycle_stages WHERE id=?`, id))
}

func (r Repo) GetStageTx(ctx context.Context, tx *sql.Tx, id int64) (domain.CropCycleStage, error) {
	return scanStage(tx.QueryRowContext(ctx, `SELECT `+stageCols+` FROM crop_cycle_stages WHERE id=?`, id))
}

func (r Repo) UpdateStageTx(ctx context.Context, tx *sql.Tx, st domain.CropCycleStage) error {
	res, err := tx.ExecContext(ctx, `UPDATE crop_cycle_stages SET stage_name=?, status=?, planned_start_date=?, planned_end_date=?, actual_start_date=?, actual_end_date=?, notes=?, updated_at=? WHERE id=?`,
		st.StageName, st.Status, nullableStringPtr(st.PlannedStartDate), nullableStringPtr(st.PlannedEndDate),
		nullableStringPtr(st.ActualStartDate), nullableStringPtr(st.ActualEndDate), nullable(st.Notes), st.UpdatedAt, st.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListStages(ctx context.Context, cycleID int64) ([]domain.CropCycleStage, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+stageCols+` FROM crop_cycle_stages WHERE crop_cycle_id=? ORDER BY sequence_order`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CropCycleStage
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, nil
}

// PreviousStageTx returns the stage immediately before the given sequence in
// the same cycle, or nil when it is the first.
func (r Repo) PreviousStageTx(ctx context.Context, tx *sql.Tx, cycleID int64, sequence int) (*domain.CropCycleStage, error) {
	st, err := scanStage(tx.QueryRowContext(ctx, `SELECT `+stageCols+` FROM crop_cycle_stages
		WHERE crop_cycle_id=? AND sequence_order < ? ORDER BY sequence_order DESC LIMIT 1`, cycleID, sequence))
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r Repo) MaxStageSequenceTx(ctx context.Context, tx *sql.Tx, cycleID int64) (int, error) {
	var max sql.NullInt64
	err := tx.QueryRowContext(ctx, `SELECT MAX(sequence_order) FROM crop_cycle_stages WHERE crop_cycle_id=?`, cycleID).Scan(&max)
	if err != nil {
		return 0, err
	}
	return int(max.Int64), nil
}
