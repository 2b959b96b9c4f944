package repo

import (
	"context"
	"database/sql"

	"cropline/internal/domain"
)

func (r Repo) UpsertUnitTx(ctx context.Context, tx *sql.Tx, u domain.UnitOfMeasure) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO units_of_measure(code,name,kind) VALUES (?,?,?)
		ON CONFLICT(code) DO UPDATE SET name=excluded.name, kind=excluded.kind`, u.Code, u.Name, u.Kind)
	return err
}

func (r Repo) GetUnit(ctx context.Context, id int64) (domain.UnitOfMeasure, error) {
	var u domain.UnitOfMeasure
	err := r.DB.QueryRowContext(ctx, `SELECT id,code,name,kind FROM units_of_measure WHERE id=?`, id).
		Scan(&u.ID, &u.Code, &u.Name, &u.Kind)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) GetUnitByCode(ctx context.Context, code string) (domain.UnitOfMeasure, error) {
	var u domain.UnitOfMeasure
	err := r.DB.QueryRowContext(ctx, `SELECT id,code,name,kind FROM units_of_measure WHERE code=?`, code).
		Scan(&u.ID, &u.Code, &u.Name, &u.Kind)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) ListUnits(ctx context.Context) ([]domain.UnitOfMeasure, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,code,name,kind FROM units_of_measure ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.UnitOfMeasure
	for rows.Next() {
		var u domain.UnitOfMeasure
		if err := rows.Scan(&u.ID, &u.Code, &u.Name, &u.Kind); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, nil
}

func (r Repo) UpsertActivityTypeTx(ctx context.Context, tx *sql.Tx, a domain.ActivityType) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO activity_types(code,name,category) VALUES (?,?,?)
		ON CONFLICT(code) DO UPDATE SET name=excluded.name, category=excluded.category`, a.Code, a.Name, nullable(a.Category))
	return err
}

func (r Repo) GetActivityType(ctx context.Context, id int64) (domain.ActivityType, error) {
	var a domain.ActivityType
	err := r.DB.QueryRowContext(ctx, `SELECT id,code,name,COALESCE(category,'') FROM activity_types WHERE id=?`, id).
		Scan(&a.ID, &a.Code, &a.Name, &a.Category)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) GetActivityTypeByCode(ctx context.Context, code string) (domain.ActivityType, error) {
	var a domain.ActivityType
	err := r.DB.QueryRowContext(ctx, `SELECT id,code,name,COALESCE(category,'') FROM activity_types WHERE code=?`, code).
		Scan(&a.ID, &a.Code, &a.Name, &a.Category)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListActivityTypes(ctx context.Context) ([]domain.ActivityType, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,code,name,COALESCE(category,'') FROM activity_types ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActivityType
	for rows.Next() {
		var a domain.ActivityType
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Category); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, nil
}

func (r Repo) UpsertCropType(ctx context.Context, c domain.CropType) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO crop_types(code,name,category,typical_duration_days) VALUES (?,?,?,?)
		ON CONFLICT(code) DO UPDATE SET name=excluded.name, category=excluded.category, typical_duration_days=excluded.typical_duration_days`,
		c.Code, c.Name, nullable(c.Category), nullableIntPtr(c.TypicalDurationDays))
	return err
}

func scanCropType(row cycleScanner) (domain.CropType, error) {
	var c domain.CropType
	var duration sql.NullInt64
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Category, &duration)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if duration.Valid {
		d := int(duration.Int64)
		c.TypicalDurationDays = &d
	}
	return c, err
}

func (r Repo) GetCropType(ctx context.Context, id int64) (domain.CropType, error) {
	return scanCropType(r.DB.QueryRowContext(ctx, `SELECT id,code,name,COALESCE(category,''),typical_duration_days FROM crop_types WHERE id=?`, id))
}

func (r Repo) GetCropTypeByCode(ctx context.Context, code string) (domain.CropType, error) {
	return scanCropType(r.DB.QueryRowContext(ctx, `SELECT id,code,name,COALESCE(category,''),typical_duration_days FROM crop_types WHERE code=?`, code))
}

func (r Repo) ListCropTypes(ctx context.Context) ([]domain.CropType, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,code,name,COALESCE(category,''),typical_duration_days FROM crop_types ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CropType
	for rows.Next() {
		c, err := scanCropType(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

func (r Repo) UpsertSeasonDefinitionTx(ctx context.Context, tx *sql.Tx, s domain.SeasonDefinition) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO season_definitions(code,name,start_month,end_month) VALUES (?,?,?,?)
		ON CONFLICT(code) DO UPDATE SET name=excluded.name, start_month=excluded.start_month, end_month=excluded.end_month`,
		s.Code, s.Name, s.StartMonth, s.EndMonth)
	return err
}

func (r Repo) GetSeasonDefinitionByCode(ctx context.Context, code string) (domain.SeasonDefinition, error) {
	var s domain.SeasonDefinition
	err := r.DB.QueryRowContext(ctx, `SELECT id,code,name,start_month,end_month FROM season_definitions WHERE code=?`, code).
		Scan(&s.ID, &s.Code, &s.Name, &s.StartMonth, &s.EndMonth)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) ListSeasonDefinitions(ctx context.Context) ([]domain.SeasonDefinition, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,code,name,start_month,end_month FROM season_definitions ORDER BY start_month`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SeasonDefinition
	for rows.Next() {
		var s domain.SeasonDefinition
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.StartMonth, &s.EndMonth); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

// GetOrCreateSeason returns the farm's season for the definition and year,
// creating it on first use.
func (r Repo) GetOrCreateSeason(ctx context.Context, farmID string, definitionID int64, year int, now string) (domain.Season, error) {
	var s domain.Season
	err := r.DB.QueryRowContext(ctx, `SELECT id,farm_id,season_definition_id,year,created_at FROM seasons WHERE farm_id=? AND season_definition_id=? AND year=?`,
		farmID, definitionID, year).Scan(&s.ID, &s.FarmID, &s.SeasonDefinitionID, &s.Year, &s.CreatedAt)
	if err == nil {
		return s, nil
	}
	if err != sql.ErrNoRows {
		return s, err
	}
	res, err := r.DB.ExecContext(ctx, `INSERT INTO seasons(farm_id,season_definition_id,year,created_at) VALUES (?,?,?,?)`,
		farmID, definitionID, year, now)
	if err != nil {
		return s, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return s, err
	}
	return domain.Season{ID: id, FarmID: farmID, SeasonDefinitionID: definitionID, Year: year, CreatedAt: now}, nil
}

func (r Repo) GetSeason(ctx context.Context, id int64) (domain.Season, error) {
	var s domain.Season
	err := r.DB.QueryRowContext(ctx, `SELECT id,farm_id,season_definition_id,year,created_at FROM seasons WHERE id=?`, id).
		Scan(&s.ID, &s.FarmID, &s.SeasonDefinitionID, &s.Year, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) ListSeasons(ctx context.Context, farmID string) ([]domain.Season, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,farm_id,season_definition_id,year,created_at FROM seasons WHERE farm_id=? ORDER BY year DESC, season_definition_id`, farmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Season
	for rows.Next() {
		var s domain.Season
		if err := rows.Scan(&s.ID, &s.FarmID, &s.SeasonDefinitionID, &s.Year, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

func (r Repo) InsertWaterSource(ctx context.Context, w *domain.WaterSource) error {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO water_sources(farm_id,name,kind,notes,created_at) VALUES (?,?,?,?,?)`,
		w.FarmID, w.Name, w.Kind, nullable(w.Notes), w.CreatedAt)
	if err != nil {
		return err
	}
	w.ID, err = res.LastInsertId()
	return err
}

func (r Repo) GetWaterSource(ctx context.Context, id int64) (domain.WaterSource, error) {
	var w domain.WaterSource
	err := r.DB.QueryRowContext(ctx, `SELECT id,farm_id,name,kind,COALESCE(notes,''),created_at FROM water_sources WHERE id=?`, id).
		Scan(&w.ID, &w.FarmID, &w.Name, &w.Kind, &w.Notes, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	return w, err
}

func (r Repo) ListWaterSources(ctx context.Context, farmID string) ([]domain.WaterSource, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,farm_id,name,kind,COALESCE(notes,''),created_at FROM water_sources WHERE farm_id=? ORDER BY name`, farmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WaterSource
	for rows.Next() {
		var w domain.WaterSource
		if err := rows.Scan(&w.ID, &w.FarmID, &w.Name, &w.Kind, &w.Notes, &w.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, nil
}
