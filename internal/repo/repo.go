package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cropline/internal/config"
	"cropline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func scanFarm(row *sql.Row) (domain.Farm, error) {
	var f domain.Farm
	err := row.Scan(&f.ID, &f.Name, &f.Location, &f.Status, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	return f, err
}

func (r Repo) InsertFarm(ctx context.Context, f domain.Farm) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO farms(id,name,location,status,created_at) VALUES (?,?,?,?,?)`,
		f.ID, f.Name, nullable(f.Location), f.Status, f.CreatedAt)
	return err
}

func (r Repo) GetFarm(ctx context.Context, id string) (domain.Farm, error) {
	return scanFarm(r.DB.QueryRowContext(ctx, `SELECT id,name,COALESCE(location,'') AS location,status,created_at FROM farms WHERE id=?`, id))
}

// SingleFarm returns the only farm, erroring when there are zero or several.
func (r Repo) SingleFarm(ctx context.Context) (domain.Farm, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(location,'') AS location,status,created_at FROM farms`)
	if err != nil {
		return domain.Farm{}, err
	}
	defer rows.Close()
	var farms []domain.Farm
	for rows.Next() {
		var f domain.Farm
		if err := rows.Scan(&f.ID, &f.Name, &f.Location, &f.Status, &f.CreatedAt); err != nil {
			return domain.Farm{}, err
		}
		farms = append(farms, f)
	}
	if len(farms) == 0 {
		return domain.Farm{}, ErrNotFound
	}
	if len(farms) > 1 {
		return domain.Farm{}, fmt.Errorf("multiple farms exist; specify --farm")
	}
	return farms[0], nil
}

func (r Repo) ListFarms(ctx context.Context) ([]domain.Farm, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(location,'') AS location,status,created_at FROM farms ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Farm
	for rows.Next() {
		var f domain.Farm
		if err := rows.Scan(&f.ID, &f.Name, &f.Location, &f.Status, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, nil
}

func (r Repo) UpdateFarm(ctx context.Context, id, name, location, status string) error {
	var (
		fields []string
		args   []any
	)
	if name != "" {
		fields = append(fields, "name=?")
		args = append(args, name)
	}
	if location != "" {
		fields = append(fields, "location=?")
		args = append(args, location)
	}
	if status != "" {
		fields = append(fields, "status=?")
		args = append(args, status)
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE farms SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpsertFarmConfig(ctx context.Context, farmID string, cfg *config.Config, now string) error {
	return upsertFarmConfig(ctx, r.DB, nil, farmID, cfg, now)
}

func (r Repo) UpsertFarmConfigTx(ctx context.Context, tx *sql.Tx, farmID string, cfg *config.Config, now string) error {
	return upsertFarmConfig(ctx, nil, tx, farmID, cfg, now)
}

func upsertFarmConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, farmID string, cfg *config.Config, now string) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal farm config: %w", err)
	}
	query := `INSERT INTO farm_configs(farm_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
		ON CONFLICT(farm_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, farmID, string(data), now, now)
	} else {
		_, err = db.ExecContext(ctx, query, farmID, string(data), now, now)
	}
	return err
}

func (r Repo) GetFarmConfig(ctx context.Context, farmID string) (*config.Config, error) {
	var raw string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM farm_configs WHERE farm_id=?`, farmID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal farm config: %w", err)
	}
	return &cfg, nil
}

func scanParcel(row *sql.Row) (domain.LandParcel, error) {
	var p domain.LandParcel
	var areaValue sql.NullFloat64
	var areaUnitID sql.NullInt64
	err := row.Scan(&p.ID, &p.FarmID, &p.Code, &p.Name, &areaValue, &areaUnitID, &p.SoilType, &p.Irrigation, &p.Notes, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if areaValue.Valid {
		p.AreaValue = &areaValue.Float64
	}
	if areaUnitID.Valid {
		p.AreaUnitID = &areaUnitID.Int64
	}
	return p, err
}

const parcelCols = `id,farm_id,code,name,area_value,area_unit_id,COALESCE(soil_type,'') AS soil_type,COALESCE(irrigation,'') AS irrigation,COALESCE(notes,'') AS notes,created_at`

func (r Repo) InsertParcelTx(ctx context.Context, tx *sql.Tx, p *domain.LandParcel) error {
	res, err := tx.ExecContext(ctx, `INSERT INTO land_parcels(farm_id,code,name,area_value,area_unit_id,soil_type,irrigation,notes,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		p.FarmID, p.Code, p.Name, nullableFloatPtr(p.AreaValue), nullableInt64Ptr(p.AreaUnitID), nullable(p.SoilType), nullable(p.Irrigation), nullable(p.Notes), p.CreatedAt)
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (r Repo) GetParcel(ctx context.Context, id int64) (domain.LandParcel, error) {
	return scanParcel(r.DB.QueryRowContext(ctx, `SELECT `+parcelCols+` FROM land_parcels WHERE id=?`, id))
}

func (r Repo) GetParcelByCode(ctx context.Context, farmID, code string) (domain.LandParcel, error) {
	return scanParcel(r.DB.QueryRowContext(ctx, `SELECT `+parcelCols+` FROM land_parcels WHERE farm_id=? AND code=?`, farmID, code))
}

func (r Repo) ListParcels(ctx context.Context, farmID string) ([]domain.LandParcel, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+parcelCols+` FROM land_parcels WHERE farm_id=? ORDER BY code`, farmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LandParcel
	for rows.Next() {
		var p domain.LandParcel
		var areaValue sql.NullFloat64
		var areaUnitID sql.NullInt64
		if err := rows.Scan(&p.ID, &p.FarmID, &p.Code, &p.Name, &areaValue, &areaUnitID, &p.SoilType, &p.Irrigation, &p.Notes, &p.CreatedAt); err != nil {
			return nil, err
		}
		if areaValue.Valid {
			p.AreaValue = &areaValue.Float64
		}
		if areaUnitID.Valid {
			p.AreaUnitID = &areaUnitID.Int64
		}
		res = append(res, p)
	}
	return res, nil
}

func (r Repo) UpdateParcelTx(ctx context.Context, tx *sql.Tx, p domain.LandParcel) error {
	res, err := tx.ExecContext(ctx, `UPDATE land_parcels SET name=?, area_value=?, area_unit_id=?, soil_type=?, irrigation=?, notes=? WHERE id=?`,
		p.Name, nullableFloatPtr(p.AreaValue), nullableInt64Ptr(p.AreaUnitID), nullable(p.SoilType), nullable(p.Irrigation), nullable(p.Notes), p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteParcelTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM land_parcels WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
