package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cropline/internal/config"
	"cropline/internal/domain"
	"cropline/internal/events"
	"cropline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) today() string {
	return e.now().UTC().Format("2006-01-02")
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// InitFarm creates the farm, stores its config and seeds the reference
// catalog, all in one transaction.
func (e Engine) InitFarm(ctx context.Context, farmID, name, location, actorID string) (domain.Farm, error) {
	if farmID == "" {
		return domain.Farm{}, errors.New("farm id is required")
	}
	cfg := e.Config
	if cfg == nil {
		cfg = config.Default(farmID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Farm{}, err
	}
	defer tx.Rollback()

	f := domain.Farm{
		ID:        farmID,
		Name:      name,
		Location:  location,
		Status:    "active",
		CreatedAt: e.timestamp(),
	}
	if f.Name == "" {
		f.Name = cfg.Farm.Name
	}
	if f.Location == "" {
		f.Location = cfg.Farm.Location
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO farms(id,name,location,status,created_at) VALUES (?,?,?,?,?)`,
		f.ID, f.Name, nullableStr(f.Location), f.Status, f.CreatedAt); err != nil {
		return domain.Farm{}, fmt.Errorf("insert farm: %w", err)
	}
	if err := e.Repo.UpsertFarmConfigTx(ctx, tx, f.ID, cfg, f.CreatedAt); err != nil {
		return domain.Farm{}, fmt.Errorf("insert farm config: %w", err)
	}
	if err := e.seedCatalogTx(ctx, tx, cfg); err != nil {
		return domain.Farm{}, err
	}
	if err := e.Events.Append(ctx, tx, "farm.init", f.ID, "farm", f.ID, actorID, events.EventPayload{"name": f.Name}); err != nil {
		return domain.Farm{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Farm{}, err
	}
	return f, nil
}

// ImportConfig replaces the stored farm config and re-seeds the catalog.
func (e Engine) ImportConfig(ctx context.Context, farmID string, cfg *config.Config, actorID string) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := e.Repo.GetFarm(ctx, farmID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.UpsertFarmConfigTx(ctx, tx, farmID, cfg, e.timestamp()); err != nil {
		return err
	}
	if err := e.seedCatalogTx(ctx, tx, cfg); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "farm.config.imported", farmID, "farm", farmID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) seedCatalogTx(ctx context.Context, tx *sql.Tx, cfg *config.Config) error {
	for _, u := range cfg.Catalog.Units {
		if err := e.Repo.UpsertUnitTx(ctx, tx, domain.UnitOfMeasure{Code: u.Code, Name: u.Name, Kind: u.Kind}); err != nil {
			return fmt.Errorf("seed unit %s: %w", u.Code, err)
		}
	}
	for _, a := range cfg.Catalog.ActivityTypes {
		if err := e.Repo.UpsertActivityTypeTx(ctx, tx, domain.ActivityType{Code: a.Code, Name: a.Name, Category: a.Category}); err != nil {
			return fmt.Errorf("seed activity type %s: %w", a.Code, err)
		}
	}
	for _, s := range cfg.Catalog.SeasonDefinitions {
		if err := e.Repo.UpsertSeasonDefinitionTx(ctx, tx, domain.SeasonDefinition{Code: s.Code, Name: s.Name, StartMonth: s.StartMonth, EndMonth: s.EndMonth}); err != nil {
			return fmt.Errorf("seed season definition %s: %w", s.Code, err)
		}
	}
	return nil
}

// ParcelOptions are parameters for creating or updating a land parcel.
type ParcelOptions struct {
	FarmID     string
	Code       string
	Name       string
	AreaValue  *float64
	AreaUnitID *int64
	SoilType   string
	Irrigation string
	Notes      string
	ActorID    string
}

func (e Engine) CreateParcel(ctx context.Context, opts ParcelOptions) (domain.LandParcel, error) {
	if opts.Code == "" {
		return domain.LandParcel{}, errors.New("parcel code is required")
	}
	if opts.Name == "" {
		opts.Name = opts.Code
	}
	if _, err := e.Repo.GetFarm(ctx, opts.FarmID); err != nil {
		return domain.LandParcel{}, err
	}
	if opts.AreaUnitID != nil {
		if _, err := e.Repo.GetUnit(ctx, *opts.AreaUnitID); err != nil {
			return domain.LandParcel{}, fmt.Errorf("area unit %d: %w", *opts.AreaUnitID, err)
		}
	}
	p := domain.LandParcel{
		FarmID:     opts.FarmID,
		Code:       opts.Code,
		Name:       opts.Name,
		AreaValue:  opts.AreaValue,
		AreaUnitID: opts.AreaUnitID,
		SoilType:   opts.SoilType,
		Irrigation: opts.Irrigation,
		Notes:      opts.Notes,
		CreatedAt:  e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LandParcel{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertParcelTx(ctx, tx, &p); err != nil {
		return domain.LandParcel{}, err
	}
	if err := e.Events.Append(ctx, tx, "parcel.created", p.FarmID, "land_parcel", fmt.Sprint(p.ID), opts.ActorID, events.EventPayload{"code": p.Code}); err != nil {
		return domain.LandParcel{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LandParcel{}, err
	}
	return p, nil
}

func (e Engine) UpdateParcel(ctx context.Context, id int64, opts ParcelOptions) (domain.LandParcel, error) {
	p, err := e.Repo.GetParcel(ctx, id)
	if err != nil {
		return domain.LandParcel{}, err
	}
	if opts.Name != "" {
		p.Name = opts.Name
	}
	if opts.AreaValue != nil {
		p.AreaValue = opts.AreaValue
	}
	if opts.AreaUnitID != nil {
		if _, err := e.Repo.GetUnit(ctx, *opts.AreaUnitID); err != nil {
			return domain.LandParcel{}, fmt.Errorf("area unit %d: %w", *opts.AreaUnitID, err)
		}
		p.AreaUnitID = opts.AreaUnitID
	}
	if opts.SoilType != "" {
		p.SoilType = opts.SoilType
	}
	if opts.Irrigation != "" {
		p.Irrigation = opts.Irrigation
	}
	if opts.Notes != "" {
		p.Notes = opts.Notes
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LandParcel{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateParcelTx(ctx, tx, p); err != nil {
		return domain.LandParcel{}, err
	}
	if err := e.Events.Append(ctx, tx, "parcel.updated", p.FarmID, "land_parcel", fmt.Sprint(p.ID), opts.ActorID, nil); err != nil {
		return domain.LandParcel{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LandParcel{}, err
	}
	return p, nil
}

func (e Engine) DeleteParcel(ctx context.Context, id int64, actorID string) error {
	p, err := e.Repo.GetParcel(ctx, id)
	if err != nil {
		return err
	}
	cycles, err := e.Repo.ListCycles(ctx, repo.CycleFilters{LandParcelID: id, Limit: 1})
	if err != nil {
		return err
	}
	if len(cycles) > 0 {
		return &domain.PreconditionError{Msg: fmt.Sprintf("parcel %s has crop cycles and cannot be deleted", p.Code)}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteParcelTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "parcel.deleted", p.FarmID, "land_parcel", fmt.Sprint(id), actorID, events.EventPayload{"code": p.Code}); err != nil {
		return err
	}
	return tx.Commit()
}

// FarmStatus summarizes a farm for dashboards and the CLI status command.
type FarmStatus struct {
	Farm          domain.Farm    `json:"farm"`
	CyclesByState map[string]int `json:"cycles_by_status"`
	ParcelCount   int            `json:"parcel_count"`
	LatestEventID int64          `json:"latest_event_id"`
}

func (e Engine) Status(ctx context.Context, farmID string) (FarmStatus, error) {
	f, err := e.Repo.GetFarm(ctx, farmID)
	if err != nil {
		return FarmStatus{}, err
	}
	counts, err := e.Repo.CountCyclesByStatus(ctx, farmID)
	if err != nil {
		return FarmStatus{}, err
	}
	parcels, err := e.Repo.ListParcels(ctx, farmID)
	if err != nil {
		return FarmStatus{}, err
	}
	latest, err := e.Repo.LatestEventID(ctx, farmID)
	if err != nil {
		return FarmStatus{}, err
	}
	return FarmStatus{Farm: f, CyclesByState: counts, ParcelCount: len(parcels), LatestEventID: latest}, nil
}

func nullableStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
