package engine

import (
	"context"
	"errors"
	"fmt"

	"cropline/internal/domain"
)

// UpsertCropType registers or updates a crop type by code.
func (e Engine) UpsertCropType(ctx context.Context, code, name, category string, typicalDurationDays *int) (domain.CropType, error) {
	if code == "" {
		return domain.CropType{}, errors.New("crop type code is required")
	}
	if name == "" {
		name = code
	}
	if typicalDurationDays != nil && *typicalDurationDays < 0 {
		return domain.CropType{}, errors.New("invalid typical_duration_days")
	}
	c := domain.CropType{Code: code, Name: name, Category: category, TypicalDurationDays: typicalDurationDays}
	if err := e.Repo.UpsertCropType(ctx, c); err != nil {
		return domain.CropType{}, err
	}
	return e.Repo.GetCropTypeByCode(ctx, code)
}

// EnsureSeason returns the farm's season for a definition code and year,
// creating it on first use.
func (e Engine) EnsureSeason(ctx context.Context, farmID, definitionCode string, year int) (domain.Season, error) {
	if year < 1900 || year > 3000 {
		return domain.Season{}, errors.New("invalid year")
	}
	def, err := e.Repo.GetSeasonDefinitionByCode(ctx, definitionCode)
	if err != nil {
		return domain.Season{}, fmt.Errorf("season definition %s: %w", definitionCode, err)
	}
	if _, err := e.Repo.GetFarm(ctx, farmID); err != nil {
		return domain.Season{}, err
	}
	return e.Repo.GetOrCreateSeason(ctx, farmID, def.ID, year, e.timestamp())
}

var waterSourceKinds = map[string]bool{"well": true, "canal": true, "rain": true, "pond": true, "municipal": true}

// CreateWaterSource registers a water source on a farm.
func (e Engine) CreateWaterSource(ctx context.Context, farmID, name, kind, notes string) (domain.WaterSource, error) {
	if name == "" {
		return domain.WaterSource{}, errors.New("water source name is required")
	}
	if !waterSourceKinds[kind] {
		return domain.WaterSource{}, fmt.Errorf("invalid water source kind %q", kind)
	}
	if _, err := e.Repo.GetFarm(ctx, farmID); err != nil {
		return domain.WaterSource{}, err
	}
	w := domain.WaterSource{FarmID: farmID, Name: name, Kind: kind, Notes: notes, CreatedAt: e.timestamp()}
	if err := e.Repo.InsertWaterSource(ctx, &w); err != nil {
		return domain.WaterSource{}, err
	}
	return w, nil
}
