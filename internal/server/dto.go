package server

import (
	"cropline/internal/domain"
)

type CreateFarmRequest struct {
	ID       string `json:"id" example:"greenacres"`
	Name     string `json:"name,omitempty"`
	Location string `json:"location,omitempty"`
}

type ImportConfigRequest struct {
	ConfigYAML string `json:"config_yaml"`
}

type CreateParcelRequest struct {
	Code       string   `json:"code" example:"P1"`
	Name       string   `json:"name,omitempty"`
	AreaValue  *float64 `json:"area_value,omitempty"`
	AreaUnitID *int64   `json:"area_unit_id,omitempty"`
	SoilType   string   `json:"soil_type,omitempty"`
	Irrigation string   `json:"irrigation,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

type UpdateParcelRequest struct {
	Name       string   `json:"name,omitempty"`
	AreaValue  *float64 `json:"area_value,omitempty"`
	AreaUnitID *int64   `json:"area_unit_id,omitempty"`
	SoilType   string   `json:"soil_type,omitempty"`
	Irrigation string   `json:"irrigation,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

type CreateCycleRequest struct {
	LandParcelID     int64  `json:"land_parcel_id"`
	CropTypeID       int64  `json:"crop_type_id"`
	SeasonID         *int64 `json:"season_id,omitempty"`
	PlannedStartDate string `json:"planned_start_date" format:"date" example:"2025-03-01"`
	PlannedEndDate   string `json:"planned_end_date" format:"date" example:"2025-07-15"`
	Notes            string `json:"notes,omitempty"`
}

type UpdateCycleRequest struct {
	PlannedStartDate *string `json:"planned_start_date,omitempty" format:"date"`
	PlannedEndDate   *string `json:"planned_end_date,omitempty" format:"date"`
	SeasonID         *int64  `json:"season_id,omitempty"`
	Notes            *string `json:"notes,omitempty"`
}

type ActivateCycleRequest struct {
	ActualStartDate string `json:"actual_start_date,omitempty" format:"date"`
}

type CompleteCycleRequest struct {
	ActualEndDate string   `json:"actual_end_date,omitempty" format:"date"`
	YieldValue    *float64 `json:"yield_value,omitempty"`
	YieldUnitID   *int64   `json:"yield_unit_id,omitempty"`
	QualityRating string   `json:"quality_rating,omitempty" enum:"excellent,good,fair,poor"`
	Notes         string   `json:"notes,omitempty"`
}

type CloseCycleRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CycleListResponse struct {
	Cycles     []domain.CropCycle `json:"cycles"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

type CreateStageRequest struct {
	StageName        string  `json:"stage_name"`
	PlannedStartDate *string `json:"planned_start_date,omitempty" format:"date"`
	PlannedEndDate   *string `json:"planned_end_date,omitempty" format:"date"`
	Notes            string  `json:"notes,omitempty"`
}

type StartStageRequest struct {
	ActualStartDate string `json:"actual_start_date,omitempty" format:"date"`
}

type CompleteStageRequest struct {
	ActualEndDate string `json:"actual_end_date,omitempty" format:"date"`
	Notes         string `json:"notes,omitempty"`
}

type SkipStageRequest struct {
	Reason string `json:"reason,omitempty"`
}

type RecordActivityRequest struct {
	ActivityTypeID    int64    `json:"activity_type_id"`
	CropCycleID       *int64   `json:"crop_cycle_id,omitempty"`
	LandParcelID      *int64   `json:"land_parcel_id,omitempty"`
	WaterSourceID     *int64   `json:"water_source_id,omitempty"`
	ActivityDate      string   `json:"activity_date,omitempty" format:"date"`
	StartTime         *string  `json:"start_time,omitempty" example:"07:30"`
	EndTime           *string  `json:"end_time,omitempty" example:"11:00"`
	Description       string   `json:"description"`
	QuantityValue     *float64 `json:"quantity_value,omitempty"`
	QuantityUnitID    *int64   `json:"quantity_unit_id,omitempty"`
	CostValue         *float64 `json:"cost_value,omitempty"`
	CostUnitID        *int64   `json:"cost_unit_id,omitempty"`
	PerformedBy       string   `json:"performed_by,omitempty"`
	WeatherConditions string   `json:"weather_conditions,omitempty"`
}

type ActivityListResponse struct {
	Activities []domain.ActivityLog `json:"activities"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

type UpsertCropTypeRequest struct {
	Code                string `json:"code" example:"maize"`
	Name                string `json:"name,omitempty"`
	Category            string `json:"category,omitempty"`
	TypicalDurationDays *int   `json:"typical_duration_days,omitempty"`
}

type EnsureSeasonRequest struct {
	DefinitionCode string `json:"definition_code" example:"summer"`
	Year           int    `json:"year" example:"2025"`
}

type CreateWaterSourceRequest struct {
	Name  string `json:"name"`
	Kind  string `json:"kind" enum:"well,canal,rain,pond,municipal"`
	Notes string `json:"notes,omitempty"`
}

type EventListResponse struct {
	Events     []domain.Event `json:"events"`
	NextCursor int64          `json:"next_cursor,omitempty"`
}

type CreateKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

type CreateKeyResponse struct {
	ID      string `json:"id"`
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
	Key     string `json:"key"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}
