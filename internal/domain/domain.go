package domain

type Farm struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Location  string `json:"location,omitempty"`
	Status    string `json:"status" enum:"active,archived"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type LandParcel struct {
	ID         int64    `json:"id"`
	FarmID     string   `json:"farm_id"`
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	AreaValue  *float64 `json:"area_value,omitempty"`
	AreaUnitID *int64   `json:"area_unit_id,omitempty"`
	SoilType   string   `json:"soil_type,omitempty"`
	Irrigation string   `json:"irrigation,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	CreatedAt  string   `json:"created_at" format:"date-time"`
}

type CropType struct {
	ID                  int64  `json:"id"`
	Code                string `json:"code"`
	Name                string `json:"name"`
	Category            string `json:"category,omitempty"`
	TypicalDurationDays *int   `json:"typical_duration_days,omitempty"`
}

type SeasonDefinition struct {
	ID         int64  `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	StartMonth int    `json:"start_month"`
	EndMonth   int    `json:"end_month"`
}

type Season struct {
	ID                 int64  `json:"id"`
	FarmID             string `json:"farm_id"`
	SeasonDefinitionID int64  `json:"season_definition_id"`
	Year               int    `json:"year"`
	CreatedAt          string `json:"created_at" format:"date-time"`
}

type WaterSource struct {
	ID        int64  `json:"id"`
	FarmID    string `json:"farm_id"`
	Name      string `json:"name"`
	Kind      string `json:"kind" enum:"well,canal,rain,pond,municipal"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type UnitOfMeasure struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
	Kind string `json:"kind" enum:"weight,volume,area,count,currency"`
}

type ActivityType struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// CropCycle is one planting-to-harvest (or failure/abandonment) episode of a
// crop type on a land parcel. Its status moves only forward through the
// transitions declared in status.go.
type CropCycle struct {
	ID               int64       `json:"id"`
	CycleCode        string      `json:"cycle_code"`
	FarmID           string      `json:"farm_id"`
	LandParcelID     int64       `json:"land_parcel_id"`
	CropTypeID       int64       `json:"crop_type_id"`
	SeasonID         *int64      `json:"season_id,omitempty"`
	Status           CycleStatus `json:"status" enum:"planned,active,completed,failed,abandoned"`
	PlannedStartDate string      `json:"planned_start_date" format:"date"`
	PlannedEndDate   string      `json:"planned_end_date" format:"date"`
	ActualStartDate  *string     `json:"actual_start_date,omitempty" format:"date"`
	ActualEndDate    *string     `json:"actual_end_date,omitempty" format:"date"`
	YieldValue       *float64    `json:"yield_value,omitempty"`
	YieldUnitID      *int64      `json:"yield_unit_id,omitempty"`
	QualityRating    *string     `json:"quality_rating,omitempty" enum:"excellent,good,fair,poor"`
	Notes            string      `json:"notes,omitempty"`
	CreatedAt        string      `json:"created_at" format:"date-time"`
	UpdatedAt        string      `json:"updated_at" format:"date-time"`
}

// Editable reports whether the cycle's plan may still be changed.
func (c CropCycle) Editable() bool {
	return c.Status == CyclePlanned || c.Status == CycleActive
}

// Deletable reports whether the cycle may be hard-deleted. Once a cycle has
// left planned it is part of the historical record and stays.
func (c CropCycle) Deletable() bool {
	return c.Status == CyclePlanned
}

type CropCycleStage struct {
	ID               int64       `json:"id"`
	CropCycleID      int64       `json:"crop_cycle_id"`
	StageName        string      `json:"stage_name"`
	SequenceOrder    int         `json:"sequence_order"`
	Status           StageStatus `json:"status" enum:"pending,in_progress,completed,skipped"`
	PlannedStartDate *string     `json:"planned_start_date,omitempty" format:"date"`
	PlannedEndDate   *string     `json:"planned_end_date,omitempty" format:"date"`
	ActualStartDate  *string     `json:"actual_start_date,omitempty" format:"date"`
	ActualEndDate    *string     `json:"actual_end_date,omitempty" format:"date"`
	Notes            string      `json:"notes,omitempty"`
	CreatedAt        string      `json:"created_at" format:"date-time"`
	UpdatedAt        string      `json:"updated_at" format:"date-time"`
}

/// ActivityLog records a real-world farming action. Rows are append-only:
// neither the repo nor the engine exposes a way to modify one after insert.
type ActivityLog struct {
	ID                int64    `json:"id"`
	FarmID            string   `json:"farm_id"`
	ActivityTypeID    int64    `json:"activity_type_id"`
	CropCycleID       *int64   `json:"crop_cycle_id,omitempty"`
	LandParcelID      *int64   `json:"land_parcel_id,omitempty"`
	WaterSourceID     *int64   `json:"water_source_id,omitempty"`
	ActivityDate      string   `json:"activity_date" format:"date"`
	StartTime         *string  `json:"start_time,omitempty"`
	EndTime           *string  `json:"end_time,omitempty"`
	Description       string   `json:"description"`
	QuantityValue     *float64 `json:"quantity_value,omitempty"`
	QuantityUnitID    *int64   `json:"quantity_unit_id,omitempty"`
	CostValue         *float64 `json:"cost_value,omitempty"`
	CostUnitID        *int64   `json:"cost_unit_id,omitempty"`
	PerformedBy       string   `json:"performed_by,omitempty"`
	WeatherConditions string   `json:"weather_conditions,omitempty"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	FarmID     string `json:"farm_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// QualityRatings are the accepted values for CropCycle.QualityRating.
var QualityRatings = []string{"excellent", "good", "fair", "poor"}

func ValidQualityRating(v string) bool {
	for _, r := range QualityRatings {
		if r == v {
			return true
		}
	}
	return false
}
