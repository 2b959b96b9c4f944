package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"cropline/internal/domain"
	"cropline/internal/engine"
)

func registerRefData(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-units",
		Method:      http.MethodGet,
		Path:        "/units",
		Summary:     "List units of measure",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.UnitOfMeasure `json:"body"`
	}, error) {
		units, err := e.Repo.ListUnits(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.UnitOfMeasure `json:"body"`
		}{Body: units}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-activity-types",
		Method:      http.MethodGet,
		Path:        "/activity-types",
		Summary:     "List activity types",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ActivityType `json:"body"`
	}, error) {
		types, err := e.Repo.ListActivityTypes(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ActivityType `json:"body"`
		}{Body: types}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "upsert-crop-type",
		Method:        http.MethodPut,
		Path:          "/crop-types",
		Summary:       "Register or update a crop type",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body UpsertCropTypeRequest `json:"body"`
	}) (*struct {
		Body domain.CropType `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		c, err := e.UpsertCropType(ctx, input.Body.Code, input.Body.Name, input.Body.Category, input.Body.TypicalDurationDays)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CropType `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-crop-types",
		Method:      http.MethodGet,
		Path:        "/crop-types",
		Summary:     "List crop types",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.CropType `json:"body"`
	}, error) {
		types, err := e.Repo.ListCropTypes(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.CropType `json:"body"`
		}{Body: types}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-season-definitions",
		Method:      http.MethodGet,
		Path:        "/season-definitions",
		Summary:     "List season definitions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.SeasonDefinition `json:"body"`
	}, error) {
		defs, err := e.Repo.ListSeasonDefinitions(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.SeasonDefinition `json:"body"`
		}{Body: defs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "ensure-season",
		Method:        http.MethodPost,
		Path:          "/farms/{farm_id}/seasons",
		Summary:       "Ensure a season exists for a year",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		FarmID string              `path:"farm_id"`
		Body   EnsureSeasonRequest `json:"body"`
	}) (*struct {
		Body domain.Season `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		s, err := e.EnsureSeason(ctx, input.FarmID, input.Body.DefinitionCode, input.Body.Year)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Season `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-seasons",
		Method:      http.MethodGet,
		Path:        "/farms/{farm_id}/seasons",
		Summary:     "List seasons",
	}, func(ctx context.Context, input *struct {
		FarmID string `path:"farm_id"`
	}) (*struct {
		Body []domain.Season `json:"body"`
	}, error) {
		seasons, err := e.Repo.ListSeasons(ctx, input.FarmID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Season `json:"body"`
		}{Body: seasons}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-water-source",
		Method:        http.MethodPost,
		Path:          "/farms/{farm_id}/water-sources",
		Summary:       "Create water source",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		FarmID string                   `path:"farm_id"`
		Body   CreateWaterSourceRequest `json:"body"`
	}) (*struct {
		Body domain.WaterSource `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		w, err := e.CreateWaterSource(ctx, input.FarmID, input.Body.Name, input.Body.Kind, input.Body.Notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WaterSource `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-water-sources",
		Method:      http.MethodGet,
		Path:        "/farms/{farm_id}/water-sources",
		Summary:     "List water sources",
	}, func(ctx context.Context, input *struct {
		FarmID string `path:"farm_id"`
	}) (*struct {
		Body []domain.WaterSource `json:"body"`
	}, error) {
		sources, err := e.Repo.ListWaterSources(ctx, input.FarmID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.WaterSource `json:"body"`
		}{Body: sources}, nil
	})
}
