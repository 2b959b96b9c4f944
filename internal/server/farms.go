package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"cropline/internal/config"
	"cropline/internal/domain"
	"cropline/internal/engine"
)

func registerFarms(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-farm",
		Method:        http.MethodPost,
		Path:          "/farms",
		Summary:       "Create farm",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateFarmRequest `json:"body"`
	}) (*struct {
		Body domain.Farm `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := e.InitFarm(ctx, input.Body.ID, input.Body.Name, input.Body.Location, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Farm `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-farms",
		Method:      http.MethodGet,
		Path:        "/farms",
		Summary:     "List farms",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Farm `json:"body"`
	}, error) {
		farms, err := e.Repo.ListFarms(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Farm `json:"body"`
		}{Body: farms}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-farm",
		Method:      http.MethodGet,
		Path:        "/farms/{farm_id}",
		Summary:     "Get farm",
	}, func(ctx context.Context, input *struct {
		FarmID string `path:"farm_id"`
	}) (*struct {
		Body domain.Farm `json:"body"`
	}, error) {
		f, err := e.Repo.GetFarm(ctx, input.FarmID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Farm `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "farm-status",
		Method:      http.MethodGet,
		Path:        "/farms/{farm_id}/status",
		Summary:     "Farm status summary",
	}, func(ctx context.Context, input *struct {
		FarmID string `path:"farm_id"`
	}) (*struct {
		Body engine.FarmStatus `json:"body"`
	}, error) {
		s, err := e.Status(ctx, input.FarmID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.FarmStatus `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-farm-config",
		Method:      http.MethodGet,
		Path:        "/farms/{farm_id}/config",
		Summary:     "Get farm config",
	}, func(ctx context.Context, input *struct {
		FarmID string `path:"farm_id"`
	}) (*struct {
		Body config.Config `json:"body"`
	}, error) {
		cfg, err := e.Repo.GetFarmConfig(ctx, input.FarmID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body config.Config `json:"body"`
		}{Body: *cfg}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-farm-config",
		Method:      http.MethodPut,
		Path:        "/farms/{farm_id}/config",
		Summary:     "Import farm config from YAML",
	}, func(ctx context.Context, input *struct {
		FarmID string              `path:"farm_id"`
		Body   ImportConfigRequest `json:"body"`
	}) (*struct {
		Body config.Config `json:"body"`
	}, error) {
		if input.Body.ConfigYAML == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "config_yaml is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cfg, err := config.FromYAML([]byte(input.Body.ConfigYAML))
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		cfg.Farm.ID = input.FarmID
		if err := e.ImportConfig(ctx, input.FarmID, cfg, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body config.Config `json:"body"`
		}{Body: *cfg}, nil
	})
}

func registerParcels(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-parcel",
		Method:        http.MethodPost,
		Path:          "/farms/{farm_id}/parcels",
		Summary:       "Create land parcel",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		FarmID string              `path:"farm_id"`
		Body   CreateParcelRequest `json:"body"`
	}) (*struct {
		Body domain.LandParcel `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateParcel(ctx, engine.ParcelOptions{
			FarmID:     input.FarmID,
			Code:       input.Body.Code,
			Name:       input.Body.Name,
			AreaValue:  input.Body.AreaValue,
			AreaUnitID: input.Body.AreaUnitID,
			SoilType:   input.Body.SoilType,
			Irrigation: input.Body.Irrigation,
			Notes:      input.Body.Notes,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LandParcel `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-parcels",
		Method:      http.MethodGet,
		Path:        "/farms/{farm_id}/parcels",
		Summary:     "List land parcels",
	}, func(ctx context.Context, input *struct {
		FarmID string `path:"farm_id"`
	}) (*struct {
		Body []domain.LandParcel `json:"body"`
	}, error) {
		parcels, err := e.Repo.ListParcels(ctx, input.FarmID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.LandParcel `json:"body"`
		}{Body: parcels}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-parcel",
		Method:      http.MethodGet,
		Path:        "/parcels/{parcel_id}",
		Summary:     "Get land parcel",
	}, func(ctx context.Context, input *struct {
		ParcelID int64 `path:"parcel_id"`
	}) (*struct {
		Body domain.LandParcel `json:"body"`
	}, error) {
		p, err := e.Repo.GetParcel(ctx, input.ParcelID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LandParcel `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-parcel",
		Method:      http.MethodPatch,
		Path:        "/parcels/{parcel_id}",
		Summary:     "Update land parcel",
	}, func(ctx context.Context, input *struct {
		ParcelID int64               `path:"parcel_id"`
		Body     UpdateParcelRequest `json:"body"`
	}) (*struct {
		Body domain.LandParcel `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateParcel(ctx, input.ParcelID, engine.ParcelOptions{
			Name:       input.Body.Name,
			AreaValue:  input.Body.AreaValue,
			AreaUnitID: input.Body.AreaUnitID,
			SoilType:   input.Body.SoilType,
			Irrigation: input.Body.Irrigation,
			Notes:      input.Body.Notes,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.LandParcel `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-parcel",
		Method:        http.MethodDelete,
		Path:          "/parcels/{parcel_id}",
		Summary:       "Delete land parcel",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		ParcelID int64 `path:"parcel_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteParcel(ctx, input.ParcelID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func parseCursor(cursor string) (createdAt string, id int64) {
	if cursor == "" {
		return "", 0
	}
	// cursor format: "<created_at>|<id>"
	for i := len(cursor) - 1; i >= 0; i-- {
		if cursor[i] == '|' {
			n, err := strconv.ParseInt(cursor[i+1:], 10, 64)
			if err != nil {
				return "", 0
			}
			return cursor[:i], n
		}
	}
	return "", 0
}
