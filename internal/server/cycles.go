package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"cropline/internal/domain"
	"cropline/internal/engine"
	"cropline/internal/repo"
)

func registerCycles(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-cycle",
		Method:        http.MethodPost,
		Path:          "/farms/{farm_id}/cycles",
		Summary:       "Plan a crop cycle",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		FarmID string             `path:"farm_id"`
		Body   CreateCycleRequest `json:"body"`
	}) (*struct {
		Body domain.CropCycle `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCycle(ctx, engine.CycleCreateOptions{
			FarmID:           input.FarmID,
			LandParcelID:     input.Body.LandParcelID,
			CropTypeID:       input.Body.CropTypeID,
			SeasonID:         input.Body.SeasonID,
			PlannedStartDate: input.Body.PlannedStartDate,
			PlannedEndDate:   input.Body.PlannedEndDate,
			Notes:            input.Body.Notes,
			ActorID:          actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CropCycle `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-cycles",
		Method:      http.MethodGet,
		Path:        "/cycles",
		Summary:     "List crop cycles",
	}, func(ctx context.Context, input *struct {
		FarmID       string `query:"farm_id"`
		LandParcelID int64  `query:"land_parcel_id"`
		CropTypeID   int64  `query:"crop_type_id"`
		SeasonID     int64  `query:"season_id"`
		Status       string `query:"status" enum:",planned,active,completed,failed,abandoned"`
		Limit        int    `query:"limit"`
		Cursor       string `query:"cursor"`
	}) (*struct {
		Body CycleListResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		cursorCreatedAt, cursorID := parseCursor(input.Cursor)
		cycles, err := e.Repo.ListCycles(ctx, repo.CycleFilters{
			FarmID:          input.FarmID,
			LandParcelID:    input.LandParcelID,
			CropTypeID:      input.CropTypeID,
			SeasonID:        input.SeasonID,
			Status:          input.Status,
			Limit:           limit,
			CursorCreatedAt: cursorCreatedAt,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		var next string
		if len(cycles) == limit {
			last := cycles[len(cycles)-1]
			next = fmt.Sprintf("%s|%d", last.CreatedAt, last.ID)
		}
		return &struct {
			Body CycleListResponse `json:"body"`
		}{Body: CycleListResponse{Cycles: cycles, NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-cycle",
		Method:      http.MethodGet,
		Path:        "/cycles/{cycle_id}",
		Summary:     "Get crop cycle",
	}, func(ctx context.Context, input *struct {
		CycleID int64 `path:"cycle_id"`
	}) (*struct {
		Body domain.CropCycle `json:"body"`
	}, error) {
		c, err := e.Repo.GetCycle(ctx, input.CycleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CropCycle `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-cycle",
		Method:      http.MethodPatch,
		Path:        "/cycles/{cycle_id}",
		Summary:     "Edit crop cycle plan",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		CycleID int64              `path:"cycle_id"`
		Body    UpdateCycleRequest `json:"body"`
	}) (*struct {
		Body domain.CropCycle `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.UpdateCyclePlan(ctx, input.CycleID, engine.CycleUpdateOptions{
			PlannedStartDate: input.Body.PlannedStartDate,
			PlannedEndDate:   input.Body.PlannedEndDate,
			SeasonID:         input.Body.SeasonID,
			Notes:            input.Body.Notes,
			ActorID:          actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CropCycle `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-cycle",
		Method:        http.MethodDelete,
		Path:          "/cycles/{cycle_id}",
		Summary:       "Delete a planned crop cycle",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		CycleID int64 `path:"cycle_id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteCycle(ctx, input.CycleID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activate-cycle",
		Method:      http.MethodPost,
		Path:        "/cycles/{cycle_id}/activate",
		Summary:     "Activate a planned cycle",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		CycleID int64                `path:"cycle_id"`
		Body    ActivateCycleRequest `json:"body"`
	}) (*struct {
		Body domain.CropCycle `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.ActivateCycle(ctx, input.CycleID, input.Body.ActualStartDate, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CropCycle `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-cycle",
		Method:      http.MethodPost,
		Path:        "/cycles/{cycle_id}/complete",
		Summary:     "Complete an active cycle",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		CycleID int64                `path:"cycle_id"`
		Body    CompleteCycleRequest `json:"body"`
	}) (*struct {
		Body domain.CropCycle `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CompleteCycle(ctx, input.CycleID, engine.CycleCompleteOptions{
			ActualEndDate: input.Body.ActualEndDate,
			YieldValue:    input.Body.YieldValue,
			YieldUnitID:   input.Body.YieldUnitID,
			QualityRating: input.Body.QualityRating,
			Notes:         input.Body.Notes,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CropCycle `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "fail-cycle",
		Method:      http.MethodPost,
		Path:        "/cycles/{cycle_id}/fail",
		Summary:     "Mark an active cycle as failed",
	}, func(ctx context.Context, input *struct {
		CycleID int64             `path:"cycle_id"`
		Body    CloseCycleRequest `json:"body"`
	}) (*struct {
		Body domain.CropCycle `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.FailCycle(ctx, input.CycleID, input.Body.Reason, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CropCycle `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "abandon-cycle",
		Method:      http.MethodPost,
		Path:        "/cycles/{cycle_id}/abandon",
		Summary:     "Abandon a planned or active cycle",
	}, func(ctx context.Context, input *struct {
		CycleID int64             `path:"cycle_id"`
		Body    CloseCycleRequest `json:"body"`
	}) (*struct {
		Body domain.CropCycle `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AbandonCycle(ctx, input.CycleID, input.Body.Reason, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CropCycle `json:"body"`
		}{Body: c}, nil
	})
}

func registerStages(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-stages",
		Method:      http.MethodGet,
		Path:        "/cycles/{cycle_id}/stages",
		Summary:     "List cycle stages",
	}, func(ctx context.Context, input *struct {
		CycleID int64 `path:"cycle_id"`
	}) (*struct {
		Body []domain.CropCycleStage `json:"body"`
	}, error) {
		if _, err := e.Repo.GetCycle(ctx, input.CycleID); err != nil {
			return nil, handleError(err)
		}
		stages, err := e.Repo.ListStages(ctx, input.CycleID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.CropCycleStage `json:"body"`
		}{Body: stages}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-stage",
		Method:        http.MethodPost,
		Path:          "/cycles/{cycle_id}/stages",
		Summary:       "Append a stage to a cycle",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		CycleID int64              `path:"cycle_id"`
		Body    CreateStageRequest `json:"body"`
	}) (*struct {
		Body domain.CropCycleStage `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st, err := e.CreateStage(ctx, engine.StageCreateOptions{
			CropCycleID:      input.CycleID,
			StageName:        input.Body.StageName,
			PlannedStartDate: input.Body.PlannedStartDate,
			PlannedEndDate:   input.Body.PlannedEndDate,
			Notes:            input.Body.Notes,
			ActorID:          actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CropCycleStage `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-stage",
		Method:      http.MethodGet,
		Path:        "/stages/{stage_id}",
		Summary:     "Get stage",
	}, func(ctx context.Context, input *struct {
		StageID int64 `path:"stage_id"`
	}) (*struct {
		Body domain.CropCycleStage `json:"body"`
	}, error) {
		st, err := e.Repo.GetStage(ctx, input.StageID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CropCycleStage `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-stage",
		Method:      http.MethodPost,
		Path:        "/stages/{stage_id}/start",
		Summary:     "Start a pending stage",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		StageID int64             `path:"stage_id"`
		Body    StartStageRequest `json:"body"`
	}) (*struct {
		Body domain.CropCycleStage `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st, err := e.StartStage(ctx, input.StageID, input.Body.ActualStartDate, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CropCycleStage `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-stage",
		Method:      http.MethodPost,
		Path:        "/stages/{stage_id}/complete",
		Summary:     "Complete an in-progress stage",
	}, func(ctx context.Context, input *struct {
		StageID int64                `path:"stage_id"`
		Body    CompleteStageRequest `json:"body"`
	}) (*struct {
		Body domain.CropCycleStage `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st, err := e.CompleteStage(ctx, input.StageID, input.Body.ActualEndDate, input.Body.Notes, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CropCycleStage `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "skip-stage",
		Method:      http.MethodPost,
		Path:        "/stages/{stage_id}/skip",
		Summary:     "Skip a pending stage",
	}, func(ctx context.Context, input *struct {
		StageID int64            `path:"stage_id"`
		Body    SkipStageRequest `json:"body"`
	}) (*struct {
		Body domain.CropCycleStage `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st, err := e.SkipStage(ctx, input.StageID, input.Body.Reason, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CropCycleStage `json:"body"`
		}{Body: st}, nil
	})
}
