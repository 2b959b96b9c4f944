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

func registerActivities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-activity",
		Method:        http.MethodPost,
		Path:          "/activities",
		Summary:       "Record an activity",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body RecordActivityRequest `json:"body"`
	}) (*struct {
		Body domain.ActivityLog `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.RecordActivity(ctx, engine.ActivityOptions{
			ActivityTypeID:    input.Body.ActivityTypeID,
			CropCycleID:       input.Body.CropCycleID,
			LandParcelID:      input.Body.LandParcelID,
			WaterSourceID:     input.Body.WaterSourceID,
			ActivityDate:      input.Body.ActivityDate,
			StartTime:         input.Body.StartTime,
			EndTime:           input.Body.EndTime,
			Description:       input.Body.Description,
			QuantityValue:     input.Body.QuantityValue,
			QuantityUnitID:    input.Body.QuantityUnitID,
			CostValue:         input.Body.CostValue,
			CostUnitID:        input.Body.CostUnitID,
			PerformedBy:       input.Body.PerformedBy,
			WeatherConditions: input.Body.WeatherConditions,
			ActorID:           actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ActivityLog `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/activities",
		Summary:     "List activities",
	}, func(ctx context.Context, input *struct {
		FarmID         string `query:"farm_id"`
		CropCycleID    int64  `query:"crop_cycle_id"`
		LandParcelID   int64  `query:"land_parcel_id"`
		ActivityTypeID int64  `query:"activity_type_id"`
		DateFrom       string `query:"date_from"`
		DateTo         string `query:"date_to"`
		Limit          int    `query:"limit"`
		Cursor         string `query:"cursor"`
	}) (*struct {
		Body ActivityListResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 100
		}
		cursorCreatedAt, cursorID := parseCursor(input.Cursor)
		activities, err := e.Repo.ListActivities(ctx, repo.ActivityFilters{
			FarmID:          input.FarmID,
			CropCycleID:     input.CropCycleID,
			LandParcelID:    input.LandParcelID,
			ActivityTypeID:  input.ActivityTypeID,
			DateFrom:        input.DateFrom,
			DateTo:          input.DateTo,
			Limit:           limit,
			CursorCreatedAt: cursorCreatedAt,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		var next string
		if len(activities) == limit {
			last := activities[len(activities)-1]
			next = fmt.Sprintf("%s|%d", last.CreatedAt, last.ID)
		}
		return &struct {
			Body ActivityListResponse `json:"body"`
		}{Body: ActivityListResponse{Activities: activities, NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-activity",
		Method:      http.MethodGet,
		Path:        "/activities/{activity_id}",
		Summary:     "Get activity",
	}, func(ctx context.Context, input *struct {
		ActivityID int64 `path:"activity_id"`
	}) (*struct {
		Body domain.ActivityLog `json:"body"`
	}, error) {
		a, err := e.Repo.GetActivity(ctx, input.ActivityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ActivityLog `json:"body"`
		}{Body: a}, nil
	})

	// Activity logs are append-only; mutation routes exist so clients get a
	// clear conflict instead of a generic 405.
	huma.Register(api, huma.Operation{
		OperationID: "update-activity",
		Method:      http.MethodPatch,
		Path:        "/activities/{activity_id}",
		Summary:     "Update activity (always rejected)",
		Errors:      []int{http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ActivityID int64          `path:"activity_id"`
		Body       map[string]any `json:"body"`
	}) (*struct {
		Body domain.ActivityLog `json:"body"`
	}, error) {
		if _, err := e.Repo.GetActivity(ctx, input.ActivityID); err != nil {
			return nil, handleError(err)
		}
		return nil, handleError(&domain.ImmutableRecordError{Entity: "activity_log", ID: input.ActivityID})
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-activity",
		Method:      http.MethodDelete,
		Path:        "/activities/{activity_id}",
		Summary:     "Delete activity (always rejected)",
		Errors:      []int{http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ActivityID int64 `path:"activity_id"`
	}) (*struct{}, error) {
		if _, err := e.Repo.GetActivity(ctx, input.ActivityID); err != nil {
			return nil, handleError(err)
		}
		return nil, handleError(&domain.ImmutableRecordError{Entity: "activity_log", ID: input.ActivityID})
	})
}
