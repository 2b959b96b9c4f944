package engine_test

import (
	"errors"
	"strings"
	"testing"

	"cropline/internal/domain"
	"cropline/internal/engine"
	"cropline/internal/repo"
)

func (env testEnv) activityType(t *testing.T, code string) int64 {
	t.Helper()
	at, err := env.Engine.Repo.GetActivityTypeByCode(env.Ctx, code)
	if err != nil {
		t.Fatalf("activity type %s: %v", code, err)
	}
	return at.ID
}

func TestRecordActivityRequiresTarget(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.RecordActivity(env.Ctx, engine.ActivityOptions{
		ActivityTypeID: env.activityType(t, "irrigation"),
		Description:    "watered",
		ActorID:        "tester",
	})
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Fatalf("expected missing target rejected, got %v", err)
	}
	_, err = env.Engine.RecordActivity(env.Ctx, engine.ActivityOptions{
		ActivityTypeID: env.activityType(t, "irrigation"),
		LandParcelID:   &env.Parcel.ID,
		ActorID:        "tester",
	})
	if err == nil || !strings.Contains(err.Error(), "description") {
		t.Fatalf("expected missing description rejected, got %v", err)
	}
}

func TestRecordActivityAgainstParcel(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.RecordActivity(env.Ctx, engine.ActivityOptions{
		ActivityTypeID: env.activityType(t, "tillage"),
		LandParcelID:   &env.Parcel.ID,
		Description:    "deep ploughing",
		ActorID:        "tester",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if a.FarmID != "farm-1" {
		t.Fatalf("farm resolved to %s", a.FarmID)
	}
	if a.ActivityDate != "2025-06-15" {
		t.Fatalf("activity date should default to today, got %s", a.ActivityDate)
	}
	if a.ID == 0 {
		t.Fatalf("expected row id assigned")
	}
}

func TestRecordActivityFillsParcelFromCycle(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	a, err := env.Engine.RecordActivity(env.Ctx, engine.ActivityOptions{
		ActivityTypeID: env.activityType(t, "sowing"),
		CropCycleID:    &c.ID,
		Description:    "sowed maize",
		ActivityDate:   "2025-01-15",
		ActorID:        "tester",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if a.LandParcelID == nil || *a.LandParcelID != env.Parcel.ID {
		t.Fatalf("parcel should be filled from cycle, got %v", a.LandParcelID)
	}
	// a parcel that disagrees with the cycle is rejected
	p2, err := env.Engine.CreateParcel(env.Ctx, engine.ParcelOptions{FarmID: "farm-1", Code: "P2", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	var mismatch *domain.PreconditionError
	_, err = env.Engine.RecordActivity(env.Ctx, engine.ActivityOptions{
		ActivityTypeID: env.activityType(t, "sowing"),
		CropCycleID:    &c.ID,
		LandParcelID:   &p2.ID,
		Description:    "sowed maize",
		ActorID:        "tester",
	})
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected parcel mismatch rejected, got %v", err)
	}
}

func TestActivityQuantityAndCost(t *testing.T) {
	env := newTestEnv(t)
	kg, err := env.Engine.Repo.GetUnitByCode(env.Ctx, "kg")
	if err != nil {
		t.Fatal(err)
	}
	usd, err := env.Engine.Repo.GetUnitByCode(env.Ctx, "usd")
	if err != nil {
		t.Fatal(err)
	}
	qty, cost := 50.0, 75.25
	a, err := env.Engine.RecordActivity(env.Ctx, engine.ActivityOptions{
		ActivityTypeID: env.activityType(t, "fertilization"),
		LandParcelID:   &env.Parcel.ID,
		Description:    "NPK application",
		QuantityValue:  &qty,
		QuantityUnitID: &kg.ID,
		CostValue:      &cost,
		CostUnitID:     &usd.ID,
		ActorID:        "tester",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	persisted, err := env.Engine.Repo.GetActivity(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if persisted.QuantityValue == nil || *persisted.QuantityValue != 50.0 {
		t.Fatalf("quantity = %v", persisted.QuantityValue)
	}
	if persisted.CostValue == nil || *persisted.CostValue != 75.25 {
		t.Fatalf("cost = %v", persisted.CostValue)
	}
}

func TestActivityListFilters(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	for _, date := range []string{"2025-01-15", "2025-02-01", "2025-02-20"} {
		if _, err := env.Engine.RecordActivity(env.Ctx, engine.ActivityOptions{
			ActivityTypeID: env.activityType(t, "inspection"),
			CropCycleID:    &c.ID,
			Description:    "walkthrough",
			ActivityDate:   date,
			ActorID:        "tester",
		}); err != nil {
			t.Fatalf("record %s: %v", date, err)
		}
	}
	all, err := env.Engine.Repo.ListActivities(env.Ctx, repo.ActivityFilters{CropCycleID: c.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 activities, got %d", len(all))
	}
	ranged, err := env.Engine.Repo.ListActivities(env.Ctx, repo.ActivityFilters{
		CropCycleID: c.ID,
		DateFrom:    "2025-02-01",
		DateTo:      "2025-02-28",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ranged) != 2 {
		t.Fatalf("expected 2 activities in range, got %d", len(ranged))
	}
}
