package engine_test

import (
	"errors"
	"testing"

	"cropline/internal/domain"
	"cropline/internal/engine"
	"cropline/internal/repo"
)

func TestPlanCycleGeneratesSequentialCodes(t *testing.T) {
	env := newTestEnv(t)
	c1 := env.planCycle(t, "2025-01-10", "2025-03-01")
	if c1.CycleCode != "P1-2025-001" {
		t.Fatalf("cycle code = %s", c1.CycleCode)
	}
	if c1.Status != domain.CyclePlanned {
		t.Fatalf("status = %s", c1.Status)
	}
	c2 := env.planCycle(t, "2025-03-02", "2025-04-01")
	if c2.CycleCode != "P1-2025-002" {
		t.Fatalf("second cycle code = %s", c2.CycleCode)
	}
	// a different year restarts the sequence
	c3 := env.planCycle(t, "2026-01-10", "2026-03-01")
	if c3.CycleCode != "P1-2026-001" {
		t.Fatalf("next-year cycle code = %s", c3.CycleCode)
	}
}

func TestPlanCycleRejectsBadDates(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct{ start, end string }{
		{"", "2025-03-01"},
		{"2025-01-10", ""},
		{"2025-13-40", "2025-03-01"},
		{"2025-03-01", "2025-01-10"}, // start after end
		{"2025-05-05", "2025-05-05"}, // end must be strictly after start
	}
	for _, tc := range cases {
		_, err := env.Engine.CreateCycle(env.Ctx, engine.CycleCreateOptions{
			FarmID:           "farm-1",
			LandParcelID:     env.Parcel.ID,
			CropTypeID:       env.Crop.ID,
			PlannedStartDate: tc.start,
			PlannedEndDate:   tc.end,
			ActorID:          "tester",
		})
		if err == nil {
			t.Fatalf("expected rejection for %q..%q", tc.start, tc.end)
		}
	}
	// shrinking an existing plan down to a single day is rejected the same way
	c := env.planCycle(t, "2025-05-05", "2025-06-05")
	sameDay := "2025-05-05"
	if _, err := env.Engine.UpdateCyclePlan(env.Ctx, c.ID, engine.CycleUpdateOptions{
		PlannedEndDate: &sameDay, ActorID: "tester",
	}); err == nil {
		t.Fatalf("expected zero-length plan update rejected")
	}
}

func TestOverlapDetection(t *testing.T) {
	env := newTestEnv(t)
	env.planCycle(t, "2025-01-10", "2025-03-01")

	var overlapErr *domain.OverlapError
	// contained interval conflicts
	_, err := env.Engine.CreateCycle(env.Ctx, engine.CycleCreateOptions{
		FarmID: "farm-1", LandParcelID: env.Parcel.ID, CropTypeID: env.Crop.ID,
		PlannedStartDate: "2025-02-01", PlannedEndDate: "2025-02-15", ActorID: "tester",
	})
	if !errors.As(err, &overlapErr) {
		t.Fatalf("expected OverlapError, got %v", err)
	}
	if overlapErr.ConflictCode != "P1-2025-001" {
		t.Fatalf("conflict code = %s", overlapErr.ConflictCode)
	}
	// touching endpoints conflict: intervals are closed
	_, err = env.Engine.CreateCycle(env.Ctx, engine.CycleCreateOptions{
		FarmID: "farm-1", LandParcelID: env.Parcel.ID, CropTypeID: env.Crop.ID,
		PlannedStartDate: "2025-03-01", PlannedEndDate: "2025-04-01", ActorID: "tester",
	})
	if !errors.As(err, &overlapErr) {
		t.Fatalf("expected touching endpoints to conflict, got %v", err)
	}
	// the next day is fine
	env.planCycle(t, "2025-03-02", "2025-04-01")
}

func TestOverlapAllowedOnOtherParcel(t *testing.T) {
	env := newTestEnv(t)
	env.planCycle(t, "2025-01-10", "2025-03-01")
	p2, err := env.Engine.CreateParcel(env.Ctx, engine.ParcelOptions{FarmID: "farm-1", Code: "P2", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	c, err := env.Engine.CreateCycle(env.Ctx, engine.CycleCreateOptions{
		FarmID: "farm-1", LandParcelID: p2.ID, CropTypeID: env.Crop.ID,
		PlannedStartDate: "2025-01-10", PlannedEndDate: "2025-03-01", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("same window on other parcel: %v", err)
	}
	if c.CycleCode != "P2-2025-001" {
		t.Fatalf("cycle code = %s", c.CycleCode)
	}
}

func TestOverlapIgnoresClosedCycles(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	if _, err := env.Engine.AbandonCycle(env.Ctx, c.ID, "rain", "tester"); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	// abandoned cycle frees its window but keeps its code
	c2 := env.planCycle(t, "2025-01-10", "2025-03-01")
	if c2.CycleCode != "P1-2025-002" {
		t.Fatalf("expected sequence to keep counting past closed cycles, got %s", c2.CycleCode)
	}
}

func TestActivateCycle(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	got, err := env.Engine.ActivateCycle(env.Ctx, c.ID, "", "tester")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if got.Status != domain.CycleActive {
		t.Fatalf("status = %s", got.Status)
	}
	if got.ActualStartDate == nil || *got.ActualStartDate != "2025-06-15" {
		t.Fatalf("actual start should default to today, got %v", got.ActualStartDate)
	}
	// activating twice is an invalid transition
	var ite *domain.InvalidTransitionError
	_, err = env.Engine.ActivateCycle(env.Ctx, c.ID, "", "tester")
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestPlanCycleBlockedByActiveCycle(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	if _, err := env.Engine.ActivateCycle(env.Ctx, c.ID, "", "tester"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	// even a window far from the active cycle's plan is rejected: the active
	// cycle has no fixed end until it closes
	var activeErr *domain.ActiveCycleExistsError
	_, err := env.Engine.CreateCycle(env.Ctx, engine.CycleCreateOptions{
		FarmID: "farm-1", LandParcelID: env.Parcel.ID, CropTypeID: env.Crop.ID,
		PlannedStartDate: "2025-05-01", PlannedEndDate: "2025-06-01", ActorID: "tester",
	})
	if !errors.As(err, &activeErr) {
		t.Fatalf("expected ActiveCycleExistsError, got %v", err)
	}
	if activeErr.CycleCode != c.CycleCode {
		t.Fatalf("conflicting cycle = %s", activeErr.CycleCode)
	}
	// once the cycle completes the parcel accepts plans again
	if _, err := env.Engine.CompleteCycle(env.Ctx, c.ID, engine.CycleCompleteOptions{ActorID: "tester"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	env.planCycle(t, "2025-05-01", "2025-06-01")
}

func TestSingleActiveCyclePerParcel(t *testing.T) {
	env := newTestEnv(t)
	c1 := env.planCycle(t, "2025-01-10", "2025-03-01")
	c2 := env.planCycle(t, "2025-03-02", "2025-04-01")
	if _, err := env.Engine.ActivateCycle(env.Ctx, c1.ID, "", "tester"); err != nil {
		t.Fatalf("activate first: %v", err)
	}
	var activeErr *domain.ActiveCycleExistsError
	_, err := env.Engine.ActivateCycle(env.Ctx, c2.ID, "", "tester")
	if !errors.As(err, &activeErr) {
		t.Fatalf("expected ActiveCycleExistsError, got %v", err)
	}
	if activeErr.CycleCode != c1.CycleCode {
		t.Fatalf("conflicting cycle = %s", activeErr.CycleCode)
	}
	// the second cycle is untouched
	persisted, err := env.Engine.Repo.GetCycle(env.Ctx, c2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if persisted.Status != domain.CyclePlanned || persisted.ActualStartDate != nil {
		t.Fatalf("rejected activation must not mutate: %+v", persisted)
	}
	// completing the first frees the parcel
	if _, err := env.Engine.CompleteCycle(env.Ctx, c1.ID, engine.CycleCompleteOptions{ActorID: "tester"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := env.Engine.ActivateCycle(env.Ctx, c2.ID, "2025-03-02", "tester"); err != nil {
		t.Fatalf("activate second after completion: %v", err)
	}
}

func TestCompleteCycleStoresOutcome(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	if _, err := env.Engine.ActivateCycle(env.Ctx, c.ID, "2025-01-12", "tester"); err != nil {
		t.Fatal(err)
	}
	kg, err := env.Engine.Repo.GetUnitByCode(env.Ctx, "kg")
	if err != nil {
		t.Fatal(err)
	}
	yield := 1234.5
	got, err := env.Engine.CompleteCycle(env.Ctx, c.ID, engine.CycleCompleteOptions{
		ActualEndDate: "2025-03-05",
		YieldValue:    &yield,
		YieldUnitID:   &kg.ID,
		QualityRating: "good",
		Notes:         "strong season",
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	persisted, err := env.Engine.Repo.GetCycle(env.Ctx, got.ID)
	if err != nil {
		t.Fatal(err)
	}
	if persisted.Status != domain.CycleCompleted {
		t.Fatalf("status = %s", persisted.Status)
	}
	if persisted.ActualEndDate == nil || *persisted.ActualEndDate != "2025-03-05" {
		t.Fatalf("actual end = %v", persisted.ActualEndDate)
	}
	if persisted.YieldValue == nil || *persisted.YieldValue != 1234.5 {
		t.Fatalf("yield = %v", persisted.YieldValue)
	}
	if persisted.QualityRating == nil || *persisted.QualityRating != "good" {
		t.Fatalf("quality = %v", persisted.QualityRating)
	}
}

func TestCompleteCycleRejectsBadQuality(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	if _, err := env.Engine.ActivateCycle(env.Ctx, c.ID, "", "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteCycle(env.Ctx, c.ID, engine.CycleCompleteOptions{
		QualityRating: "stellar", ActorID: "tester",
	}); err == nil {
		t.Fatalf("expected invalid quality rating rejected")
	}
}

func TestCompletePlannedCycleRejected(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	var ite *domain.InvalidTransitionError
	_, err := env.Engine.CompleteCycle(env.Ctx, c.ID, engine.CycleCompleteOptions{ActorID: "tester"})
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	persisted, err := env.Engine.Repo.GetCycle(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if persisted.Status != domain.CyclePlanned || persisted.ActualEndDate != nil {
		t.Fatalf("rejected completion must not mutate: %+v", persisted)
	}
}

func TestFailCycleStampsActualEnd(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	if _, err := env.Engine.ActivateCycle(env.Ctx, c.ID, "2025-01-12", "tester"); err != nil {
		t.Fatal(err)
	}
	got, err := env.Engine.FailCycle(env.Ctx, c.ID, "drought", "tester")
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if got.Status != domain.CycleFailed {
		t.Fatalf("status = %s", got.Status)
	}
	if got.ActualEndDate == nil || *got.ActualEndDate != "2025-06-15" {
		t.Fatalf("failed cycle that had started should stamp today, got %v", got.ActualEndDate)
	}
	if got.Notes != "drought" {
		t.Fatalf("notes = %q", got.Notes)
	}
	// failing from planned is invalid
	c2 := env.planCycle(t, "2025-03-02", "2025-04-01")
	if _, err := env.Engine.FailCycle(env.Ctx, c2.ID, "", "tester"); err == nil {
		t.Fatalf("expected planned -> failed rejected")
	}
}

func TestAbandonPlannedCycleStampsEndDate(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	got, err := env.Engine.AbandonCycle(env.Ctx, c.ID, "changed plans", "tester")
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if got.Status != domain.CycleAbandoned {
		t.Fatalf("status = %s", got.Status)
	}
	if got.ActualStartDate != nil {
		t.Fatalf("never-started cycle must not carry a start date: %+v", got)
	}
	// closing stamps the end date even when the cycle never started
	if got.ActualEndDate == nil || *got.ActualEndDate != "2025-06-15" {
		t.Fatalf("abandon should stamp today as the end date, got %v", got.ActualEndDate)
	}
}

func TestCycleSequenceIgnoresLookalikeParcelCodes(t *testing.T) {
	env := newTestEnv(t)
	// P_1 contains a LIKE wildcard; its sequence must not count PX1's cycles
	px, err := env.Engine.CreateParcel(env.Ctx, engine.ParcelOptions{FarmID: "farm-1", Code: "PX1", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	pu, err := env.Engine.CreateParcel(env.Ctx, engine.ParcelOptions{FarmID: "farm-1", Code: "P_1", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	c1, err := env.Engine.CreateCycle(env.Ctx, engine.CycleCreateOptions{
		FarmID: "farm-1", LandParcelID: px.ID, CropTypeID: env.Crop.ID,
		PlannedStartDate: "2025-01-10", PlannedEndDate: "2025-03-01", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if c1.CycleCode != "PX1-2025-001" {
		t.Fatalf("cycle code = %s", c1.CycleCode)
	}
	c2, err := env.Engine.CreateCycle(env.Ctx, engine.CycleCreateOptions{
		FarmID: "farm-1", LandParcelID: pu.ID, CropTypeID: env.Crop.ID,
		PlannedStartDate: "2025-01-10", PlannedEndDate: "2025-03-01", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	if c2.CycleCode != "P_1-2025-001" {
		t.Fatalf("sequence leaked across parcels: %s", c2.CycleCode)
	}
}

func TestUpdateCyclePlan(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	env.planCycle(t, "2025-03-02", "2025-04-01")

	// shifting into the sibling's window is rejected
	newEnd := "2025-03-10"
	var overlapErr *domain.OverlapError
	_, err := env.Engine.UpdateCyclePlan(env.Ctx, c.ID, engine.CycleUpdateOptions{
		PlannedEndDate: &newEnd, ActorID: "tester",
	})
	if !errors.As(err, &overlapErr) {
		t.Fatalf("expected OverlapError, got %v", err)
	}
	// shrinking its own window is fine and does not conflict with itself
	newEnd = "2025-02-20"
	got, err := env.Engine.UpdateCyclePlan(env.Ctx, c.ID, engine.CycleUpdateOptions{
		PlannedEndDate: &newEnd, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("update plan: %v", err)
	}
	if got.PlannedEndDate != "2025-02-20" {
		t.Fatalf("planned end = %s", got.PlannedEndDate)
	}
	// closed cycles are frozen
	if _, err := env.Engine.AbandonCycle(env.Ctx, c.ID, "", "tester"); err != nil {
		t.Fatal(err)
	}
	var notEditable *domain.NotEditableError
	_, err = env.Engine.UpdateCyclePlan(env.Ctx, c.ID, engine.CycleUpdateOptions{
		PlannedEndDate: &newEnd, ActorID: "tester",
	})
	if !errors.As(err, &notEditable) {
		t.Fatalf("expected NotEditableError, got %v", err)
	}
}

func TestDeleteCycleOnlyWhilePlanned(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	if _, err := env.Engine.ActivateCycle(env.Ctx, c.ID, "", "tester"); err != nil {
		t.Fatal(err)
	}
	var notDeletable *domain.NotDeletableError
	if err := env.Engine.DeleteCycle(env.Ctx, c.ID, "tester"); !errors.As(err, &notDeletable) {
		t.Fatalf("expected NotDeletableError, got %v", err)
	}
	c2 := env.planCycle(t, "2025-03-02", "2025-04-01")
	if err := env.Engine.DeleteCycle(env.Ctx, c2.ID, "tester"); err != nil {
		t.Fatalf("delete planned: %v", err)
	}
	if _, err := env.Engine.Repo.GetCycle(env.Ctx, c2.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	// its stages are gone with it
	stages, err := env.Engine.Repo.ListStages(env.Ctx, c2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stages) != 0 {
		t.Fatalf("expected stages removed, got %d", len(stages))
	}
}
