package engine_test

import (
	"errors"
	"testing"

	"cropline/internal/domain"
	"cropline/internal/engine"
)

func TestStagesSeededFromTemplate(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	stages, err := env.Engine.Repo.ListStages(env.Ctx, c.ID)
	if err != nil {
		t.Fatalf("list stages: %v", err)
	}
	// maize template: land_preparation(10) planting(5) vegetative_growth(55) flowering(20) harvest(10)
	names := []string{"land_preparation", "planting", "vegetative_growth", "flowering", "harvest"}
	if len(stages) != len(names) {
		t.Fatalf("expected %d stages, got %d", len(names), len(stages))
	}
	for i, st := range stages {
		if st.StageName != names[i] {
			t.Fatalf("stage %d = %s, want %s", i, st.StageName, names[i])
		}
		if st.SequenceOrder != i+1 {
			t.Fatalf("stage %s sequence = %d", st.StageName, st.SequenceOrder)
		}
		if st.Status != domain.StagePending {
			t.Fatalf("stage %s status = %s", st.StageName, st.Status)
		}
	}
	// windows are laid end to end from the planned start
	if *stages[0].PlannedStartDate != "2025-01-10" || *stages[0].PlannedEndDate != "2025-01-20" {
		t.Fatalf("first stage window %s..%s", *stages[0].PlannedStartDate, *stages[0].PlannedEndDate)
	}
	if *stages[1].PlannedStartDate != "2025-01-20" || *stages[1].PlannedEndDate != "2025-01-25" {
		t.Fatalf("second stage window %s..%s", *stages[1].PlannedStartDate, *stages[1].PlannedEndDate)
	}
}

func TestNoStagesForUnknownCrop(t *testing.T) {
	env := newTestEnv(t)
	crop, err := env.Engine.UpsertCropType(env.Ctx, "quinoa", "Quinoa", "cereal", nil)
	if err != nil {
		t.Fatal(err)
	}
	c, err := env.Engine.CreateCycle(env.Ctx, engine.CycleCreateOptions{
		FarmID: "farm-1", LandParcelID: env.Parcel.ID, CropTypeID: crop.ID,
		PlannedStartDate: "2025-01-10", PlannedEndDate: "2025-03-01", ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	stages, err := env.Engine.Repo.ListStages(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stages) != 0 {
		t.Fatalf("crop without template should seed no stages, got %d", len(stages))
	}
}

func TestStageStartRequiresActiveCycle(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	stages, _ := env.Engine.Repo.ListStages(env.Ctx, c.ID)
	var notActive *domain.CycleNotActiveError
	_, err := env.Engine.StartStage(env.Ctx, stages[0].ID, "", "tester")
	if !errors.As(err, &notActive) {
		t.Fatalf("expected CycleNotActiveError while cycle planned, got %v", err)
	}
	if notActive.Status != domain.CyclePlanned || notActive.CycleCode != c.CycleCode {
		t.Fatalf("blocked detail: %+v", notActive)
	}
	if _, err := env.Engine.ActivateCycle(env.Ctx, c.ID, "", "tester"); err != nil {
		t.Fatal(err)
	}
	st, err := env.Engine.StartStage(env.Ctx, stages[0].ID, "2025-01-11", "tester")
	if err != nil {
		t.Fatalf("start first stage: %v", err)
	}
	if st.Status != domain.StageInProgress || st.ActualStartDate == nil || *st.ActualStartDate != "2025-01-11" {
		t.Fatalf("stage after start: %+v", st)
	}
}

func TestStageOrderingEnforced(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	if _, err := env.Engine.ActivateCycle(env.Ctx, c.ID, "", "tester"); err != nil {
		t.Fatal(err)
	}
	stages, _ := env.Engine.Repo.ListStages(env.Ctx, c.ID)

	var blocked *domain.PreviousStageIncompleteError
	_, err := env.Engine.StartStage(env.Ctx, stages[1].ID, "", "tester")
	if !errors.As(err, &blocked) {
		t.Fatalf("expected PreviousStageIncompleteError, got %v", err)
	}
	if blocked.PrevSequence != 1 || blocked.PrevStatus != domain.StagePending {
		t.Fatalf("blocked detail: %+v", blocked)
	}

	if _, err := env.Engine.StartStage(env.Ctx, stages[0].ID, "", "tester"); err != nil {
		t.Fatal(err)
	}
	// in_progress predecessor still blocks
	if _, err := env.Engine.StartStage(env.Ctx, stages[1].ID, "", "tester"); !errors.As(err, &blocked) {
		t.Fatalf("expected block while predecessor in progress, got %v", err)
	}
	if _, err := env.Engine.CompleteStage(env.Ctx, stages[0].ID, "", "", "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.StartStage(env.Ctx, stages[1].ID, "", "tester"); err != nil {
		t.Fatalf("start after predecessor completed: %v", err)
	}
}

func TestSkippedStageUnblocksSuccessor(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	if _, err := env.Engine.ActivateCycle(env.Ctx, c.ID, "", "tester"); err != nil {
		t.Fatal(err)
	}
	stages, _ := env.Engine.Repo.ListStages(env.Ctx, c.ID)
	st, err := env.Engine.SkipStage(env.Ctx, stages[0].ID, "already prepared", "tester")
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if st.Status != domain.StageSkipped || st.Notes != "already prepared" {
		t.Fatalf("skipped stage: %+v", st)
	}
	if _, err := env.Engine.StartStage(env.Ctx, stages[1].ID, "", "tester"); err != nil {
		t.Fatalf("start after skip: %v", err)
	}
	// a skipped stage cannot be restarted
	var ite *domain.InvalidTransitionError
	if _, err := env.Engine.StartStage(env.Ctx, stages[0].ID, "", "tester"); !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestCompletePendingStageRejected(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	stages, _ := env.Engine.Repo.ListStages(env.Ctx, c.ID)
	var ite *domain.InvalidTransitionError
	_, err := env.Engine.CompleteStage(env.Ctx, stages[0].ID, "", "", "tester")
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	persisted, err := env.Engine.Repo.GetStage(env.Ctx, stages[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if persisted.Status != domain.StagePending || persisted.ActualEndDate != nil {
		t.Fatalf("rejected completion must not mutate: %+v", persisted)
	}
}

func TestCreateStageAppendsAfterTemplate(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	st, err := env.Engine.CreateStage(env.Ctx, engine.StageCreateOptions{
		CropCycleID: c.ID,
		StageName:   "drying",
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("create stage: %v", err)
	}
	if st.SequenceOrder != 6 {
		t.Fatalf("appended stage sequence = %d", st.SequenceOrder)
	}
	// closed cycles no longer accept stages
	if _, err := env.Engine.AbandonCycle(env.Ctx, c.ID, "", "tester"); err != nil {
		t.Fatal(err)
	}
	var notEditable *domain.NotEditableError
	_, err = env.Engine.CreateStage(env.Ctx, engine.StageCreateOptions{
		CropCycleID: c.ID, StageName: "too late", ActorID: "tester",
	})
	if !errors.As(err, &notEditable) {
		t.Fatalf("expected NotEditableError, got %v", err)
	}
}
