package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cropline/internal/config"
	"cropline/internal/db"
	"cropline/internal/domain"
	"cropline/internal/engine"
	"cropline/internal/migrate"
	"cropline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Parcel domain.LandParcel
	Crop   domain.CropType
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("farm-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitFarm(ctx, "farm-1", "Test Farm", "", "tester"); err != nil {
		t.Fatalf("init farm: %v", err)
	}
	crop, err := eng.UpsertCropType(ctx, "maize", "Maize", "cereal", nil)
	if err != nil {
		t.Fatalf("upsert crop type: %v", err)
	}
	parcel, err := eng.CreateParcel(ctx, engine.ParcelOptions{FarmID: "farm-1", Code: "P1", ActorID: "tester"})
	if err != nil {
		t.Fatalf("create parcel: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Parcel: parcel, Crop: crop}
}

func (env testEnv) planCycle(t *testing.T, start, end string) domain.CropCycle {
	t.Helper()
	c, err := env.Engine.CreateCycle(env.Ctx, engine.CycleCreateOptions{
		FarmID:           "farm-1",
		LandParcelID:     env.Parcel.ID,
		CropTypeID:       env.Crop.ID,
		PlannedStartDate: start,
		PlannedEndDate:   end,
		ActorID:          "tester",
	})
	if err != nil {
		t.Fatalf("plan cycle %s..%s: %v", start, end, err)
	}
	return c
}

func TestParcelDeleteBlockedByCycles(t *testing.T) {
	env := newTestEnv(t)
	env.planCycle(t, "2025-01-10", "2025-03-01")
	var blocked *domain.PreconditionError
	err := env.Engine.DeleteParcel(env.Ctx, env.Parcel.ID, "tester")
	if !errors.As(err, &blocked) {
		t.Fatalf("expected PreconditionError while cycles exist, got %v", err)
	}
	// an empty parcel deletes fine
	p2, err := env.Engine.CreateParcel(env.Ctx, engine.ParcelOptions{FarmID: "farm-1", Code: "P2", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.DeleteParcel(env.Ctx, p2.ID, "tester"); err != nil {
		t.Fatalf("delete empty parcel: %v", err)
	}
	if _, err := env.Engine.Repo.GetParcel(env.Ctx, p2.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestFarmStatusCounts(t *testing.T) {
	env := newTestEnv(t)
	c := env.planCycle(t, "2025-01-10", "2025-03-01")
	env.planCycle(t, "2025-03-02", "2025-04-01")
	if _, err := env.Engine.ActivateCycle(env.Ctx, c.ID, "", "tester"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	s, err := env.Engine.Status(env.Ctx, "farm-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if s.CyclesByState["active"] != 1 || s.CyclesByState["planned"] != 1 {
		t.Fatalf("unexpected cycle counts: %+v", s.CyclesByState)
	}
	if s.ParcelCount != 1 {
		t.Fatalf("parcel count = %d", s.ParcelCount)
	}
	if s.LatestEventID == 0 {
		t.Fatalf("expected events recorded")
	}
}

func TestImportConfigValidates(t *testing.T) {
	env := newTestEnv(t)
	bad := config.Default("farm-1")
	bad.Catalog.Units = append(bad.Catalog.Units, config.UnitSeed{Code: "x", Kind: "nope"})
	if err := env.Engine.ImportConfig(env.Ctx, "farm-1", bad, "tester"); err == nil {
		t.Fatalf("expected invalid config rejected")
	}
	good := config.Default("farm-1")
	good.Catalog.Units = append(good.Catalog.Units, config.UnitSeed{Code: "bag", Name: "Bag", Kind: "count"})
	if err := env.Engine.ImportConfig(env.Ctx, "farm-1", good, "tester"); err != nil {
		t.Fatalf("import config: %v", err)
	}
	if _, err := env.Engine.Repo.GetUnitByCode(env.Ctx, "bag"); err != nil {
		t.Fatalf("expected catalog re-seeded: %v", err)
	}
}
