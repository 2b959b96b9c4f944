package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cropline/internal/config"
	"cropline/internal/domain"
	"cropline/internal/repo"
)

// ResolveFarmAndConfig picks the active farm and ensures a farm + config exist
// in DB, seeding defaults if missing. It prefers the override, then the
// single-farm DB. If the farm does not exist, it is created on the fly.
func ResolveFarmAndConfig(ctx context.Context, workspace, farmOverride string, r repo.Repo) (string, *config.Config, error) {
	farmID := farmOverride
	if farmID == "" {
		if f, err := r.SingleFarm(ctx); err == nil {
			farmID = f.ID
		} else {
			return "", nil, fmt.Errorf("farm not specified; use --farm")
		}
	}
	seedCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}
	if seedCfg == nil {
		seedCfg = config.Default(farmID)
	}

	if _, err := r.GetFarm(ctx, farmID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createFarm(ctx, r, farmID, seedCfg); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetFarmConfig(ctx, farmID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			now := time.Now().UTC().Format(time.RFC3339)
			if err := r.UpsertFarmConfig(ctx, farmID, seedCfg, now); err != nil {
				return "", nil, fmt.Errorf("seed farm config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Farm.ID = farmID
	return farmID, cfg, nil
}

// createFarm inserts a minimal farm footprint using the seed config.
func createFarm(ctx context.Context, r repo.Repo, farmID string, seedCfg *config.Config) error {
	if seedCfg == nil {
		seedCfg = config.Default(farmID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	f := domain.Farm{
		ID:        farmID,
		Name:      seedCfg.Farm.Name,
		Location:  seedCfg.Farm.Location,
		Status:    "active",
		CreatedAt: now,
	}
	if f.Name == "" {
		f.Name = farmID
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO farms(id,name,location,status,created_at) VALUES (?,?,?,?,?)`,
		f.ID, f.Name, f.Location, f.Status, f.CreatedAt); err != nil {
		return fmt.Errorf("insert farm: %w", err)
	}
	if err := r.UpsertFarmConfigTx(ctx, tx, farmID, seedCfg, now); err != nil {
		return fmt.Errorf("insert farm config: %w", err)
	}
	return tx.Commit()
}
