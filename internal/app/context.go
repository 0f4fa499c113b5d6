package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"loomline/internal/config"
	"loomline/internal/db"
	"loomline/internal/domain"
	"loomline/internal/engine"
	"loomline/internal/migrate"
	"loomline/internal/repo"
)

// Open prepares a workspace for use: ensures the directory, opens the
// database, applies migrations, loads config (defaults when loomline.yml is
// absent) and seeds the catalog. The caller owns the returned connection.
func Open(ctx context.Context, workspace string) (engine.Engine, *sql.DB, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return engine.Engine{}, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	e := engine.New(conn, cfg)
	if err := SeedCatalog(ctx, e.Repo, cfg); err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("seed catalog: %w", err)
	}
	return e, conn, nil
}

// SeedCatalog inserts configured seed products that are not present yet.
// Existing entries are left alone so manual edits survive restarts.
func SeedCatalog(ctx context.Context, r repo.Repo, cfg *config.Config) error {
	now := time.Now().UTC().Format(time.RFC3339)
	for _, seed := range cfg.Catalog.Seed {
		_, err := r.GetProduct(ctx, seed.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		tx, err := r.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		p := domain.Product{Name: seed.Name, StandardHours: seed.StandardHours, CreatedAt: now}
		if err := r.InsertProduct(ctx, tx, p); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
