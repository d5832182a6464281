package app

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/Freeeeeet/mentorbook/internal/repository"
)

// Migrator applies goose migrations over a pgx pool.
type Migrator struct {
	db     *sql.DB
	fsys   fs.FS
	dir    string
	logger *zap.Logger
}

// NewMigrator uses the embedded migrations unless dir points at a directory on disk.
func NewMigrator(pool *pgxpool.Pool, dir string, logger *zap.Logger) (*Migrator, error) {
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}

	var fsys fs.FS = repository.Migrations
	path := "migrations"
	if dir != "" {
		fsys, path = os.DirFS(dir), "."
	}

	return &Migrator{
		db:     stdlib.OpenDBFromPool(pool),
		fsys:   fsys,
		dir:    path,
		logger: logger,
	}, nil
}

// Up applies all pending migrations.
func (mg *Migrator) Up(ctx context.Context) error {
	goose.SetBaseFS(mg.fsys)
	defer goose.SetBaseFS(nil)

	before, _ := goose.GetDBVersionContext(ctx, mg.db)
	if err := goose.UpContext(ctx, mg.db, mg.dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	after, err := mg.Version(ctx)
	if err != nil {
		return err
	}

	mg.logger.Info("Migrations applied", zap.Int64("from", before), zap.Int64("to", after))
	return nil
}

// Down rolls back the latest migration.
func (mg *Migrator) Down(ctx context.Context) error {
	goose.SetBaseFS(mg.fsys)
	defer goose.SetBaseFS(nil)

	if err := goose.DownContext(ctx, mg.db, mg.dir); err != nil {
		return fmt.Errorf("roll back migration: %w", err)
	}
	mg.logger.Info("Rolled back one migration")
	return nil
}

func (mg *Migrator) Version(ctx context.Context) (int64, error) {
	version, err := goose.GetDBVersionContext(ctx, mg.db)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

// Close closes the sql.DB wrapper; the pool stays open.
func (mg *Migrator) Close() error {
	return mg.db.Close()
}
