//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nice-bills/substrate/internal/adapter/postgres"
	"github.com/nice-bills/substrate/internal/port/snapshot"
)

// setupStore runs all migrations against DATABASE_URL, clears the snapshot
// table and returns a ready-to-use store. The pool is closed via t.Cleanup.
func setupStore(t *testing.T) *postgres.SnapshotStore {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}
	ctx := context.Background()

	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, `DELETE FROM ledger_snapshots`); err != nil {
		t.Fatalf("reset table: %v", err)
	}
	return postgres.NewSnapshotStore(pool)
}

func TestSnapshotStoreEmpty(t *testing.T) {
	s := setupStore(t)
	if _, _, err := s.Load(context.Background()); !errors.Is(err, snapshot.ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestSnapshotStoreVersionGuard(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, 2, []byte(`{"format":1,"seq":2}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, 1, []byte(`{"format":1,"seq":1}`)); err != nil {
		t.Fatal(err)
	}

	v, data, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Fatalf("expected version 2, got %d (%s)", v, data)
	}
}

func TestMigrationUpDown(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}
	ctx := context.Background()

	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("RunMigrations (up): %v", err)
	}
	if err := postgres.RollbackMigrations(ctx, dsn, 1); err != nil {
		t.Fatalf("RollbackMigrations: %v", err)
	}
	if v, err := postgres.MigrationVersion(ctx, dsn); err != nil || v != 0 {
		t.Fatalf("expected version 0 after rollback, got %d (%v)", v, err)
	}
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("RunMigrations (re-up): %v", err)
	}
	if v, err := postgres.MigrationVersion(ctx, dsn); err != nil || v != 1 {
		t.Fatalf("expected version 1 after re-up, got %d (%v)", v, err)
	}
}

func TestMigrationVersion(t *testing.T) {
	setupStore(t)
	v, err := postgres.MigrationVersion(context.Background(), os.Getenv("DATABASE_URL"))
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v < 1 {
		t.Fatalf("expected schema version >= 1, got %d", v)
	}
}
