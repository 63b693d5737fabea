package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nice-bills/substrate/internal/port/snapshot"
)

// SnapshotStore implements snapshot.Store with one row in ledger_snapshots.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by the given connection pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Load returns the stored snapshot and its version.
func (s *SnapshotStore) Load(ctx context.Context) (uint64, []byte, error) {
	var (
		version int64
		state   []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT version, state FROM ledger_snapshots WHERE id = 1`).Scan(&version, &state)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, snapshot.ErrNoSnapshot
	}
	if err != nil {
		return 0, nil, fmt.Errorf("load snapshot: %w", err)
	}
	return uint64(version), state, nil //nolint:gosec // G115: versions are written from uint64 and never negative
}

// Save upserts the snapshot inside a transaction. A stored row with a newer
// version is left untouched.
func (s *SnapshotStore) Save(ctx context.Context, version uint64, data []byte) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save snapshot: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO ledger_snapshots (id, version, state, updated_at)
		 VALUES (1, $1, $2::jsonb, now())
		 ON CONFLICT (id) DO UPDATE
		   SET version = EXCLUDED.version, state = EXCLUDED.state, updated_at = now()
		 WHERE ledger_snapshots.version <= EXCLUDED.version`,
		int64(version), string(data)) //nolint:gosec // G115: version counter stays far below MaxInt64
	if err != nil {
		return fmt.Errorf("save snapshot v%d: %w", version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("save snapshot: commit: %w", err)
	}
	return nil
}
