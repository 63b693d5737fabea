// Package snapshot defines the port for durable ledger snapshots.
package snapshot

import (
	"context"
	"errors"
)

// ErrNoSnapshot is returned by Load when nothing has been persisted yet.
var ErrNoSnapshot = errors.New("snapshot: none persisted")

// Store persists the serialized ledger as a single atomic unit.
type Store interface {
	// Load returns the most recent durable snapshot and its version.
	Load(ctx context.Context) (version uint64, data []byte, err error)

	// Save durably replaces the stored snapshot. It must be atomic: after a
	// crash either the previous or the new snapshot is visible, never a mix.
	// Stores may ignore a version older than the one already stored.
	Save(ctx context.Context, version uint64, data []byte) error
}
