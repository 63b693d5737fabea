// Package filesnap implements the snapshot port as a single JSON file that
// is replaced atomically on every save.
package filesnap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/nice-bills/substrate/internal/port/snapshot"
)

type envelope struct {
	Version uint64          `json:"version"`
	Ledger  json.RawMessage `json:"ledger"`
}

// Store writes the snapshot to path via a temp file in the same directory,
// fsync, rename, then fsync of the directory. Once the rename succeeds the
// save counts as committed: a failed directory fsync is logged, not returned,
// because readers already see the new file.
type Store struct {
	path string
	log  *slog.Logger
	mu   sync.Mutex
}

// syncDir flushes a directory entry; replaced in tests.
var syncDir = func(dir string) error {
	d, err := os.Open(dir) //nolint:gosec // G304: dir comes from operator config
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return d.Sync()
}

// New returns a store for path, creating its parent directory.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("filesnap: create dir: %w", err)
	}
	return &Store{path: path, log: slog.Default()}, nil
}

// WithLogger sets the logger used for post-commit warnings.
func (s *Store) WithLogger(l *slog.Logger) *Store {
	s.log = l
	return s
}

// Path returns the snapshot file location.
func (s *Store) Path() string { return s.path }

// Load reads the current snapshot.
func (s *Store) Load(_ context.Context) (uint64, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *Store) read() (uint64, []byte, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil, snapshot.ErrNoSnapshot
	}
	if err != nil {
		return 0, nil, fmt.Errorf("filesnap: read: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return 0, nil, fmt.Errorf("filesnap: decode %s: %w", s.path, err)
	}
	return env.Version, env.Ledger, nil
}

// Save atomically replaces the snapshot unless a newer version is stored.
func (s *Store) Save(ctx context.Context, version uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(data) {
		return errors.New("filesnap: snapshot is not valid JSON")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, _, err := s.read(); err == nil && current > version {
		return nil
	}

	raw, err := json.Marshal(envelope{Version: version, Ledger: data})
	if err != nil {
		return fmt.Errorf("filesnap: encode: %w", err)
	}
	if err := writeAtomic(s.path, raw); err != nil {
		return err
	}
	if err := syncDir(filepath.Dir(s.path)); err != nil {
		s.log.Warn("filesnap: snapshot renamed but directory fsync failed; a crash may lose it",
			"path", s.path, "version", version, "error", err)
	}
	return nil
}

// writeAtomic replaces path with data via a synced temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("filesnap: create temp: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("filesnap: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("filesnap: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filesnap: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("filesnap: rename: %w", err)
	}
	committed = true
	return nil
}
