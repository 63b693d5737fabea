package filesnap

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveCommittedDespiteDirSyncFailure(t *testing.T) {
	orig := syncDir
	syncDir = func(string) error { return errors.New("EIO") }
	t.Cleanup(func() { syncDir = orig })

	var logs bytes.Buffer
	s, err := New(filepath.Join(t.TempDir(), "ledger.json"))
	if err != nil {
		t.Fatal(err)
	}
	s.WithLogger(slog.New(slog.NewTextHandler(&logs, nil)))

	ctx := context.Background()
	if err := s.Save(ctx, 4, []byte(`{"agents":{}}`)); err != nil {
		t.Fatalf("expected renamed snapshot to count as saved, got %v", err)
	}
	version, data, err := s.Load(ctx)
	if err != nil || version != 4 || string(data) != `{"agents":{}}` {
		t.Fatalf("expected v4 on disk, got v%d %s (%v)", version, data, err)
	}
	if !strings.Contains(logs.String(), "directory fsync failed") {
		t.Errorf("expected a warning about the directory fsync, got %q", logs.String())
	}
}
