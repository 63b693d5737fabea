package tiered_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nice-bills/substrate/internal/adapter/tiered"
)

// memCache is a simple in-memory cache for testing. A non-nil err makes
// every call fail.
type memCache struct {
	data map[string][]byte
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	if m.err != nil {
		return m.err
	}
	delete(m.data, key)
	return nil
}

func TestL1Hit(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)
	ctx := context.Background()

	// Set only in L1
	l1.data["idem:a"] = []byte("val1")

	val, found, err := c.Get(ctx, "idem:a")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected L1 hit")
	}
	if string(val) != "val1" {
		t.Fatalf("expected val1, got %s", val)
	}
}

func TestL2HitBackfillsL1(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)
	ctx := context.Background()

	// Set only in L2
	l2.data["chain:balance:0x1"] = []byte("val2")

	val, found, err := c.Get(ctx, "chain:balance:0x1")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected L2 hit")
	}
	if string(val) != "val2" {
		t.Fatalf("expected val2, got %s", val)
	}

	// Verify backfill into L1
	l1Val, ok := l1.data["chain:balance:0x1"]
	if !ok {
		t.Fatal("expected L1 backfill")
	}
	if string(l1Val) != "val2" {
		t.Fatalf("expected backfilled val2, got %s", l1Val)
	}
}

func TestMiss(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)
	ctx := context.Background()

	_, found, err := c.Get(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected miss")
	}
}

func TestSetWritesBothLevels(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "idem:b", []byte("val3"), time.Minute); err != nil {
		t.Fatal(err)
	}

	if _, ok := l1.data["idem:b"]; !ok {
		t.Fatal("expected idem:b in L1")
	}
	if _, ok := l2.data["idem:b"]; !ok {
		t.Fatal("expected idem:b in L2")
	}
}

func TestDeleteRemovesBothLevels(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)
	ctx := context.Background()

	l1.data["idem:c"] = []byte("val4")
	l2.data["idem:c"] = []byte("val4")

	if err := c.Delete(ctx, "idem:c"); err != nil {
		t.Fatal(err)
	}

	if _, ok := l1.data["idem:c"]; ok {
		t.Fatal("expected idem:c deleted from L1")
	}
	if _, ok := l2.data["idem:c"]; ok {
		t.Fatal("expected idem:c deleted from L2")
	}
}

func TestL2FailureDegradesToL1(t *testing.T) {
	l1 := newMemCache()
	l2 := newMemCache()
	l2.err = errors.New("nats: connection closed")
	c := tiered.New(l1, l2, time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "idem:d", []byte("v"), time.Minute); err != nil {
		t.Fatalf("expected L2 set failure to be absorbed, got %v", err)
	}
	val, found, err := c.Get(ctx, "idem:d")
	if err != nil || !found || string(val) != "v" {
		t.Fatalf("expected L1 hit, got %q found=%v err=%v", val, found, err)
	}
	if _, found, err := c.Get(ctx, "idem:missing"); err != nil || found {
		t.Fatalf("expected clean miss on L2 failure, got found=%v err=%v", found, err)
	}
}
