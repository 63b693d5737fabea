package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nice-bills/substrate/internal/port/chain"
	"github.com/nice-bills/substrate/internal/service"
)

type fakeReader struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (r *fakeReader) Balance(context.Context, string) (decimal.Decimal, error) {
	r.calls.Add(1)
	time.Sleep(r.delay)
	if r.err != nil {
		return decimal.Decimal{}, r.err
	}
	return decimal.RequireFromString("1.5"), nil
}

func (r *fakeReader) Registry(context.Context) ([]chain.Identity, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return []chain.Identity{{TokenID: 1, Owner: "0xabc"}}, nil
}

// mapCache is a synchronous cache.Cache.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func TestChainViewCachesBalance(t *testing.T) {
	r := &fakeReader{}
	svc := service.NewChainViewService(r, newMapCache(), time.Minute)
	ctx := context.Background()

	first := svc.Balance(ctx, "0xABC")
	second := svc.Balance(ctx, "0xabc")
	if !first.Available || first.Balance == nil || !first.Balance.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("unexpected view: %+v", first)
	}
	if !second.Available {
		t.Fatal("expected cached view available")
	}
	if n := r.calls.Load(); n != 1 {
		t.Fatalf("expected 1 upstream call, got %d", n)
	}
}

func TestChainViewSharesConcurrentMisses(t *testing.T) {
	r := &fakeReader{delay: 50 * time.Millisecond}
	svc := service.NewChainViewService(r, nil, time.Minute)
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Balance(context.Background(), "0xabc")
		}()
	}
	wg.Wait()
	if n := r.calls.Load(); n >= 10 {
		t.Fatalf("expected concurrent misses to share calls, got %d", n)
	}
}

func TestChainViewDegrades(t *testing.T) {
	svc := service.NewChainViewService(&fakeReader{err: chain.ErrUnavailable}, newMapCache(), time.Minute)
	if v := svc.Balance(context.Background(), "0xabc"); v.Available || v.Balance != nil {
		t.Fatalf("expected unavailable, got %+v", v)
	}
	if v := svc.Registry(context.Background()); v.Available {
		t.Fatalf("expected unavailable registry, got %+v", v)
	}

	disabled := service.NewChainViewService(nil, nil, time.Minute)
	if v := disabled.Registry(context.Background()); v.Available {
		t.Fatal("expected nil reader to be unavailable")
	}
}

func TestChainViewRegistry(t *testing.T) {
	svc := service.NewChainViewService(&fakeReader{}, newMapCache(), time.Minute)
	v := svc.Registry(context.Background())
	if !v.Available || len(v.Identities) != 1 || v.Identities[0].Owner != "0xabc" {
		t.Fatalf("unexpected registry view: %+v", v)
	}
}
