package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) add(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func TestMemoryCacheTryLock(t *testing.T) {
	clk := &fakeNow{t: time.Date(2025, 8, 4, 9, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(WithMemoryClock(clk.now))
	defer c.Close()
	ctx := context.Background()

	ok, err := c.TryLock(ctx, "signal:a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock must succeed: ok=%v err=%v", ok, err)
	}
	if ok, _ := c.TryLock(ctx, "signal:a", time.Minute); ok {
		t.Fatalf("second lock must fail while held")
	}
	clk.add(2 * time.Minute)
	if ok, _ := c.TryLock(ctx, "signal:a", time.Minute); !ok {
		t.Fatalf("lock must be reclaimable after ttl")
	}
	_ = c.Unlock(ctx, "signal:a")
	if ok, _ := c.TryLock(ctx, "signal:a", time.Minute); !ok {
		t.Fatalf("lock must be reclaimable after unlock")
	}
}

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	type payload struct {
		N int `json:"n"`
	}
	if err := c.Set(ctx, "k", payload{N: 7}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got payload
	if err := c.Get(ctx, "k", &got); err != nil || got.N != 7 {
		t.Fatalf("get: %+v err=%v", got, err)
	}
	if err := c.Get(ctx, "missing", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	clk := &fakeNow{t: time.Date(2025, 8, 4, 9, 0, 0, 0, time.UTC)}
	c := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryClock(clk.now))
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "a", "1", time.Hour)
	clk.add(time.Second)
	_ = c.Set(ctx, "b", "2", time.Hour)
	clk.add(time.Second)
	var s string
	_ = c.Get(ctx, "a", &s)
	clk.add(time.Second)
	_ = c.Set(ctx, "c", "3", time.Hour)

	if ok, _ := c.Exists(ctx, "b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if ok, _ := c.Exists(ctx, "a", "c"); !ok {
		t.Fatalf("a and c should remain")
	}
}

func TestGenerateKey(t *testing.T) {
	if got := GenerateKey("signal", "2025-08-04", "Pre Lunch", "BUY_CALL"); got != "signal:2025-08-04:Pre Lunch:BUY_CALL" {
		t.Fatalf("unexpected key %q", got)
	}
}
