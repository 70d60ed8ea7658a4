package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// ---------- helpers ----------
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newMemory() (*Memory, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := NewMemory()
	m.Now = clk.Now
	return m, clk
}

func newRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, "test:"), mr
}

// ---------- Memory ----------
func TestMemory_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	m, clk := newMemory()

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("Get = %q %v %v", v, ok, err)
	}

	clk.Advance(time.Minute)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatalf("entry should expire at ttl")
	}
	if m.Len() != 0 {
		t.Fatalf("expired entry not evicted on read")
	}

	if err := m.Set(ctx, "zero", []byte("x"), 0); err != nil {
		t.Fatalf("Set zero ttl: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "zero"); ok {
		t.Fatalf("non-positive ttl must not store")
	}
}

func TestMemory_IncrWindow(t *testing.T) {
	ctx := context.Background()
	m, clk := newMemory()

	n, reset, _ := m.Incr(ctx, "rl", time.Minute)
	if n != 1 || !reset.Equal(clk.Now().Add(time.Minute)) {
		t.Fatalf("first Incr = %d %v", n, reset)
	}
	clk.Advance(30 * time.Second)
	n2, reset2, _ := m.Incr(ctx, "rl", time.Minute)
	if n2 != 2 || !reset2.Equal(reset) {
		t.Fatalf("second Incr = %d %v (window must not slide)", n2, reset2)
	}
	clk.Advance(30 * time.Second)
	n3, _, _ := m.Incr(ctx, "rl", time.Minute)
	if n3 != 1 {
		t.Fatalf("counter should restart after window, got %d", n3)
	}
}

func TestMemory_ConcurrentIncrNoLostUpdates(t *testing.T) {
	ctx := context.Background()
	m, _ := newMemory()

	const workers, per = 16, 250
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				_, _, _ = m.Incr(ctx, "hot", time.Hour)
			}
		}()
	}
	wg.Wait()

	n, _, _ := m.Incr(ctx, "hot", time.Hour)
	if n != workers*per+1 {
		t.Fatalf("lost updates: got %d, want %d", n, workers*per+1)
	}
}

func TestMemory_DeleteAndSweep(t *testing.T) {
	ctx := context.Background()
	m, clk := newMemory()

	_ = m.Set(ctx, "old", []byte("x"), time.Second)
	_ = m.Delete(ctx, "missing")
	clk.Advance(2 * time.Second)
	for i := 0; i < gcEvery; i++ {
		_, _, _ = m.Get(ctx, "other")
	}
	if m.Len() != 0 {
		t.Fatalf("sweep should evict expired entries, len=%d", m.Len())
	}
}

// ---------- Redis ----------
func TestRedis_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedis(t)

	if err := r.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("test:k") {
		t.Fatalf("key should be namespaced")
	}
	v, ok, err := r.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("Get = %q %v %v", v, ok, err)
	}
	mr.FastForward(time.Minute)
	if _, ok, _ := r.Get(ctx, "k"); ok {
		t.Fatalf("expected expiry")
	}
	_ = r.Set(ctx, "d", []byte("v"), time.Minute)
	if err := r.Delete(ctx, "d"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := r.Get(ctx, "d"); ok {
		t.Fatalf("expected deleted")
	}
}

func TestRedis_IncrWindow(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedis(t)

	for want := int64(1); want <= 3; want++ {
		n, reset, err := r.Incr(ctx, "rl", time.Minute)
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if n != want {
			t.Fatalf("Incr = %d, want %d", n, want)
		}
		if time.Until(reset) > time.Minute || time.Until(reset) <= 0 {
			t.Fatalf("reset out of window: %v", reset)
		}
	}
	if ttl := mr.TTL("test:rl"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}
	mr.FastForward(time.Minute)
	n, _, _ := r.Incr(ctx, "rl", time.Minute)
	if n != 1 {
		t.Fatalf("counter should restart, got %d", n)
	}
}

func TestMemory_CountDoesNotIncrement(t *testing.T) {
	ctx := context.Background()
	m, clk := newMemory()

	if n, reset, err := m.Count(ctx, "rl"); err != nil || n != 0 || !reset.IsZero() {
		t.Fatalf("absent = %d %v %v", n, reset, err)
	}
	_, wantReset, _ := m.Incr(ctx, "rl", time.Minute)
	m.Incr(ctx, "rl", time.Minute)
	for i := 0; i < 2; i++ {
		n, reset, err := m.Count(ctx, "rl")
		if err != nil || n != 2 || !reset.Equal(wantReset) {
			t.Fatalf("Count = %d %v %v", n, reset, err)
		}
	}
	clk.Advance(time.Minute)
	if n, _, _ := m.Count(ctx, "rl"); n != 0 {
		t.Fatalf("expired counter = %d", n)
	}
}

func TestRedis_CountDoesNotIncrement(t *testing.T) {
	ctx := context.Background()
	r, _ := newRedis(t)

	if n, reset, err := r.Count(ctx, "rl"); err != nil || n != 0 || !reset.IsZero() {
		t.Fatalf("absent = %d %v %v", n, reset, err)
	}
	r.Incr(ctx, "rl", time.Minute)
	r.Incr(ctx, "rl", time.Minute)
	n, reset, err := r.Count(ctx, "rl")
	if err != nil || n != 2 {
		t.Fatalf("Count = %d %v", n, err)
	}
	if time.Until(reset) <= 0 || time.Until(reset) > time.Minute {
		t.Fatalf("reset out of window: %v", reset)
	}
	if n, _, _ := r.Incr(ctx, "rl", time.Minute); n != 3 {
		t.Fatalf("Count changed the counter: next Incr = %d", n)
	}
}

func TestRedis_UnavailableIsWrapped(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedis(t)
	mr.Close()

	if _, _, err := r.Incr(ctx, "rl", time.Minute); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
	if _, _, err := r.Get(ctx, "k"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
	if _, _, err := r.Count(ctx, "rl"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := Connect(ctx, "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("Connect url: %v", err)
	}
	_ = c.Close()

	c, err = Connect(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("Connect addr: %v", err)
	}
	_ = c.Close()

	if _, err := Connect(ctx, "redis://%zz"); err == nil {
		t.Fatalf("expected parse error")
	}
}
