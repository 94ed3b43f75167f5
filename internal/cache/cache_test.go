package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/and161185/hcservices/internal/errs"
	"github.com/and161185/hcservices/internal/metrics"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func counting(calls *atomic.Int32, val string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		calls.Add(1)
		return val, nil
	}
}

func TestKey(t *testing.T) {
	t.Parallel()
	if Key("search", "a", "b") != Key("search", "a", "b") {
		t.Fatalf("key not deterministic")
	}
	distinct := []string{
		Key("search", "a|b", "c"),
		Key("search", "a", "b|c"),
		Key("search", "a", "b", "c"),
		Key("cnr", "a", "b", "c"),
		Key("search", "", "abc"),
		Key("search", "abc", ""),
	}
	seen := map[string]bool{}
	for _, k := range distinct {
		if seen[k] {
			t.Fatalf("collision on %q", k)
		}
		seen[k] = true
	}
}

func TestGet_CachesWithinWindow(t *testing.T) {
	t.Parallel()
	clk := newClock()
	c := New[string](Options{Name: "t"})
	c.now = clk.now

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		v, err := c.Get(context.Background(), "k", counting(&calls, "v"))
		if err != nil || v != "v" {
			t.Fatalf("Get: %q %v", v, err)
		}
		clk.advance(time.Minute)
	}
	if calls.Load() != 1 {
		t.Fatalf("fetch calls=%d, want 1", calls.Load())
	}
}

func TestGet_ExpiresAfterWindow(t *testing.T) {
	t.Parallel()
	clk := newClock()
	c := New[string](Options{TTL: 5 * time.Minute})
	c.now = clk.now

	var calls atomic.Int32
	_, _ = c.Get(context.Background(), "k", counting(&calls, "v"))
	clk.advance(5*time.Minute - time.Second)
	_, _ = c.Get(context.Background(), "k", counting(&calls, "v"))
	if calls.Load() != 1 {
		t.Fatalf("refetched inside the window")
	}
	clk.advance(time.Second)
	_, _ = c.Get(context.Background(), "k", counting(&calls, "v"))
	if calls.Load() != 2 {
		t.Fatalf("stale entry served: calls=%d", calls.Load())
	}
}

func TestGet_SingleFlight(t *testing.T) {
	t.Parallel()
	c := New[string](Options{})

	var calls atomic.Int32
	gate := make(chan struct{})
	fetch := func(context.Context) (string, error) {
		calls.Add(1)
		<-gate
		return "shared", nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), "same", fetch)
			if err != nil {
				t.Errorf("Get: %v", err)
			}
			results[i] = v
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("underlying calls=%d, want 1", calls.Load())
	}
	for _, r := range results {
		if r != "shared" {
			t.Fatalf("results=%v", results)
		}
	}
}

func TestGet_ErrorsNotCached(t *testing.T) {
	t.Parallel()
	c := New[string](Options{})
	boom := errors.New("boom")

	if _, err := c.Get(context.Background(), "k", func(context.Context) (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("error result stored")
	}
	v, err := c.Get(context.Background(), "k", func(context.Context) (string, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Fatalf("Get after error: %q %v", v, err)
	}
}

func TestGet_CallerCancelKeepsSharedFetch(t *testing.T) {
	t.Parallel()
	c := New[string](Options{})
	gate := make(chan struct{})
	var calls atomic.Int32
	fetch := func(ctx context.Context) (string, error) {
		calls.Add(1)
		select {
		case <-gate:
			return "late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "k", fetch)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("want canceled, got %v", err)
	}

	close(gate)
	v, err := c.Get(context.Background(), "k", fetch)
	if err != nil || v != "late" {
		t.Fatalf("Get: %q %v", v, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("abandoned fetch was restarted: calls=%d", calls.Load())
	}
}

func TestGet_ConcurrentReaders(t *testing.T) {
	t.Parallel()
	c := New[int](Options{})
	_, _ = c.Get(context.Background(), "k", func(context.Context) (int, error) { return 42, nil })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Get(context.Background(), "k", func(context.Context) (int, error) {
				t.Errorf("fetch on a cached key")
				return 0, nil
			})
			if err != nil || v != 42 {
				t.Errorf("Get: %d %v", v, err)
			}
		}()
	}
	wg.Wait()
}

func TestInvalidate(t *testing.T) {
	t.Parallel()
	c := New[string](Options{})
	var calls atomic.Int32
	_, _ = c.Get(context.Background(), "k", counting(&calls, "v"))
	if err := c.Invalidate(context.Background(), "k"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	_, _ = c.Get(context.Background(), "k", counting(&calls, "v"))
	if calls.Load() != 2 {
		t.Fatalf("calls=%d, want 2", calls.Load())
	}
}

func TestEviction(t *testing.T) {
	t.Parallel()
	clk := newClock()
	c := New[string](Options{MaxEntries: 2})
	c.now = clk.now

	var calls atomic.Int32
	for _, k := range []string{"a", "b", "c"} {
		_, _ = c.Get(context.Background(), k, counting(&calls, k))
		clk.advance(time.Second)
	}
	if c.Len() != 2 {
		t.Fatalf("len=%d, want 2", c.Len())
	}
	if _, ok := c.Peek("a"); ok {
		t.Fatalf("oldest entry kept")
	}
	if _, ok := c.Peek("c"); !ok {
		t.Fatalf("newest entry evicted")
	}
}

var _ Tier = (*mapTier)(nil)

type mapTier struct {
	mu   sync.Mutex
	m    map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newMapTier() *mapTier {
	return &mapTier{m: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (t *mapTier) Get(_ context.Context, key string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	v, ok := t.m[key]
	if !ok {
		return nil, errs.ErrCacheMiss
	}
	return v, nil
}

func (t *mapTier) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.m[key] = val
	t.ttls[key] = ttl
	return nil
}

func (t *mapTier) Delete(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	delete(t.m, key)
	return nil
}

type payload struct {
	Cino string `json:"cino"`
	N    int    `json:"n"`
}

func TestTier_SharedAcrossInstances(t *testing.T) {
	t.Parallel()
	tier := newMapTier()
	m := metrics.New(nil)
	a := New[payload](Options{Name: "cnr", Tier: tier})
	b := New[payload](Options{Name: "cnr", Tier: tier, Metrics: m})

	var calls atomic.Int32
	fetch := func(context.Context) (payload, error) {
		calls.Add(1)
		return payload{Cino: "ABC123", N: 7}, nil
	}
	if _, err := a.Get(context.Background(), "cnr|ABC123", fetch); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tier.ttls["cnr:cnr|ABC123"] != DefaultTTL {
		t.Fatalf("tier ttl=%v", tier.ttls["cnr:cnr|ABC123"])
	}
	got, err := b.Get(context.Background(), "cnr|ABC123", fetch)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != (payload{Cino: "ABC123", N: 7}) || calls.Load() != 1 {
		t.Fatalf("tier not used: %+v calls=%d", got, calls.Load())
	}
	if v := testutil.ToFloat64(m.CacheLookups.WithLabelValues("cnr", "tier_hit")); v != 1 {
		t.Fatalf("tier_hit=%v", v)
	}
}

func TestTier_StaleEntryIgnored(t *testing.T) {
	t.Parallel()
	clk := newClock()
	tier := newMapTier()
	a := New[string](Options{Name: "x", Tier: tier})
	a.now = clk.now
	_, _ = a.Get(context.Background(), "k", func(context.Context) (string, error) { return "old", nil })

	clk.advance(DefaultTTL)
	b := New[string](Options{Name: "x", Tier: tier})
	b.now = clk.now
	v, _ := b.Get(context.Background(), "k", func(context.Context) (string, error) { return "new", nil })
	if v != "new" {
		t.Fatalf("stale tier entry served: %q", v)
	}
}

func TestTier_FailuresIgnored(t *testing.T) {
	t.Parallel()
	tier := newMapTier()
	tier.err = errors.New("connection refused")
	c := New[string](Options{Tier: tier})

	v, err := c.Get(context.Background(), "k", func(context.Context) (string, error) { return "v", nil })
	if err != nil || v != "v" {
		t.Fatalf("tier failure leaked: %q %v", v, err)
	}
}

func TestMetrics_HitAndMiss(t *testing.T) {
	t.Parallel()
	m := metrics.New(nil)
	c := New[string](Options{Name: "search", Metrics: m})
	var calls atomic.Int32
	_, _ = c.Get(context.Background(), "k", counting(&calls, "v"))
	_, _ = c.Get(context.Background(), "k", counting(&calls, "v"))

	if v := testutil.ToFloat64(m.CacheLookups.WithLabelValues("search", "miss")); v != 1 {
		t.Fatalf("miss=%v", v)
	}
	if v := testutil.ToFloat64(m.CacheLookups.WithLabelValues("search", "hit")); v != 1 {
		t.Fatalf("hit=%v", v)
	}
}

func TestInvalidate_DropsTierEntry(t *testing.T) {
	t.Parallel()
	tier := newMapTier()
	c := New[string](Options{Name: "cnr", Tier: tier})

	var calls atomic.Int32
	_, _ = c.Get(context.Background(), "k", counting(&calls, "v"))
	if err := c.Invalidate(context.Background(), "k"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok := tier.m["cnr:k"]; ok {
		t.Fatalf("tier entry kept")
	}
	_, _ = c.Get(context.Background(), "k", counting(&calls, "v"))
	if calls.Load() != 2 {
		t.Fatalf("calls=%d, want 2", calls.Load())
	}
}

func TestInvalidate_TierFailure(t *testing.T) {
	t.Parallel()
	tier := newMapTier()
	c := New[string](Options{Tier: tier})
	_, _ = c.Get(context.Background(), "k", func(context.Context) (string, error) { return "v", nil })

	tier.mu.Lock()
	tier.err = errors.New("connection refused")
	tier.mu.Unlock()
	if err := c.Invalidate(context.Background(), "k"); err == nil {
		t.Fatalf("tier failure swallowed")
	}
	if _, ok := c.Peek("k"); ok {
		t.Fatalf("local entry kept")
	}
}
