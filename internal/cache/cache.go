// Package cache is the query cache in front of gateway lookups: a TTL map with per-key
// single-flight and an optional shared second tier.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/hcservices/internal/errs"
	"github.com/and161185/hcservices/internal/metrics"
)

// Defaults
const (
	DefaultTTL          = 5 * time.Minute
	DefaultFetchTimeout = 30 * time.Second
	DefaultMaxEntries   = 1024
)

// Key derives a deterministic cache key from op and its full parameter tuple.
// Params are escaped so distinct tuples never share a key.
func Key(op string, params ...string) string {
	var b strings.Builder
	b.WriteString(op)
	for _, p := range params {
		b.WriteByte('|')
		b.WriteString(url.QueryEscape(p))
	}
	return b.String()
}

// Entry is one cached value.
type Entry[T any] struct {
	Key       string    `json:"key"`
	Value     T         `json:"value"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Tier is a shared store consulted after the in-process map. Get returns errs.ErrCacheMiss when absent.
type Tier interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Options configure a Cache. Zero values take defaults.
type Options struct {
	Name         string
	TTL          time.Duration
	FetchTimeout time.Duration
	MaxEntries   int
	Tier         Tier
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	Clock        func() time.Time
}

// Cache maps keys to values of T for a fixed staleness window.
// Safe for concurrent use; entries are replaced whole under the write lock.
type Cache[T any] struct {
	name    string
	ttl     time.Duration
	timeout time.Duration
	max     int
	tier    Tier
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]Entry[T]
	group   singleflight.Group
}

// New constructs a Cache.
func New[T any](opts Options) *Cache[T] {
	c := &Cache[T]{
		name:    opts.Name,
		ttl:     opts.TTL,
		timeout: opts.FetchTimeout,
		max:     opts.MaxEntries,
		tier:    opts.Tier,
		log:     opts.Logger,
		metrics: opts.Metrics,
		now:     time.Now,
		entries: make(map[string]Entry[T]),
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultFetchTimeout
	}
	if c.max <= 0 {
		c.max = DefaultMaxEntries
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if opts.Clock != nil {
		c.now = opts.Clock
	}
	return c
}

// Get returns the fresh cached value for key or runs fetch once for all concurrent callers.
//
// A caller whose ctx ends stops waiting; the shared fetch keeps running for the others under
// its own timeout. Errors are returned to every waiter and never cached.
func (c *Cache[T]) Get(ctx context.Context, key string, fetch func(context.Context) (T, error)) (T, error) {
	if e, ok := c.Peek(key); ok {
		c.metrics.ObserveCache(c.name, "hit")
		return e.Value, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if e, ok := c.Peek(key); ok {
			return e, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		if e, ok := c.fromTier(fctx, key); ok {
			c.metrics.ObserveCache(c.name, "tier_hit")
			c.store(e)
			return e, nil
		}
		v, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		e := Entry[T]{Key: key, Value: v, FetchedAt: c.now()}
		c.store(e)
		c.toTier(fctx, e)
		return e, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.metrics.ObserveCache(c.name, "shared")
		} else {
			c.metrics.ObserveCache(c.name, "miss")
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(Entry[T]).Value, nil
	}
}

// Peek returns the entry for key if it is still within the staleness window.
func (c *Cache[T]) Peek(key string) (Entry[T], bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.fresh(e) {
		return Entry[T]{}, false
	}
	return e, true
}

// Invalidate drops key from the in-process map and the shared tier.
func (c *Cache[T]) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	if c.tier == nil {
		return nil
	}
	if err := c.tier.Delete(ctx, c.tierKey(key)); err != nil {
		c.log.Warn("cache tier delete failed", zap.String("cache", c.name), zap.Error(err))
		return err
	}
	return nil
}

// Len reports the number of stored entries, stale ones included.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[T]) fresh(e Entry[T]) bool {
	return c.now().Sub(e.FetchedAt) < c.ttl
}

func (c *Cache[T]) store(e Entry[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[e.Key]; !ok && len(c.entries) >= c.max {
		c.evictLocked()
	}
	c.entries[e.Key] = e
}

// evictLocked drops stale entries, then the oldest one if the map is still full.
func (c *Cache[T]) evictLocked() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, e := range c.entries {
		if !c.fresh(e) {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.FetchedAt.Before(oldest) {
			oldestKey, oldest = k, e.FetchedAt
		}
	}
	if len(c.entries) >= c.max && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *Cache[T]) fromTier(ctx context.Context, key string) (Entry[T], bool) {
	if c.tier == nil {
		return Entry[T]{}, false
	}
	raw, err := c.tier.Get(ctx, c.tierKey(key))
	if err != nil {
		if !errors.Is(err, errs.ErrCacheMiss) {
			c.log.Warn("cache tier get failed", zap.String("cache", c.name), zap.Error(err))
		}
		return Entry[T]{}, false
	}
	var e Entry[T]
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log.Warn("cache tier entry undecodable", zap.String("cache", c.name), zap.Error(err))
		return Entry[T]{}, false
	}
	if e.Key != key || !c.fresh(e) {
		return Entry[T]{}, false
	}
	return e, true
}

func (c *Cache[T]) toTier(ctx context.Context, e Entry[T]) {
	if c.tier == nil {
		return
	}
	raw, err := json.Marshal(e)
	if err != nil {
		c.log.Warn("cache tier encode failed", zap.String("cache", c.name), zap.Error(err))
		return
	}
	if err := c.tier.Set(ctx, c.tierKey(e.Key), raw, c.ttl); err != nil {
		c.log.Warn("cache tier set failed", zap.String("cache", c.name), zap.Error(err))
	}
}

func (c *Cache[T]) tierKey(key string) string {
	if c.name == "" {
		return key
	}
	return c.name + ":" + key
}
