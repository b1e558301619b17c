// Package readcache is a tagged read-through cache for rendered read responses.
//
// Writers invalidate by tag. Every invalidation bumps a generation counter and
// a load is only stored when no invalidation happened since it started, so an
// entry computed from data older than an invalidation never survives it.
package readcache

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is the TTL used by the contact handlers unless configured otherwise.
const DefaultTTL = 60 * time.Second

type Options struct {
	// TTL of entries stored without an explicit one. Zero or negative disables caching.
	TTL time.Duration
	// Name labels the cache metrics.
	Name string
	// Metrics receives hit, miss, store and invalidation counters. Optional.
	Metrics *metrics.Set
}

type entry[V any] struct {
	value V
	tags  []string
}

// Cache is safe for concurrent use. Release it with [Cache.Close].
type Cache[V any] struct {
	items *ttlcache.Cache[string, entry[V]]
	ttl   time.Duration
	group singleflight.Group

	mu  sync.Mutex // serializes stores with invalidations
	gen uint64

	closeOnce sync.Once

	hits, misses, stores, drops, invalidations *metrics.Counter
}

func New[V any](options Options) *Cache[V] {
	ttl := max(options.TTL, 0)
	set := options.Metrics
	if set == nil {
		set = metrics.NewSet()
	}
	counter := func(event string) *metrics.Counter {
		return set.GetOrCreateCounter(`readcache_events_total{cache="` + options.Name + `",event="` + event + `"}`)
	}

	c := &Cache[V]{
		items: ttlcache.New(
			ttlcache.WithTTL[string, entry[V]](ttl),
			ttlcache.WithDisableTouchOnHit[string, entry[V]](),
		),
		ttl:           ttl,
		hits:          counter("hit"),
		misses:        counter("miss"),
		stores:        counter("store"),
		drops:         counter("drop"),
		invalidations: counter("invalidation"),
	}
	go c.items.Start() // sweeps expired entries, stopped by Close
	return c
}

// Close stops the expiration sweep and drops every entry.
func (c *Cache[V]) Close() {
	c.closeOnce.Do(func() {
		c.items.Stop()
		c.items.DeleteAll()
	})
}

// Enabled reports whether values are stored at all.
func (c *Cache[V]) Enabled() bool { return c.ttl > 0 }

// Get returns the value stored at key, if any and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	item := c.items.Get(key)
	if item == nil {
		c.misses.Inc()
		var zero V
		return zero, false
	}
	c.hits.Inc()
	return item.Value().value, true
}

// Put stores value at key. A zero ttl means the cache default.
func (c *Cache[V]) Put(key string, value V, ttl time.Duration, tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value, ttl, tags)
}

// Generation returns a token to pass to [Cache.PutAt].
func (c *Cache[V]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// PutAt stores value only if nothing was invalidated since gen was taken.
func (c *Cache[V]) PutAt(gen uint64, key string, value V, ttl time.Duration, tags ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.drops.Inc()
		return false
	}
	c.put(key, value, ttl, tags)
	return true
}

func (c *Cache[V]) put(key string, value V, ttl time.Duration, tags []string) {
	if !c.Enabled() {
		return
	}
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	c.items.Set(key, entry[V]{value: value, tags: slices.Clone(tags)}, ttl)
	c.stores.Inc()
}

// Invalidate drops every entry carrying at least one of tags and returns how
// many were dropped.
func (c *Cache[V]) Invalidate(tags ...string) int {
	return c.InvalidateFunc(func(_ string, entryTags []string) bool {
		for _, tag := range tags {
			if slices.Contains(entryTags, tag) {
				return true
			}
		}
		return false
	})
}

// InvalidateFunc drops every entry for which match returns true.
func (c *Cache[V]) InvalidateFunc(match func(key string, tags []string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.invalidations.Inc()

	n := 0
	for key, item := range c.items.Items() {
		if match(key, item.Value().tags) {
			c.items.Delete(key)
			n++
		}
	}
	return n
}

// Load returns the value at key, calling load on a miss and storing its
// result with tags. Concurrent misses on the same key share one call to load,
// unless an invalidation happened in between. Errors are not cached.
func (c *Cache[V]) Load(
	ctx context.Context,
	key string,
	tags []string,
	load func(context.Context) (V, error),
) (V, error) {
	if !c.Enabled() {
		return load(ctx)
	}
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	gen := c.Generation()
	v, err, _ := c.group.Do(strconv.FormatUint(gen, 10)+"\x00"+key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		c.PutAt(gen, key, v, 0, tags...)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil //nolint: errcheck // always V
}

// Len returns the number of stored entries, expired ones included until swept.
func (c *Cache[V]) Len() int { return c.items.Len() }
