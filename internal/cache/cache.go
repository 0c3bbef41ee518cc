package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kjstillabower/weather-explorer/internal/models"
	"github.com/kjstillabower/weather-explorer/internal/observability"
)

// DefaultMaxEntries bounds the in-memory cache when no size is configured.
const DefaultMaxEntries = 1000

// Cache stores resolutions by query key. Get returns the entry regardless of age; the caller
// decides freshness with CacheEntry.IsFresh. Set overwrites unconditionally and stamps StoredAt.
type Cache interface {
	Get(ctx context.Context, key string) (models.CacheEntry, bool, error)
	Set(ctx context.Context, key string, value models.Resolution) error
}

// Option configures a cache backend.
type Option func(*settings)

type settings struct {
	now func() time.Time
}

// WithClock overrides the clock used to stamp StoredAt.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

func applyOptions(opts []Option) settings {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// LRUCache is the default process-local backend. It holds at most maxEntries resolutions
// and evicts the least recently used one when full. Safe for concurrent use.
type LRUCache struct {
	entries *lru.Cache[string, models.CacheEntry]
	now     func() time.Time
}

// NewLRUCache creates an in-memory cache bounded by maxEntries (DefaultMaxEntries when <= 0).
func NewLRUCache(maxEntries int, opts ...Option) (*LRUCache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	entries, err := lru.New[string, models.CacheEntry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	s := applyOptions(opts)
	c := &LRUCache{entries: entries, now: s.now}
	observability.RegisterCacheEntriesGauge(c.Len)
	return c, nil
}

// Get returns the stored entry for key, fresh or not.
func (c *LRUCache) Get(ctx context.Context, key string) (models.CacheEntry, bool, error) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return models.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Set stores value under key, replacing any previous entry.
func (c *LRUCache) Set(ctx context.Context, key string, value models.Resolution) error {
	c.entries.Add(key, models.CacheEntry{Key: key, Payload: value, StoredAt: c.now()})
	return nil
}

// Len returns the number of entries currently held.
func (c *LRUCache) Len() int {
	return c.entries.Len()
}

// remoteExpiry is how long shared backends keep an entry. Twice the freshness TTL, so the
// service still sees (and replaces) stale entries rather than a backend miss.
func remoteExpiry(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return time.Hour
	}
	return 2 * ttl
}
