package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/weather-explorer/internal/models"
)

func testResolution(name string) models.Resolution {
	return models.Resolved(models.Envelope{
		Location: models.LocationInfo{Name: name},
		Current:  models.CurrentConditions{TempC: 12.5, Condition: models.Condition{Text: "Sunny", Icon: "//x/113.png"}},
	})
}

// TestLRUCache_GetSet verifies that Set stores values and Get retrieves them with the
// clock time they were written.
func TestLRUCache_GetSet(t *testing.T) {
	ctx := context.Background()
	stored := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c, err := NewLRUCache(10, WithClock(func() time.Time { return stored }))
	if err != nil {
		t.Fatalf("NewLRUCache() error = %v", err)
	}

	val := testResolution("Seattle")
	if err := c.Set(ctx, "seattle|false|false|false", val); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "seattle|false|false|false")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Payload.Envelope.Location.Name != "Seattle" || got.Payload.Kind != models.KindResolved {
		t.Errorf("Get() = %+v, want %+v", got.Payload, val)
	}
	if !got.StoredAt.Equal(stored) {
		t.Errorf("StoredAt = %v, want %v", got.StoredAt, stored)
	}
	if got.Key != "seattle|false|false|false" {
		t.Errorf("Key = %q", got.Key)
	}
}

// TestLRUCache_Get_Miss verifies that Get returns ok=false when the key does not exist.
func TestLRUCache_Get_Miss(t *testing.T) {
	c, _ := NewLRUCache(10)

	_, ok, err := c.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestLRUCache_ReturnsStaleEntries verifies that old entries are still returned, so the
// caller can decide freshness with its own clock.
func TestLRUCache_ReturnsStaleEntries(t *testing.T) {
	ctx := context.Background()
	stored := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c, _ := NewLRUCache(10, WithClock(func() time.Time { return stored }))
	_ = c.Set(ctx, "k", testResolution("x"))

	got, ok, _ := c.Get(ctx, "k")
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.IsFresh(stored.Add(11*time.Minute), 10*time.Minute) {
		t.Error("entry should be stale after TTL")
	}
}

func TestLRUCache_SetOverwrites(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c, _ := NewLRUCache(10, WithClock(func() time.Time { return now }))

	_ = c.Set(ctx, "k", testResolution("first"))
	now = now.Add(time.Minute)
	_ = c.Set(ctx, "k", testResolution("second"))

	got, _, _ := c.Get(ctx, "k")
	if got.Payload.Envelope.Location.Name != "second" {
		t.Errorf("Get() name = %q, want second", got.Payload.Envelope.Location.Name)
	}
	if !got.StoredAt.Equal(now) {
		t.Errorf("StoredAt = %v, want %v", got.StoredAt, now)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

// TestLRUCache_EvictsLeastRecentlyUsed verifies the size bound.
func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c, _ := NewLRUCache(2)

	_ = c.Set(ctx, "a", testResolution("a"))
	_ = c.Set(ctx, "b", testResolution("b"))
	_, _, _ = c.Get(ctx, "a")
	_ = c.Set(ctx, "c", testResolution("c"))

	if _, ok, _ := c.Get(ctx, "b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok, _ := c.Get(ctx, "a"); !ok {
		t.Error("a should still be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestLRUCache_DefaultSize(t *testing.T) {
	c, err := NewLRUCache(0)
	if err != nil {
		t.Fatalf("NewLRUCache(0) error = %v", err)
	}
	ctx := context.Background()
	for i := 0; i < DefaultMaxEntries+5; i++ {
		_ = c.Set(ctx, strconv.Itoa(i), testResolution("x"))
	}
	if c.Len() != DefaultMaxEntries {
		t.Errorf("Len() = %d, want %d", c.Len(), DefaultMaxEntries)
	}
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c, _ := NewLRUCache(50)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%5))
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, key, testResolution(key))
				_, _, _ = c.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()
	if c.Len() != 5 {
		t.Errorf("Len() = %d, want 5", c.Len())
	}
}

func TestRemoteExpiry(t *testing.T) {
	if got := remoteExpiry(10 * time.Minute); got != 20*time.Minute {
		t.Errorf("remoteExpiry(10m) = %v, want 20m", got)
	}
	if got := remoteExpiry(0); got != time.Hour {
		t.Errorf("remoteExpiry(0) = %v, want 1h", got)
	}
}

func TestParseAddrs(t *testing.T) {
	got := parseAddrs(" host1:11211, ,host2:11211 ")
	if len(got) != 2 || got[0] != "host1:11211" || got[1] != "host2:11211" {
		t.Errorf("parseAddrs() = %v", got)
	}
}

// TestMemcachedKey verifies every cache key maps to a legal memcached key: at most 250 bytes
// with no whitespace or control bytes, and distinct inputs stay distinct.
func TestMemcachedKey(t *testing.T) {
	long := models.WeatherQuery{Location: strings.Repeat("東", 200), Forecast: true}.Key()
	tests := []struct {
		name   string
		in     string
		hashed bool
	}{
		{"plain", "paris|true|false|false", false},
		{"space", "new york|false|false|false", true},
		{"space with multibyte", "são paulo|false|false|false", true},
		{"accented no space", "zürich|false|false|false", false},
		{"multibyte over limit", long, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := memcachedKey(tc.in)
			if len(got) > maxKeyLen {
				t.Errorf("len(memcachedKey()) = %d, want <= %d", len(got), maxKeyLen)
			}
			if !legalKeyBytes(got) {
				t.Errorf("memcachedKey(%q) = %q contains illegal bytes", tc.in, got)
			}
			if hashed := strings.HasPrefix(got, keyPrefix+"sha256:"); hashed != tc.hashed {
				t.Errorf("memcachedKey(%q) = %q, hashed = %v, want %v", tc.in, got, hashed, tc.hashed)
			}
		})
	}

	if memcachedKey("new york|false|false|false") == memcachedKey("new_york|false|false|false") {
		t.Error("keys differing only by a space must not collide")
	}
}
