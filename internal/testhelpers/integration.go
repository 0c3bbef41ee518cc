//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-explorer/internal/cache"
	"github.com/kjstillabower/weather-explorer/internal/client"
	"github.com/kjstillabower/weather-explorer/internal/service"
	"github.com/kjstillabower/weather-explorer/internal/synthetic"
)

// IntegrationTestConfig holds configuration for tests against the live provider.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "in_memory", "memcached" or "redis"
	MemcachedAddr string
	RedisAddr     string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        envOr("WEATHER_API_URL", "https://api.weatherapi.com/v1"),
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: envOr("MEMCACHED_ADDRS", "localhost:11211"),
		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// SetupIntegrationService creates a service wired to the live provider. Shared cache
// backends fall back to the in-memory LRU when unreachable.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, cache.Cache) {
	t.Helper()
	weatherClient, err := client.NewWeatherAPIClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewWeatherAPIClient() error = %v", err)
	}

	cacheSvc := setupCache(t, cfg)
	return service.NewWeatherService(weatherClient, cacheSvc, synthetic.New(), 5*time.Minute), cacheSvc
}

func setupCache(t *testing.T, cfg IntegrationTestConfig) cache.Cache {
	t.Helper()
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2, 5*time.Minute)
		if err == nil && mc.Ping() == nil {
			t.Cleanup(func() { _ = mc.Close() })
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
			return mc
		}
		t.Logf("Memcached not available at %s, using in-memory cache", cfg.MemcachedAddr)
	case "redis":
		rc := cache.NewRedisCache(cache.RedisConfig{Addr: cfg.RedisAddr}, 5*time.Minute)
		if err := rc.Ping(context.Background()); err == nil {
			t.Cleanup(func() { _ = rc.Close() })
			t.Logf("Using Redis cache at %s", cfg.RedisAddr)
			return rc
		}
		_ = rc.Close()
		t.Logf("Redis not available at %s, using in-memory cache", cfg.RedisAddr)
	}
	lru, err := cache.NewLRUCache(cache.DefaultMaxEntries)
	if err != nil {
		t.Fatalf("NewLRUCache() error = %v", err)
	}
	return lru
}
