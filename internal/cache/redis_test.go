package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/weather-explorer/internal/models"
)

func newTestRedisCache(t *testing.T, now func() time.Time) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCacheFromClient(client, 10*time.Minute, WithClock(now))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCache_GetSet(t *testing.T) {
	stored := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c, _ := newTestRedisCache(t, func() time.Time { return stored })
	ctx := context.Background()

	degraded := models.Degraded(models.Envelope{
		Location: models.LocationInfo{Name: "Paris"},
		Current:  models.CurrentConditions{Condition: models.Condition{Text: "Sunny", Icon: "i"}},
	}, models.ReasonCredential)
	require.NoError(t, c.Set(ctx, "paris|true|false|false", degraded))

	got, ok, err := c.Get(ctx, "paris|true|false|false")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.KindDegraded, got.Payload.Kind)
	assert.Equal(t, models.ReasonCredential, got.Payload.Reason)
	assert.Equal(t, "Paris", got.Payload.Envelope.Location.Name)
	assert.True(t, got.StoredAt.Equal(stored))
	assert.Equal(t, models.NoticeCredential, got.Payload.Notice())
}

// TestRedisCache_KeepsProviderBytes verifies a resolved payload survives the JSON round trip
// byte for byte, whitespace and unmodelled fields included.
func TestRedisCache_KeepsProviderBytes(t *testing.T) {
	c, _ := newTestRedisCache(t, time.Now)
	ctx := context.Background()
	raw := []byte("{\"location\": {\"name\":\"Paris\"},\n\"current\":{\"condition\":{\"text\":\"Sunny\",\"icon\":\"i\"},\"vis_km\":10}}")
	res, err := models.ResolvedPayload(raw)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "paris|false|false|false", res))

	got, ok, err := c.Get(ctx, "paris|false|false|false")
	require.NoError(t, err)
	require.True(t, ok)
	payload, err := got.Payload.Payload()
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(payload))
}

func TestRedisCache_Miss(t *testing.T) {
	c, _ := newTestRedisCache(t, time.Now)

	_, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestRedisCache_ExpiryIsTwiceTTL verifies that Redis keeps entries past the freshness TTL.
func TestRedisCache_ExpiryIsTwiceTTL(t *testing.T) {
	c, mr := newTestRedisCache(t, time.Now)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", testResolution("x")))

	assert.Equal(t, 20*time.Minute, mr.TTL(keyPrefix+"k"))

	mr.FastForward(15 * time.Minute)
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "stale entry should still be readable")

	mr.FastForward(6 * time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	c, mr := newTestRedisCache(t, time.Now)
	require.NoError(t, mr.Set(keyPrefix+"bad", "not json"))

	_, ok, err := c.Get(context.Background(), "bad")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedisCache_Unreachable(t *testing.T) {
	c, mr := newTestRedisCache(t, time.Now)
	require.NoError(t, c.Ping(context.Background()))
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, c.Set(context.Background(), "k", testResolution("x")))
}
