package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-explorer/internal/models"
)

type fakeFetcher struct {
	mu    sync.Mutex
	errs  map[string]error
	block map[string]bool
	calls []string
	times []time.Time
}

func (f *fakeFetcher) FetchWeather(ctx context.Context, location string) (models.Envelope, error) {
	f.mu.Lock()
	f.calls = append(f.calls, location)
	f.times = append(f.times, time.Now())
	err := f.errs[location]
	block := f.block[location]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return models.Envelope{}, ctx.Err()
	}
	if err != nil {
		return models.Envelope{}, err
	}
	return models.Envelope{Location: models.LocationInfo{Name: location}}, nil
}

func (f *fakeFetcher) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeImages struct {
	err   error
	calls int
}

func (f *fakeImages) LookupImages(ctx context.Context, location string) error {
	f.calls++
	return f.err
}

func fast(opts ...Option) []Option {
	return append([]Option{WithDelay(time.Millisecond), WithRateLimitedDelay(time.Millisecond)}, opts...)
}

// TestRun_FailureDoesNotAbortBatch verifies one failing location leaves the others resolved.
func TestRun_FailureDoesNotAbortBatch(t *testing.T) {
	fetcher := &fakeFetcher{errs: map[string]error{"Tokyo": errors.New("boom")}}
	b := NewBatch("Paris", "Tokyo", "Cairo")

	err := New(fetcher, fast()...).Run(context.Background(), b)

	require.NoError(t, err)
	resolved := b.Resolved()
	assert.Len(t, resolved, 2)
	assert.Contains(t, resolved, "Paris")
	assert.Contains(t, resolved, "Cairo")
	assert.NotContains(t, resolved, "Tokyo")
	assert.Contains(t, b.Failed(), "Tokyo")
	assert.Equal(t, []string{"Paris", "Tokyo", "Cairo"}, fetcher.callList())
	assert.Equal(t, 3, b.Cursor())
	assert.Empty(t, b.Pending())
}

// TestRun_PacesRequests verifies the first request is immediate and later ones are spaced.
func TestRun_PacesRequests(t *testing.T) {
	const delay = 40 * time.Millisecond
	fetcher := &fakeFetcher{}
	b := NewBatch("a", "b", "c")

	start := time.Now()
	require.NoError(t, New(fetcher, WithDelay(delay)).Run(context.Background(), b))

	require.Len(t, fetcher.times, 3)
	assert.Less(t, fetcher.times[0].Sub(start), delay/2)
	for i := 1; i < 3; i++ {
		gap := fetcher.times[i].Sub(fetcher.times[i-1])
		assert.GreaterOrEqual(t, gap, delay-5*time.Millisecond, "gap %d", i)
	}
}

// TestRun_RateLimitedBacksOff verifies an explicit rate limit waits the extended delay and continues.
func TestRun_RateLimitedBacksOff(t *testing.T) {
	const backoff = 60 * time.Millisecond
	fetcher := &fakeFetcher{errs: map[string]error{"b": fmt.Errorf("fetch b: %w", ErrRateLimited)}}
	b := NewBatch("a", "b", "c")

	start := time.Now()
	err := New(fetcher, WithDelay(time.Millisecond), WithRateLimitedDelay(backoff)).Run(context.Background(), b)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), backoff)
	assert.Contains(t, b.Resolved(), "c")
	assert.ErrorIs(t, b.Failed()["b"], ErrRateLimited)
}

// TestRun_RequestTimeout verifies a hung fetch is abandoned and the batch continues.
func TestRun_RequestTimeout(t *testing.T) {
	fetcher := &fakeFetcher{block: map[string]bool{"slow": true}}
	b := NewBatch("slow", "fast")

	err := New(fetcher, fast(WithRequestTimeout(20*time.Millisecond))...).Run(context.Background(), b)

	require.NoError(t, err)
	assert.Contains(t, b.Resolved(), "fast")
	assert.ErrorIs(t, b.Failed()["slow"], context.DeadlineExceeded)
}

func TestRun_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &fakeFetcher{}
	b := NewBatch("a", "b", "c")

	s := New(fetcher, WithDelay(time.Hour), WithOnResolved(func(string, models.Envelope) { cancel() }))
	err := s.Run(ctx, b)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, b.Resolved(), 1)
}

// TestRun_DiscardDropsResults verifies nothing is merged after the batch is discarded.
func TestRun_DiscardDropsResults(t *testing.T) {
	fetcher := &fakeFetcher{}
	b := NewBatch("a", "b", "c")

	s := New(fetcher, fast(WithOnResolved(func(loc string, _ models.Envelope) {
		if loc == "a" {
			b.Discard()
		}
	}))...)
	require.NoError(t, s.Run(context.Background(), b))

	assert.True(t, b.Discarded())
	assert.Equal(t, []string{"a"}, fetcher.callList())
	assert.Len(t, b.Resolved(), 1)
	assert.False(t, b.merge("late", models.Envelope{}))
}

// TestRun_AppendLoadsMore verifies a second Run continues from the cursor.
func TestRun_AppendLoadsMore(t *testing.T) {
	fetcher := &fakeFetcher{}
	b := NewBatch("a", "b")
	s := New(fetcher, fast()...)

	require.NoError(t, s.Run(context.Background(), b))
	b.Append("c", "d")
	assert.Equal(t, []string{"c", "d"}, b.Pending())
	require.NoError(t, s.Run(context.Background(), b))

	assert.Equal(t, []string{"a", "b", "c", "d"}, fetcher.callList())
	assert.Len(t, b.Resolved(), 4)
}

func TestRun_OnResolvedOrder(t *testing.T) {
	var order []string
	b := NewBatch("x", "y", "z")
	s := New(&fakeFetcher{}, fast(WithOnResolved(func(loc string, env models.Envelope) {
		assert.Equal(t, loc, env.Location.Name)
		order = append(order, loc)
	}))...)

	require.NoError(t, s.Run(context.Background(), b))
	assert.Equal(t, []string{"x", "y", "z"}, order)
}

// TestRun_ImageFailureKeepsWeather verifies a failed image lookup is logged and the weather kept.
func TestRun_ImageFailureKeepsWeather(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	images := &fakeImages{err: errors.New("images unavailable")}
	b := NewBatch("Paris", "Rome")

	s := New(&fakeFetcher{}, fast(WithImageLookup(images), WithLogger(zap.New(core)))...)
	require.NoError(t, s.Run(context.Background(), b))

	assert.Len(t, b.Resolved(), 2)
	assert.Equal(t, 2, images.calls)
	assert.Equal(t, 2, logs.FilterMessage("image lookup failed").Len())
}

// TestRun_SharedLimiter verifies two sequencers sharing a limiter do not overlap their pacing.
func TestRun_SharedLimiter(t *testing.T) {
	const delay = 30 * time.Millisecond
	limiter := rate.NewLimiter(rate.Every(delay), 1)
	fetcher := &fakeFetcher{}

	var wg sync.WaitGroup
	for _, locs := range [][]string{{"a", "b"}, {"c", "d"}} {
		wg.Add(1)
		go func(locs []string) {
			defer wg.Done()
			_ = New(fetcher, WithLimiter(limiter)).Run(context.Background(), NewBatch(locs...))
		}(locs)
	}
	start := time.Now()
	wg.Wait()

	assert.Len(t, fetcher.callList(), 4)
	assert.GreaterOrEqual(t, time.Since(start), 3*delay-10*time.Millisecond)
}
