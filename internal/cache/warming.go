package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weather-explorer/internal/models"
	"github.com/kjstillabower/weather-explorer/internal/observability"
)

// Resolver is implemented by the service layer. Used by CacheWarmer to avoid a circular
// dependency on the service package.
type Resolver interface {
	Resolve(ctx context.Context, q models.WeatherQuery) models.Resolution
}

// defaultWarmConcurrency caps parallel upstream calls during a warm run.
const defaultWarmConcurrency = 4

// CacheWarmer warms the cache by resolving a list of locations through the service.
type CacheWarmer struct {
	resolver    Resolver
	logger      *zap.Logger
	concurrency int
}

// NewCacheWarmer creates a CacheWarmer that uses the given resolver and logger.
func NewCacheWarmer(resolver Resolver, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{resolver: resolver, logger: logger, concurrency: defaultWarmConcurrency}
}

// WarmQuery is the query warmed for each location: current conditions plus forecast,
// matching what destination cards request.
func WarmQuery(location string) models.WeatherQuery {
	return models.WeatherQuery{Location: location, Forecast: true}
}

// Warm resolves each location with bounded concurrency. Degraded resolutions count as
// failures and are returned aggregated; they never stop the run.
func (w *CacheWarmer) Warm(ctx context.Context, locations []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("locations", len(locations)))

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, loc := range locations {
		g.Go(func() error {
			res := w.resolver.Resolve(gctx, WarmQuery(loc))
			if res.IsDegraded() {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: degraded (%s)", loc, res.Reason))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("locations", len(locations)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration),
	)
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, locations []string, interval time.Duration) error {
	if err := w.Warm(ctx, locations); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, locations); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
