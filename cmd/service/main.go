package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-explorer/internal/cache"
	"github.com/kjstillabower/weather-explorer/internal/circuitbreaker"
	"github.com/kjstillabower/weather-explorer/internal/client"
	"github.com/kjstillabower/weather-explorer/internal/config"
	httphandler "github.com/kjstillabower/weather-explorer/internal/http"
	"github.com/kjstillabower/weather-explorer/internal/locations"
	"github.com/kjstillabower/weather-explorer/internal/observability"
	"github.com/kjstillabower/weather-explorer/internal/service"
	"github.com/kjstillabower/weather-explorer/internal/synthetic"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// .env is optional; real environment variables take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("load .env", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherClient, err := client.NewWeatherAPIClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "weather_api",
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String())
				logger.Warn("circuit breaker state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		weatherClient.SetCircuitBreaker(cb)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	backend, err := buildCache(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}

	opts := []service.Option{service.WithLogger(logger), service.WithMaxQueryLength(cfg.MaxQueryLength)}
	if cfg.CoalesceEnabled {
		opts = append(opts, service.WithCoalescing(cfg.CoalesceTimeout))
	}
	weatherService := service.NewWeatherService(weatherClient, backend.cache, synthetic.New(), cfg.CacheTTL, opts...)

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		RateLimitBurst:       cfg.RateLimitBurst,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedPct:          cfg.DegradedPct,
		KeyProbeInterval:     cfg.KeyProbeInterval,
		CachePing:            backend.ping,
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	catalog := locations.Default()
	handler := httphandler.NewHandler(weatherService, catalog, healthConfig, logger)

	observability.RegisterRateLimitGauges(cfg.OverloadWindow)
	tracked := cfg.TrackedLocations
	if len(tracked) == 0 {
		tracked = catalog.Names()
	}
	observability.SetTrackedLocations(tracked)

	warmCtx, stopWarming := context.WithCancel(context.Background())
	defer stopWarming()
	if cfg.WarmCache {
		startWarming(warmCtx, weatherService, tracked, cfg.WarmInterval, logger)
	}

	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", ":"+cfg.ServerPort),
			zap.String("cache_backend", cfg.CacheBackend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	httphandler.SetShuttingDown(true)
	stopWarming()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger, cfg.DegradedWindow); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if backend.closer != nil {
		if err := backend.closer.Close(); err != nil {
			logger.Error("cache close", zap.Error(err), zap.String("backend", cfg.CacheBackend))
		}
	}
	logger.Info("shutdown complete")
}

// cacheBackend is the configured cache plus its optional health probe and closer.
type cacheBackend struct {
	cache  cache.Cache
	ping   func(ctx context.Context) error
	closer io.Closer
}

// buildCache constructs the backend named by cfg.CacheBackend. Shared backends are pinged
// once at startup; an unreachable one is logged, not fatal, since lookups degrade to misses.
func buildCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cacheBackend, error) {
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.CacheTTL)
		if err != nil {
			return cacheBackend{}, fmt.Errorf("memcached cache: %w", err)
		}
		if err := mc.Ping(); err != nil {
			logger.Warn("memcached unreachable at startup", zap.Error(err))
		}
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return cacheBackend{
			cache:  mc,
			ping:   func(context.Context) error { return mc.Ping() },
			closer: mc,
		}, nil
	case "redis":
		rc := cache.NewRedisCache(cache.RedisConfig{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  cfg.RedisTimeout,
			ReadTimeout:  cfg.RedisTimeout,
			WriteTimeout: cfg.RedisTimeout,
		}, cfg.CacheTTL)
		if err := rc.Ping(ctx); err != nil {
			logger.Warn("redis unreachable at startup", zap.Error(err))
		}
		logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr))
		return cacheBackend{cache: rc, ping: rc.Ping, closer: rc}, nil
	default:
		lru, err := cache.NewLRUCache(cfg.CacheMaxEntries)
		if err != nil {
			return cacheBackend{}, fmt.Errorf("in-memory cache: %w", err)
		}
		logger.Info("cache backend: in_memory", zap.Int("max_entries", cfg.CacheMaxEntries))
		return cacheBackend{cache: lru}, nil
	}
}

// startWarming pre-resolves the tracked locations once, then every interval when set.
func startWarming(ctx context.Context, svc cache.Resolver, locs []string, interval time.Duration, logger *zap.Logger) {
	warmer := cache.NewCacheWarmer(svc, logger)
	go func() {
		initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := warmer.Warm(initCtx, locs); err != nil {
			logger.Warn("cache warming incomplete", zap.Error(err))
		}
		cancel()
		if interval <= 0 {
			return
		}
		if err := warmer.WarmPeriodic(ctx, locs, interval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("periodic cache warming stopped", zap.Error(err))
		}
	}()
}
