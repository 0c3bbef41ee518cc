package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-explorer/internal/cache"
	"github.com/kjstillabower/weather-explorer/internal/client"
	"github.com/kjstillabower/weather-explorer/internal/models"
	"github.com/kjstillabower/weather-explorer/internal/observability"
	"github.com/kjstillabower/weather-explorer/internal/traffic"
	"github.com/kjstillabower/weather-explorer/internal/validation"
)

// DefaultTTL is how long a cached resolution is served without asking upstream again.
const DefaultTTL = 10 * time.Minute

// Synthesizer builds a complete envelope without network access.
type Synthesizer interface {
	Generate(q models.WeatherQuery) models.Envelope
}

// WeatherService turns an unreliable upstream into a resolution the caller can always
// render: cached data, fresh upstream data, or synthetic data with a notice.
type WeatherService struct {
	client    client.WeatherClient
	cache     cache.Cache
	synth     Synthesizer
	ttl       time.Duration
	now       func() time.Time
	coalescer *requestCoalescer // nil if disabled
	maxLen    int
	logger    *zap.Logger
}

// Option configures a WeatherService.
type Option func(*WeatherService)

// WithClock overrides the clock used to judge cache freshness.
func WithClock(now func() time.Time) Option {
	return func(s *WeatherService) { s.now = now }
}

// WithCoalescing shares one upstream call among concurrent lookups of the same query.
// A zero timeout leaves coalescing disabled.
func WithCoalescing(timeout time.Duration) Option {
	return func(s *WeatherService) {
		if timeout > 0 {
			s.coalescer = newRequestCoalescer(timeout)
		}
	}
}

// WithMaxQueryLength bounds the location text sent upstream, in runes. Longer text is
// answered with synthetic data. n <= 0 uses validation.DefaultMaxQueryLen.
func WithMaxQueryLength(n int) Option {
	return func(s *WeatherService) { s.maxLen = n }
}

// WithLogger sets the logger used when the request context carries none (e.g. cache warming).
func WithLogger(logger *zap.Logger) Option {
	return func(s *WeatherService) { s.logger = logger }
}

// NewWeatherService creates a WeatherService. ttl <= 0 uses DefaultTTL.
func NewWeatherService(client client.WeatherClient, cache cache.Cache, synth Synthesizer, ttl time.Duration, opts ...Option) *WeatherService {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &WeatherService{
		client: client,
		cache:  cache,
		synth:  synth,
		ttl:    ttl,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns weather for q. It never fails: when upstream cannot provide valid data the
// result is Degraded with a synthetic envelope and the reason.
//
// Cache policy: Resolved results and credential failures are cached for the TTL. Rate limits
// and other failures are not, so the next lookup tries upstream again.
func (s *WeatherService) Resolve(ctx context.Context, q models.WeatherQuery) models.Resolution {
	key := q.Key()
	start := s.now()
	logger := observability.LoggerOr(ctx, s.logger).With(zap.String("query_key", key))
	observability.RecordWeatherQuery(q.Location)

	if err := validation.CheckLocation(q.Location, s.maxLen); err != nil {
		logger.Info("location not sent upstream", zap.Error(err))
		res := s.degrade(q, models.ReasonUpstreamError)
		s.record(res)
		return res
	}

	if res, ok := s.lookup(ctx, key, logger); ok {
		res = forQuery(res, q)
		s.record(res)
		logger.Debug("weather served",
			zap.Bool("cached", true),
			zap.String("kind", string(res.Kind)),
			zap.Duration("duration", s.now().Sub(start)),
		)
		return res
	}

	var res models.Resolution
	if s.coalescer != nil {
		var (
			shared bool
			err    error
		)
		res, shared, err = s.coalescer.Do(ctx, key, func(fctx context.Context) models.Resolution {
			return s.resolveUpstream(fctx, q, key, logger)
		})
		if shared {
			observability.RequestCoalescedTotal.Inc()
		}
		if err != nil {
			logger.Warn("coalesced lookup abandoned", zap.Error(err))
			res = s.degrade(q, models.ReasonTransport)
		}
	} else {
		res = s.resolveUpstream(ctx, q, key, logger)
	}

	res = forQuery(res, q)
	s.record(res)
	logger.Debug("weather served",
		zap.Bool("cached", false),
		zap.String("kind", string(res.Kind)),
		zap.String("reason", string(res.Reason)),
		zap.Duration("duration", s.now().Sub(start)),
	)
	return res
}

// lookup returns a fresh cached resolution. Read errors are logged and treated as a miss.
func (s *WeatherService) lookup(ctx context.Context, key string, logger *zap.Logger) (models.Resolution, bool) {
	entry, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("cache get failed", zap.Error(err))
		observability.CacheMissesTotal.Inc()
		return models.Resolution{}, false
	}
	if !ok || !entry.IsFresh(s.now(), s.ttl) {
		observability.CacheMissesTotal.Inc()
		return models.Resolution{}, false
	}
	observability.CacheHitsTotal.Inc()
	return entry.Payload, true
}

func (s *WeatherService) resolveUpstream(ctx context.Context, q models.WeatherQuery, key string, logger *zap.Logger) models.Resolution {
	out, err := s.client.Fetch(ctx, q)
	reason := client.Classify(out, err)

	var res models.Resolution
	switch reason {
	case models.ReasonNone:
		resolved, decodeErr := models.ResolvedPayload(out.Body)
		if decodeErr != nil {
			logger.Warn("upstream payload rejected", zap.Error(decodeErr), zap.Int("bytes", len(out.Body)))
			res = s.degrade(q, models.ReasonUpstreamError)
			break
		}
		res = resolved
	case models.ReasonTransport:
		logger.Warn("upstream unreachable",
			zap.Error(err),
			zap.String("category", string(client.CategorizeError(err))),
		)
		res = s.degrade(q, reason)
	default:
		fields := []zap.Field{zap.String("reason", string(reason)), zap.Int("status", out.StatusCode)}
		if out.ProviderError != nil {
			fields = append(fields, zap.Int("provider_code", out.ProviderError.Code), zap.String("provider_message", out.ProviderError.Message))
		}
		logger.Info("serving synthetic weather", fields...)
		res = s.degrade(q, reason)
	}

	if cacheable(res) {
		s.store(ctx, key, res, logger)
	}
	return res
}

// forQuery names a synthetic envelope after the requested text. Keys ignore case, so a
// cached or shared synthetic result may have been generated for another spelling.
func forQuery(res models.Resolution, q models.WeatherQuery) models.Resolution {
	if res.IsDegraded() {
		res.Envelope.Location.Name = q.Location
	}
	return res
}

func cacheable(res models.Resolution) bool {
	return !res.IsDegraded() || res.Reason == models.ReasonCredential
}

func (s *WeatherService) degrade(q models.WeatherQuery, reason models.DegradedReason) models.Resolution {
	return models.Degraded(s.synth.Generate(q), reason)
}

func (s *WeatherService) store(ctx context.Context, key string, res models.Resolution, logger *zap.Logger) {
	if err := s.cache.Set(ctx, key, res); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		logger.Warn("cache set failed", zap.Error(err))
	}
}

func (s *WeatherService) record(res models.Resolution) {
	observability.RecordResolution(string(res.Kind), string(res.Reason))
	if res.IsDegraded() {
		traffic.RecordDegraded()
		return
	}
	traffic.RecordResolved()
}

// ValidateAPIKey probes upstream credentials. Used by the health endpoint.
func (s *WeatherService) ValidateAPIKey(ctx context.Context) error {
	return s.client.ValidateAPIKey(ctx)
}
