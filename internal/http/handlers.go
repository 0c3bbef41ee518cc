package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-explorer/internal/client"
	"github.com/kjstillabower/weather-explorer/internal/locations"
	"github.com/kjstillabower/weather-explorer/internal/models"
	"github.com/kjstillabower/weather-explorer/internal/observability"
	"github.com/kjstillabower/weather-explorer/internal/traffic"
	"github.com/kjstillabower/weather-explorer/internal/validation"
)

// DefaultRandomCount is how many destinations /locations/random returns without ?count.
const DefaultRandomCount = 3

// WeatherResolver is implemented by service.WeatherService.
type WeatherResolver interface {
	Resolve(ctx context.Context, q models.WeatherQuery) models.Resolution
	ValidateAPIKey(ctx context.Context) error
}

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	RateLimitBurst       int // 0 when rate limiter disabled
	DegradedWindow       time.Duration
	DegradedPct          int
	// KeyProbeInterval caches the API key probe result; zero probes on every request.
	KeyProbeInterval time.Duration
	// CachePing, when set, is called to check reachability of a shared cache backend.
	CachePing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	resolver         WeatherResolver
	catalog          *locations.Catalog
	healthConfig     *HealthConfig
	logger           *zap.Logger
	probe            *keyProbe
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	resolver WeatherResolver,
	catalog *locations.Catalog,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	var interval time.Duration
	if healthConfig != nil {
		interval = healthConfig.KeyProbeInterval
	}
	return &Handler{
		resolver:     resolver,
		catalog:      catalog,
		healthConfig: healthConfig,
		logger:       logger,
		probe:        &keyProbe{check: resolver.ValidateAPIKey, interval: interval, now: time.Now},
	}
}

// GetWeather handles GET /weather?query=&forecast=&aqi=&alerts=. Any query with location text
// gets a 200: resolved data is the provider's payload byte for byte, degraded envelopes carry
// a notice.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	q, err := validation.ParseWeatherQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", "Query parameter is required")
		return
	}

	res := h.resolver.Resolve(r.Context(), q)
	body, err := res.Payload()
	if err != nil {
		observability.LoggerOr(r.Context(), h.logger).Error("encode weather payload", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Failed to encode weather data")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Weather-Resolution", string(res.Kind))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// GetRandomLocations handles GET /locations/random?count=N.
func (h *Handler) GetRandomLocations(w http.ResponseWriter, r *http.Request) {
	count, err := validation.ParseCount(r.URL.Query().Get("count"), DefaultRandomCount, h.catalog.Len())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COUNT", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"locations": h.catalog.Random(count),
	})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.reason == "api_key_invalid" || result.reason == "degraded_rate_breach" {
		checks["weatherApi"] = "unhealthy"
	} else {
		checks["weatherApi"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing(r.Context()) == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "weather-explorer",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > API key invalid > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if err := h.probe.Check(ctx); err != nil && errors.Is(err, client.ErrInvalidAPIKey) {
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if h.healthConfig.RateLimitRPS > 0 && h.healthConfig.OverloadWindow > 0 {
		threshold := float64(h.healthConfig.RateLimitRPS) * h.healthConfig.OverloadWindow.Seconds() * float64(h.healthConfig.OverloadThresholdPct) / 100
		if float64(traffic.RequestCount(h.healthConfig.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	// Degraded responses are still 200s to clients, so a high share of them is the signal
	// that upstream is unusable.
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedPct > 0 {
		degradedCount, total := traffic.DegradedRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(degradedCount) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "degraded_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// keyProbe memoizes API key validation so health checks do not spend provider quota.
type keyProbe struct {
	check    func(ctx context.Context) error
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	lastAt  time.Time
	lastErr error
}

func (p *keyProbe) Check(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interval > 0 && !p.lastAt.IsZero() && p.now().Sub(p.lastAt) < p.interval {
		return p.lastErr
	}
	p.lastErr = p.check(ctx)
	p.lastAt = p.now()
	return p.lastErr
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}
