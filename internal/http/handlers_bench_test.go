package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-explorer/internal/locations"
	"github.com/kjstillabower/weather-explorer/internal/models"
)

func setupBenchmarkRouter(res models.Resolution, cfg RouterConfig) http.Handler {
	handler := NewHandler(&mockResolver{res: res}, locations.Default(), &HealthConfig{
		OverloadWindow:       time.Minute,
		OverloadThresholdPct: 80,
		RateLimitRPS:         100,
		DegradedWindow:       5 * time.Minute,
		DegradedPct:          50,
		KeyProbeInterval:     time.Minute,
	}, zap.NewNop())
	return NewRouter(handler, zap.NewNop(), cfg)
}

func runBenchmark(b *testing.B, router http.Handler, path string) {
	b.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
	}
}

func BenchmarkHandler_GetWeather_Resolved(b *testing.B) {
	runBenchmark(b, setupBenchmarkRouter(models.Resolved(parisEnvelope()), RouterConfig{}), "/weather?query=Paris")
}

func BenchmarkHandler_GetWeather_Degraded(b *testing.B) {
	res := models.Degraded(parisEnvelope(), models.ReasonCredential)
	runBenchmark(b, setupBenchmarkRouter(res, RouterConfig{}), "/weather?query=Paris&forecast=true")
}

func BenchmarkHandler_GetWeather_ValidationError(b *testing.B) {
	runBenchmark(b, setupBenchmarkRouter(models.Resolution{}, RouterConfig{}), "/weather")
}

// BenchmarkHandler_GetWeather_RateLimited measures limiter overhead with a bucket that never empties.
func BenchmarkHandler_GetWeather_RateLimited(b *testing.B) {
	cfg := RouterConfig{Limiter: rate.NewLimiter(rate.Inf, 1), RequestTimeout: time.Second}
	runBenchmark(b, setupBenchmarkRouter(models.Resolved(parisEnvelope()), cfg), "/weather?query=Paris")
}

func BenchmarkHandler_GetRandomLocations(b *testing.B) {
	runBenchmark(b, setupBenchmarkRouter(models.Resolution{}, RouterConfig{}), "/locations/random?count=5")
}

func BenchmarkHandler_GetHealth(b *testing.B) {
	runBenchmark(b, setupBenchmarkRouter(models.Resolution{}, RouterConfig{}), "/health")
}
