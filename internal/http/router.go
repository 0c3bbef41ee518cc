package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-explorer/internal/observability"
)

// RouterConfig controls the middleware applied to the weather routes.
type RouterConfig struct {
	// Limiter throttles /weather; nil disables rate limiting.
	Limiter        *rate.Limiter
	RequestTimeout time.Duration
}

// NewRouter wires the handler's routes:
//
//	GET /weather?query=...       weather envelope (rate limited, with timeout)
//	GET /locations/random        curated destinations
//	GET /health                  lifecycle status
//	GET /metrics                 Prometheus exposition
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/locations/random", h.GetRandomLocations).Methods(http.MethodGet)

	weatherRouter := router.Path("/weather").Subrouter()
	weatherRouter.Use(RateLimitMiddleware(cfg.Limiter))
	weatherRouter.Use(TimeoutMiddleware(cfg.RequestTimeout))
	weatherRouter.Methods(http.MethodGet).HandlerFunc(h.GetWeather)

	return router
}
