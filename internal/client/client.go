package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/weather-explorer/internal/circuitbreaker"
	"github.com/kjstillabower/weather-explorer/internal/models"
	"github.com/kjstillabower/weather-explorer/internal/observability"
)

// WeatherClient fetches raw provider payloads. Fetch returns a Go error only for transport
// faults; HTTP error statuses are reported through the Outcome.
type WeatherClient interface {
	Fetch(ctx context.Context, q models.WeatherQuery) (Outcome, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrInvalidAPIKey = errors.New("invalid API key")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnexpected    = errors.New("unexpected upstream status")

	errServerFailure = errors.New("upstream server failure")
)

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 4 << 20

// OutcomeKind classifies an HTTP exchange with the provider.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRateLimited
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "failure"
	}
}

// ProviderError is the structured error body returned by the provider:
// {"error":{"code":2008,"message":"API key has been disabled."}}.
type ProviderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// Outcome is the result of one completed HTTP exchange. Body is uninterpreted on success.
type Outcome struct {
	Kind          OutcomeKind
	StatusCode    int
	Body          []byte
	ProviderError *ProviderError
}

// WeatherAPIClient talks to the weatherapi.com v1 REST API.
type WeatherAPIClient struct {
	apiKey         string
	apiURL         string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

func NewWeatherAPIClient(apiKey, apiURL string, timeout time.Duration) (*WeatherAPIClient, error) {
	return NewWeatherAPIClientWithRetry(apiKey, apiURL, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

func NewWeatherAPIClientWithRetry(apiKey, apiURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*WeatherAPIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if _, err := url.Parse(apiURL); err != nil || apiURL == "" {
		return nil, fmt.Errorf("invalid API URL %q", apiURL)
	}
	if retryAttempts <= 0 {
		retryAttempts = 1
	}

	return &WeatherAPIClient{
		apiKey:         apiKey,
		apiURL:         strings.TrimRight(apiURL, "/"),
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker routes every Fetch through cb. Transport faults and 5xx outcomes
// count as failures; 4xx and 429 do not.
func (c *WeatherAPIClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// Fetch performs the lookup described by q against current.json, or forecast.json when
// q.Forecast is set.
func (c *WeatherAPIClient) Fetch(ctx context.Context, q models.WeatherQuery) (Outcome, error) {
	if c.breaker == nil {
		return c.fetchWithRetry(ctx, q)
	}

	var out Outcome
	err := c.breaker.Call(ctx, func() error {
		var callErr error
		out, callErr = c.fetchWithRetry(ctx, q)
		if callErr != nil {
			return callErr
		}
		if out.Kind == OutcomeFailure && out.StatusCode >= 500 {
			return errServerFailure
		}
		return nil
	})
	if errors.Is(err, errServerFailure) {
		return out, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func (c *WeatherAPIClient) fetchWithRetry(ctx context.Context, q models.WeatherQuery) (Outcome, error) {
	var (
		lastOut Outcome
		lastErr error
	)

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return Outcome{}, ctx.Err()
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		out, err := c.callAPI(ctx, q)
		if err == nil && !isRetryableOutcome(out) {
			return out, nil
		}
		if err != nil && ctx.Err() != nil {
			return Outcome{}, fmt.Errorf("request canceled: %w", err)
		}
		lastOut, lastErr = out, err
	}

	if lastErr != nil {
		return Outcome{}, fmt.Errorf("exhausted retries: %w", lastErr)
	}
	return lastOut, nil
}

// isRetryableOutcome reports whether a completed exchange is worth retrying. Only server
// errors are; rate limits and client errors are returned to the caller immediately.
func isRetryableOutcome(out Outcome) bool {
	return out.Kind == OutcomeFailure && out.StatusCode >= 500
}

func (c *WeatherAPIClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *WeatherAPIClient) callAPI(ctx context.Context, q models.WeatherQuery) (Outcome, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, q)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return Outcome{}, fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) {
			return Outcome{}, fmt.Errorf("request timeout: %w", err)
		}
		return Outcome{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if err != nil {
		return Outcome{}, fmt.Errorf("read response body: %w", err)
	}

	return newOutcome(resp.StatusCode, body), nil
}

func newOutcome(statusCode int, body []byte) Outcome {
	out := Outcome{StatusCode: statusCode, Body: body}
	switch {
	case statusCode >= 200 && statusCode < 300:
		out.Kind = OutcomeSuccess
	case statusCode == http.StatusTooManyRequests:
		out.Kind = OutcomeRateLimited
		out.ProviderError = parseProviderError(body)
	default:
		out.Kind = OutcomeFailure
		out.ProviderError = parseProviderError(body)
	}
	return out
}

func parseProviderError(body []byte) *ProviderError {
	var envelope struct {
		Error *ProviderError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil || envelope.Error.Code == 0 {
		return nil
	}
	return envelope.Error
}

func (c *WeatherAPIClient) buildRequest(ctx context.Context, q models.WeatherQuery) (*http.Request, error) {
	endpoint := "/current.json"
	if q.Forecast {
		endpoint = "/forecast.json"
	}
	baseURL, err := url.Parse(c.apiURL + endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("q", strings.TrimSpace(q.Location))
	params.Set("aqi", yesNo(q.AirQuality))
	if q.Forecast {
		params.Set("days", "7")
		params.Set("alerts", yesNo(q.Alerts))
	}
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

// ValidateAPIKey issues a lightweight current-conditions call and reports credential problems.
func (c *WeatherAPIClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, models.WeatherQuery{Location: "London"})
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	out := newOutcome(resp.StatusCode, body)
	switch Classify(out, nil) {
	case models.ReasonNone:
		return nil
	case models.ReasonCredential:
		return fmt.Errorf("%w: API key is invalid, disabled or over quota", ErrInvalidAPIKey)
	case models.ReasonRateLimited:
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: HTTP %d", ErrUnexpected, resp.StatusCode)
	}
}
