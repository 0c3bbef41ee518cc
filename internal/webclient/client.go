// Package webclient calls a running weather-explorer service over HTTP.
package webclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-explorer/internal/locations"
	"github.com/kjstillabower/weather-explorer/internal/models"
	"github.com/kjstillabower/weather-explorer/internal/sequencer"
)

const defaultTimeout = 10 * time.Second

// StatusError is a non-2xx answer from the service, decoded from its error body when present.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("service returned status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap lets errors.Is(err, sequencer.ErrRateLimited) match 429 answers.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return sequencer.ErrRateLimited
	}
	return nil
}

// QueryOptions are the feature flags sent with every weather lookup.
type QueryOptions struct {
	Forecast   bool
	AirQuality bool
	Alerts     bool
}

// Client implements sequencer.Fetcher against GET /weather.
type Client struct {
	client *resty.Client
	opts   QueryOptions
}

func New(baseURL string, opts QueryOptions, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	rc := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(defaultTimeout)

	rc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if req.Header.Get("X-Correlation-ID") == "" {
			req.SetHeader("X-Correlation-ID", uuid.New().String())
		}
		return nil
	})
	rc.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug("service response",
			zap.String("url", resp.Request.URL),
			zap.Int("status", resp.StatusCode()),
			zap.Duration("duration", resp.Time()),
			zap.String("resolution", resp.Header().Get("X-Weather-Resolution")))
		return nil
	})

	return &Client{client: rc, opts: opts}
}

// SetTimeout bounds each HTTP exchange.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.SetTimeout(timeout)
}

// FetchWeather returns the envelope for location. A 429 yields an error matching
// sequencer.ErrRateLimited; degraded envelopes are returned as successes with Notice set.
func (c *Client) FetchWeather(ctx context.Context, location string) (models.Envelope, error) {
	var env models.Envelope
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":    location,
			"forecast": strconv.FormatBool(c.opts.Forecast),
			"aqi":      strconv.FormatBool(c.opts.AirQuality),
			"alerts":   strconv.FormatBool(c.opts.Alerts),
		}).
		SetResult(&env).
		Get("/weather")
	if err != nil {
		return models.Envelope{}, fmt.Errorf("fetch weather for %q: %w", location, err)
	}
	if !resp.IsSuccess() {
		return models.Envelope{}, fmt.Errorf("fetch weather for %q: %w", location, parseStatusError(resp))
	}
	return env, nil
}

// RandomLocations asks the service for count curated destinations.
func (c *Client) RandomLocations(ctx context.Context, count int) ([]locations.Destination, error) {
	var body struct {
		Locations []locations.Destination `json:"locations"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("count", strconv.Itoa(count)).
		SetResult(&body).
		Get("/locations/random")
	if err != nil {
		return nil, fmt.Errorf("random locations: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("random locations: %w", parseStatusError(resp))
	}
	return body.Locations, nil
}

func parseStatusError(resp *resty.Response) error {
	se := &StatusError{StatusCode: resp.StatusCode()}
	var body struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			RequestID string `json:"requestId"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		se.Code = body.Error.Code
		se.Message = body.Error.Message
		se.RequestID = body.Error.RequestID
	}
	return se
}
