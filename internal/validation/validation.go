package validation

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kjstillabower/weather-explorer/internal/models"
)

// DefaultMaxQueryLen bounds the free-text location query, in runes.
const DefaultMaxQueryLen = 200

// ErrQueryRequired is returned when the query parameter is missing or whitespace-only.
var ErrQueryRequired = errors.New("query parameter is required")

// ErrQueryTooLong is reported when the query exceeds the maximum length.
var ErrQueryTooLong = errors.New("query too long")

// ErrQueryInvalidChars is reported when the query contains control characters.
var ErrQueryInvalidChars = errors.New("query contains invalid characters")

// ErrInvalidCount is returned when a count parameter is not a positive integer.
var ErrInvalidCount = errors.New("count must be a positive integer")

// ParseWeatherQuery builds a WeatherQuery from request parameters: query (required),
// forecast, aqi and alerts. Missing location text is the only error. The text is trimmed
// and otherwise passed through, since the provider accepts names, postcodes, coordinates
// and ids.
func ParseWeatherQuery(params url.Values) (models.WeatherQuery, error) {
	loc := strings.TrimSpace(params.Get("query"))
	if loc == "" {
		return models.WeatherQuery{}, ErrQueryRequired
	}
	return models.WeatherQuery{
		Location:   loc,
		Forecast:   ParseFlag(params.Get("forecast")),
		AirQuality: ParseFlag(params.Get("aqi")),
		Alerts:     ParseFlag(params.Get("alerts")),
	}, nil
}

// CheckLocation reports whether location text is worth sending upstream: non-empty, at
// most maxLen runes (maxLen <= 0 uses DefaultMaxQueryLen) and free of control characters.
// Callers answer failing text with synthetic data rather than an error.
func CheckLocation(location string, maxLen int) error {
	if maxLen <= 0 {
		maxLen = DefaultMaxQueryLen
	}
	if strings.TrimSpace(location) == "" {
		return ErrQueryRequired
	}
	if utf8.RuneCountInString(location) > maxLen {
		return ErrQueryTooLong
	}
	if strings.IndexFunc(location, unicode.IsControl) >= 0 {
		return ErrQueryInvalidChars
	}
	return nil
}

// ParseFlag reports whether a boolean request parameter is set. "true", "1" and "yes"
// (any case) are true; everything else, including absence, is false.
func ParseFlag(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// ParseCount parses an optional count parameter. Empty returns def; values above max are
// clamped to max.
func ParseCount(raw string, def, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, ErrInvalidCount
	}
	if max > 0 && n > max {
		n = max
	}
	return n, nil
}
