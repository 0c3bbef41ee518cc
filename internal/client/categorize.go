package client

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/kjstillabower/weather-explorer/internal/circuitbreaker"
	"github.com/kjstillabower/weather-explorer/internal/models"
)

// Provider error codes that mean the key cannot be used: missing key, invalid key,
// quota exceeded, key disabled, and key lacking access to the resource.
var credentialCodes = map[int]bool{
	1002: true,
	2006: true,
	2007: true,
	2008: true,
	2009: true,
}

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

const (
	ErrorCategoryTimeout     ErrorCategory = "timeout"
	ErrorCategoryNetwork     ErrorCategory = "network"
	ErrorCategoryCircuitOpen ErrorCategory = "circuit_open"
	ErrorCategoryUnknown     ErrorCategory = "unknown"
)

// Classify maps the result of Fetch to the reason a synthetic envelope must be served.
// It returns models.ReasonNone for a successful exchange.
func Classify(out Outcome, err error) models.DegradedReason {
	if err != nil {
		return models.ReasonTransport
	}

	switch out.Kind {
	case OutcomeSuccess:
		return models.ReasonNone
	case OutcomeRateLimited:
		return models.ReasonRateLimited
	}

	if out.ProviderError != nil && credentialCodes[out.ProviderError.Code] {
		return models.ReasonCredential
	}
	if out.StatusCode == http.StatusUnauthorized || out.StatusCode == http.StatusForbidden {
		return models.ReasonCredential
	}
	// Some gateways strip the structured body and leave only a message.
	if mentionsDisabledKey(out) {
		return models.ReasonCredential
	}
	return models.ReasonUpstreamError
}

func mentionsDisabledKey(out Outcome) bool {
	msg := string(out.Body)
	if out.ProviderError != nil {
		msg = out.ProviderError.Message
	}
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "api key has been disabled") || strings.Contains(msg, "api key is invalid")
}

// CategorizeError labels a transport error returned by Fetch.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return ErrorCategoryCircuitOpen
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return ErrorCategoryTimeout
	}
	if strings.Contains(errStr, "network") || strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "no such host") {
		return ErrorCategoryNetwork
	}
	return ErrorCategoryUnknown
}
