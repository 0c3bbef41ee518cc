package models

import (
	"encoding/json"
	"errors"
	"time"
)

// ResolutionKind separates genuine upstream data from synthetic fallbacks.
type ResolutionKind string

const (
	KindResolved ResolutionKind = "resolved"
	KindDegraded ResolutionKind = "degraded"
)

// DegradedReason explains why a synthetic envelope was served.
type DegradedReason string

const (
	ReasonNone          DegradedReason = ""
	ReasonRateLimited   DegradedReason = "rate_limited"
	ReasonCredential    DegradedReason = "credential"
	ReasonUpstreamError DegradedReason = "upstream_error"
	ReasonTransport     DegradedReason = "transport"
)

// Notice texts shown to users alongside degraded data.
const (
	NoticeRateLimited = "Using simulated weather data due to rate limiting"
	NoticeCredential  = "Using simulated weather data due to API limitations"
	NoticeError       = "Using simulated weather data due to an error"
)

// ErrInvalidPayload is returned when a provider payload cannot be rendered as a weather card.
var ErrInvalidPayload = errors.New("provider payload missing location or current conditions")

// Resolution is the outcome of resolving a WeatherQuery: either Resolved (real upstream
// data) or Degraded (synthetic data with a reason).
type Resolution struct {
	Kind     ResolutionKind `json:"kind"`
	Reason   DegradedReason `json:"reason,omitempty"`
	Envelope Envelope       `json:"envelope"`
	// Raw holds the provider bytes a resolved envelope was decoded from. Clients receive
	// them unchanged, including fields Envelope does not model.
	Raw []byte `json:"raw,omitempty"`
}

// ResolvedPayload decodes and validates a provider payload and keeps the bytes for
// passthrough.
func ResolvedPayload(raw []byte) (Resolution, error) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return Resolution{}, err
	}
	if !env.Validate() {
		return Resolution{}, ErrInvalidPayload
	}
	res := Resolved(env)
	res.Raw = raw
	return res, nil
}

// Resolved wraps a genuine upstream envelope.
func Resolved(env Envelope) Resolution {
	env.Notice = ""
	return Resolution{Kind: KindResolved, Envelope: env}
}

// Degraded wraps a synthetic envelope served for reason.
func Degraded(env Envelope, reason DegradedReason) Resolution {
	return Resolution{Kind: KindDegraded, Reason: reason, Envelope: env}
}

// IsDegraded reports whether the envelope is synthetic.
func (r Resolution) IsDegraded() bool {
	return r.Kind == KindDegraded
}

// Notice returns the user-facing notice for a degraded resolution, or "" when resolved.
func (r Resolution) Notice() string {
	if !r.IsDegraded() {
		return ""
	}
	switch r.Reason {
	case ReasonRateLimited:
		return NoticeRateLimited
	case ReasonCredential:
		return NoticeCredential
	default:
		return NoticeError
	}
}

// Body returns the envelope as sent to clients, with Notice set for degraded data.
func (r Resolution) Body() Envelope {
	env := r.Envelope
	env.Notice = r.Notice()
	return env
}

// Payload returns the bytes sent to clients: the provider payload verbatim for resolved
// data, otherwise the JSON encoding of Body.
func (r Resolution) Payload() ([]byte, error) {
	if !r.IsDegraded() && len(r.Raw) > 0 {
		return r.Raw, nil
	}
	return json.Marshal(r.Body())
}

// CacheEntry is a stored resolution and the time it was written.
type CacheEntry struct {
	Key      string     `json:"key"`
	Payload  Resolution `json:"payload"`
	StoredAt time.Time  `json:"storedAt"`
}

// IsFresh reports whether the entry is no older than ttl at now.
func (e CacheEntry) IsFresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) <= ttl
}
