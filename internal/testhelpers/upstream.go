// Package testhelpers provides shared fixtures for tests that exercise the full request path.
package testhelpers

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ParisCurrent is a minimal current.json payload accepted by the envelope validator.
const ParisCurrent = `{"location":{"name":"Paris","region":"Ile-de-France","country":"France","lat":48.87,"lon":2.33,"tz_id":"Europe/Paris"},
"current":{"temp_c":18,"temp_f":64.4,"is_day":1,"condition":{"text":"Sunny","icon":"//cdn.weatherapi.com/weather/64x64/day/113.png","code":1000},"humidity":55}}`

// DisabledKeyBody is the provider's answer for a disabled API key.
const DisabledKeyBody = `{"error":{"code":2008,"message":"API key has been disabled."}}`

// FakeUpstream imitates the weather provider with a fixed status and body.
type FakeUpstream struct {
	mu     sync.Mutex
	status int
	body   string
	delay  time.Duration

	hits     atomic.Int32
	lastPath atomic.Value
}

// NewFakeUpstream starts a server that answers every request with status and body.
// It is closed when the test ends.
func NewFakeUpstream(t testing.TB, status int, body string) (*FakeUpstream, *httptest.Server) {
	t.Helper()
	f := &FakeUpstream{status: status, body: body}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *FakeUpstream) serve(w http.ResponseWriter, r *http.Request) {
	f.hits.Add(1)
	f.lastPath.Store(r.URL.Path)

	f.mu.Lock()
	status, body, delay := f.status, f.body, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// Respond changes the canned answer for later requests.
func (f *FakeUpstream) Respond(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status, f.body = status, body
}

// SetDelay holds each response for d, or until the caller disconnects.
func (f *FakeUpstream) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// Hits returns how many requests reached the server.
func (f *FakeUpstream) Hits() int {
	return int(f.hits.Load())
}

// LastPath returns the path of the most recent request, e.g. "/forecast.json".
func (f *FakeUpstream) LastPath() string {
	p, _ := f.lastPath.Load().(string)
	return p
}
