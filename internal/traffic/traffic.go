// Package traffic keeps sliding windows of weather request outcomes. It is the single
// source for the health endpoint's degraded and overloaded decisions.
package traffic

import (
	"sync"
	"time"
)

// MaxWindow bounds how long outcomes are retained. Queries for longer windows only see
// MaxWindow worth of data, so configured windows must not exceed it.
const MaxWindow = 15 * time.Minute

var defaultTracker Tracker

// RecordResolved records a request answered with genuine upstream data.
func RecordResolved() {
	defaultTracker.RecordResolved()
}

// RecordDegraded records a request answered with synthetic data.
func RecordDegraded() {
	defaultTracker.RecordDegraded()
}

// RecordDenied records a rate-limit denial (429).
func RecordDenied() {
	defaultTracker.RecordDenied()
}

// RequestCount returns the number of outcomes (resolved + degraded + denied) within the window.
func RequestCount(window time.Duration) int {
	return defaultTracker.RequestCount(window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// DegradedRate returns (degradedCount, totalCount) within the window. Denials are excluded.
func DegradedRate(window time.Duration) (degraded, total int) {
	return defaultTracker.DegradedRate(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains sliding windows of outcome timestamps. The zero value is ready to use.
type Tracker struct {
	mu            sync.Mutex
	now           func() time.Time
	resolvedTimes []time.Time
	degradedTimes []time.Time
	deniedTimes   []time.Time
}

// NewTracker returns a Tracker using the given clock.
func NewTracker(now func() time.Time) *Tracker {
	return &Tracker{now: now}
}

func (t *Tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

func (t *Tracker) RecordResolved() {
	t.recordOutcome(&t.resolvedTimes)
}

func (t *Tracker) RecordDegraded() {
	t.recordOutcome(&t.degradedTimes)
}

func (t *Tracker) RecordDenied() {
	t.recordOutcome(&t.deniedTimes)
}

func (t *Tracker) recordOutcome(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	return countSince(t.resolvedTimes, cutoff) +
		countSince(t.degradedTimes, cutoff) +
		countSince(t.deniedTimes, cutoff)
}

func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.deniedTimes, t.clock().Add(-window))
}

func (t *Tracker) DegradedRate(window time.Duration) (degraded, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	d := countSince(t.degradedTimes, cutoff)
	return d, d + countSince(t.resolvedTimes, cutoff)
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resolvedTimes = nil
	t.degradedTimes = nil
	t.deniedTimes = nil
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than MaxWindow. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-MaxWindow)
	for _, slice := range []*[]time.Time{&t.resolvedTimes, &t.degradedTimes, &t.deniedTimes} {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
}
