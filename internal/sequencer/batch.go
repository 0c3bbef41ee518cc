package sequencer

import (
	"sync"

	"github.com/kjstillabower/weather-explorer/internal/models"
)

// Batch is the view state a Sequencer fills in: the ordered locations to fetch, a cursor
// into them, and the envelopes resolved so far. It is safe for concurrent use.
type Batch struct {
	mu        sync.Mutex
	pending   []string
	cursor    int
	resolved  map[string]models.Envelope
	failed    map[string]error
	discarded bool
}

func NewBatch(locations ...string) *Batch {
	b := &Batch{
		resolved: make(map[string]models.Envelope),
		failed:   make(map[string]error),
	}
	b.pending = append(b.pending, locations...)
	return b
}

// Append queues more locations after the current ones ("load more"). A Run in progress
// picks them up; otherwise call Run again.
func (b *Batch) Append(locations ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, locations...)
}

// Discard marks the batch as abandoned. Results that arrive afterwards are dropped and
// Run stops before the next location.
func (b *Batch) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.discarded = true
}

func (b *Batch) Discarded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.discarded
}

// Resolved returns a snapshot of the envelopes merged so far, keyed by location.
func (b *Batch) Resolved() map[string]models.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]models.Envelope, len(b.resolved))
	for k, v := range b.resolved {
		out[k] = v
	}
	return out
}

// Failed returns a snapshot of locations whose last fetch failed.
func (b *Batch) Failed() map[string]error {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]error, len(b.failed))
	for k, v := range b.failed {
		out[k] = v
	}
	return out
}

// Cursor is the index of the next location to fetch.
func (b *Batch) Cursor() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// Pending returns the locations not yet attempted.
func (b *Batch) Pending() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.pending[b.cursor:]...)
}

// next advances the cursor and returns the location it passed over.
func (b *Batch) next() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.discarded || b.cursor >= len(b.pending) {
		return "", false
	}
	loc := b.pending[b.cursor]
	b.cursor++
	return loc, true
}

func (b *Batch) merge(location string, env models.Envelope) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.discarded {
		return false
	}
	b.resolved[location] = env
	delete(b.failed, location)
	return true
}

func (b *Batch) fail(location string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.discarded {
		return
	}
	b.failed[location] = err
}
