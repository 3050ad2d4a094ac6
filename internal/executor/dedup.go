package executor

import (
	"sync"
	"time"
)

// Dedup remembers opportunity routes that were recently attempted so the
// auto-trader does not hammer a route that just failed. It is safe for
// concurrent use.
type Dedup struct {
	mu   sync.Mutex
	seen map[string]time.Time // route id -> last attempt
	ttl  time.Duration
	now  func() time.Time
}

// NewDedup creates a Dedup that suppresses a route for ttl after Mark.
func NewDedup(ttl time.Duration, now func() time.Time) *Dedup {
	if now == nil {
		now = time.Now
	}
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  now,
	}
}

// Recent reports whether id was marked within the TTL.
func (d *Dedup) Recent(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.seen[id]
	return ok && d.now().Sub(last) < d.ttl
}

// Mark records an attempt on id.
func (d *Dedup) Mark(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[id] = d.now()
}

// Cleanup drops expired entries.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}

// Len returns the number of tracked routes.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
