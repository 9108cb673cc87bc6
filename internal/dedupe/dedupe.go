// Package dedupe implements the TTL-bounded op-id "seen" set that gives the
// durable store at-most-once application semantics under client retries.
package dedupe

import (
	"sync"
	"time"
)

// Deduper is a fixed-capacity, thread-safe keyed map from op-id to
// expiration time.
type Deduper struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	expiry   map[string]time.Time
	now      func() time.Time
}

// New creates a Deduper with the given capacity (0 means unbounded) and
// time-to-live for each recorded op-id.
func New(capacity int, ttl time.Duration) *Deduper {
	return &Deduper{
		capacity: capacity,
		ttl:      ttl,
		expiry:   make(map[string]time.Time),
		now:      time.Now,
	}
}

// FirstTime reports whether opID has not been seen (or its previous
// sighting has expired). If so, it records opID with a fresh expiration and
// returns true; a retried op-id within its TTL window returns false.
func (d *Deduper) FirstTime(opID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.expiry[opID]; ok && now.Before(exp) {
		return false
	}

	d.expelExpiredLocked(now)
	d.expiry[opID] = now.Add(d.ttl)
	return true
}

// Seed records opID as already-applied with a fresh TTL window, without
// returning whether it was new. Used to reseed the deduper from a
// snapshot's recorded op-ids on recovery, so WAL replay doesn't re-apply
// anything the snapshot already captured.
func (d *Deduper) Seed(opID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expiry[opID] = d.now().Add(d.ttl)
}

// SetTTL updates the TTL applied to subsequently recorded ids. ttl must be
// positive; SetTTL panics otherwise.
func (d *Deduper) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		panic("dedupe: ttl must be positive")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ttl = ttl
}

// expelExpiredLocked performs bounded opportunistic expulsion of expired
// entries. It is not exhaustive — a full sweep on every call would defeat
// the point of a cheap at-most-once check — it just keeps the map from
// growing without bound when capacity is set.
func (d *Deduper) expelExpiredLocked(now time.Time) {
	if d.capacity <= 0 || len(d.expiry) < d.capacity {
		return
	}
	const maxSweep = 32
	swept := 0
	for id, exp := range d.expiry {
		if swept >= maxSweep {
			return
		}
		if !now.Before(exp) {
			delete(d.expiry, id)
		}
		swept++
	}
}

// Len reports the number of tracked op-ids (including possibly-expired
// ones not yet swept). Intended for tests and metrics.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.expiry)
}
