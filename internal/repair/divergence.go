package repair

import "sync"

// DivergenceTracker records, per token, the first time it was observed
// divergent. A token's state machine is Unknown -> Divergent(firstSeen)
// -> Cleared, and re-divergence after clearing restarts the cycle.
type DivergenceTracker struct {
	mu        sync.Mutex
	firstSeen map[Token]int64
}

// NewDivergenceTracker creates an empty tracker.
func NewDivergenceTracker() *DivergenceTracker {
	return &DivergenceTracker{firstSeen: make(map[Token]int64)}
}

// RecordDivergence stores the earlier of now and any existing first-seen
// time for token.
func (d *DivergenceTracker) RecordDivergence(token Token, now int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.firstSeen[token]; !ok || now < existing {
		d.firstSeen[token] = now
	}
}

// ClearConverged removes token's divergence record, restarting its state
// machine to Unknown.
func (d *DivergenceTracker) ClearConverged(token Token) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.firstSeen, token)
}

// AgeMillis returns max(0, now-firstSeen), or 0 if token has no recorded
// divergence.
func (d *DivergenceTracker) AgeMillis(token Token, now int64) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	first, ok := d.firstSeen[token]
	if !ok {
		return 0
	}
	age := now - first
	if age < 0 {
		return 0
	}
	return age
}
