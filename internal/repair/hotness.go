// Package repair implements hotness/divergence-age scoring, token-bucket
// backpressure, and bounded per-round token selection for anti-entropy
// repair, in the small-struct, explicit-constructor idiom already
// established by internal/quorum and internal/merkle.
package repair

import "sync"

// Token identifies a ring position being tracked for repair purposes.
type Token = uint64

// HotnessTracker maintains a per-token EWMA of access frequency. There is
// no background decay: a token's hotness only changes on an explicit
// recorded access.
type HotnessTracker struct {
	mu    sync.Mutex
	alpha float64
	ewma  map[Token]float64
	last  map[Token]int64
}

// NewHotnessTracker creates a tracker with EWMA smoothing alpha in (0, 1].
func NewHotnessTracker(alpha float64) *HotnessTracker {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	return &HotnessTracker{
		alpha: alpha,
		ewma:  make(map[Token]float64),
		last:  make(map[Token]int64),
	}
}

// RecordAccess bumps token's hotness EWMA and last-access time. The first
// observation for a token seeds its EWMA at 1.0.
func (h *HotnessTracker) RecordAccess(token Token, nowMillis int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.ewma[token]; !ok {
		h.ewma[token] = 1.0
	} else {
		h.ewma[token] = h.alpha*1.0 + (1-h.alpha)*h.ewma[token]
	}
	h.last[token] = nowMillis
}

// Hotness returns token's current EWMA, or 0 if never observed.
func (h *HotnessTracker) Hotness(token Token) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ewma[token]
}
