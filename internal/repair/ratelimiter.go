package repair

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ShardID identifies the token range a repair round operates over.
type ShardID string

// RateLimiter is a global (not per-shard) token-bucket with lazy,
// elapsed-time-proportional refill, wrapping golang.org/x/time/rate.
// rate.Limiter only exposes boolean allow/deny grants, so
// TryAcquireTokens peeks the currently available count and reserves
// exactly that many — giving the partial-grant semantics this package's
// contract requires without reimplementing the bucket math by hand.
type RateLimiter struct {
	mu  sync.Mutex
	lim *rate.Limiter
}

// NewRateLimiter creates a limiter with the given integer capacity and
// refill rate in tokens per second.
func NewRateLimiter(capacity int, refillPerSecond float64) *RateLimiter {
	return &RateLimiter{lim: rate.NewLimiter(rate.Limit(refillPerSecond), capacity)}
}

// TryAcquireTokens grants min(requested, floor(available)) tokens and
// deducts them from the bucket. Non-blocking; thread-safe. A returned
// zero means the caller should skip this round for shard.
func (r *RateLimiter) TryAcquireTokens(shard ShardID, requested int) int {
	if requested <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	available := int(math.Floor(r.lim.TokensAt(now)))
	grant := requested
	if available < grant {
		grant = available
	}
	if grant <= 0 {
		return 0
	}
	r.lim.AllowN(now, grant)
	return grant
}
