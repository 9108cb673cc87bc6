package repair

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterGrantsUpToCapacityImmediately(t *testing.T) {
	r := NewRateLimiter(10, 1)
	got := r.TryAcquireTokens("shard-a", 10)
	require.Equal(t, 10, got)
}

func TestRateLimiterGrantsPartialWhenRequestExceedsAvailable(t *testing.T) {
	r := NewRateLimiter(5, 0.001)
	got := r.TryAcquireTokens("shard-a", 100)
	require.Equal(t, 5, got)
}

func TestRateLimiterReturnsZeroAfterExhaustion(t *testing.T) {
	r := NewRateLimiter(3, 0.001)
	require.Equal(t, 3, r.TryAcquireTokens("shard-a", 3))
	require.Zero(t, r.TryAcquireTokens("shard-a", 1))
}

func TestRateLimiterRejectsNonPositiveRequest(t *testing.T) {
	r := NewRateLimiter(5, 1)
	require.Zero(t, r.TryAcquireTokens("shard-a", 0))
	require.Zero(t, r.TryAcquireTokens("shard-a", -1))
}

func TestRateLimiterIsSharedAcrossShards(t *testing.T) {
	r := NewRateLimiter(4, 0.001)
	got := r.TryAcquireTokens("shard-a", 2)
	require.Equal(t, 2, got)
	gotB := r.TryAcquireTokens("shard-b", 4)
	require.Equal(t, 2, gotB)
}
