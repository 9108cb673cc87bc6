package antientropy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"distributed-kvstore/internal/causal"
)

func sib(data string, clock causal.Clock, tombstone bool) causal.Siblings {
	return causal.Siblings{{
		Data:      []byte(data),
		Tombstone: tombstone,
		Clock:     clock,
		LWWMillis: 100,
	}}
}

func TestDigestKeyIsDeterministicAcrossCalls(t *testing.T) {
	siblings := sib("v1", causal.Clock{"a": 1}, false)
	d1 := digestKey("k", siblings)
	d2 := digestKey("k", siblings)
	require.Equal(t, d1, d2)
}

func TestDigestKeyDiffersOnValueChange(t *testing.T) {
	d1 := digestKey("k", sib("v1", causal.Clock{"a": 1}, false))
	d2 := digestKey("k", sib("v2", causal.Clock{"a": 1}, false))
	require.NotEqual(t, d1, d2)
}

func TestDigestKeyDiffersOnTombstoneFlag(t *testing.T) {
	d1 := digestKey("k", sib("v1", causal.Clock{"a": 1}, false))
	d2 := digestKey("k", sib("v1", causal.Clock{"a": 1}, true))
	require.NotEqual(t, d1, d2)
}

func TestCanonicalClockIsOrderIndependent(t *testing.T) {
	c1 := causal.Clock{"a": 1, "b": 2}
	c2 := causal.Clock{"b": 2, "a": 1}
	require.Equal(t, canonicalClock(c1), canonicalClock(c2))
}

func TestCanonicalClockDistinguishesNoDelimiterCollision(t *testing.T) {
	c1 := causal.Clock{"ab": 1}
	c2 := causal.Clock{"a": 1, "b": 0}
	require.NotEqual(t, canonicalClock(c1), canonicalClock(c2))
}

func TestShardRangeContainsNonWrapping(t *testing.T) {
	r := ShardRange{Start: 10, End: 20}
	require.True(t, r.Contains(10))
	require.True(t, r.Contains(15))
	require.False(t, r.Contains(20))
	require.False(t, r.Contains(5))
}

func TestShardRangeContainsWrapping(t *testing.T) {
	r := ShardRange{Start: 18446744073709551600, End: 5}
	require.True(t, r.Contains(18446744073709551610))
	require.True(t, r.Contains(0))
	require.True(t, r.Contains(4))
	require.False(t, r.Contains(5))
	require.False(t, r.Contains(100))
}

func TestFullRangeContainsEverything(t *testing.T) {
	r := FullRange()
	require.True(t, r.Contains(0))
	require.True(t, r.Contains(18446744073709551615))
}

func TestBuildEntriesFiltersByShard(t *testing.T) {
	snapshot := map[string]causal.Siblings{
		"in":  sib("v", causal.Clock{"a": 1}, false),
		"out": sib("v", causal.Clock{"a": 1}, false),
	}
	tokenOf := func(key string) uint64 {
		if key == "in" {
			return 5
		}
		return 50
	}

	entries := BuildEntries(snapshot, ShardRange{Start: 0, End: 10}, tokenOf)
	require.Len(t, entries, 1)
	require.EqualValues(t, 5, entries[0].Token)
}
