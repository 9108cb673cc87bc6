// Package antientropy builds per-shard Merkle summaries from a node's
// durable store, diffs them against a peer's summary, and classifies the
// differing tokens into pull/push sets for the repair layer. This runs as
// a background, Merkle-driven process built on this module's own
// internal/merkle and internal/ring packages, in the small-struct,
// explicit-New-constructor idiom used throughout this codebase.
package antientropy

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"distributed-kvstore/internal/causal"
	"distributed-kvstore/internal/merkle"
)

// ShardRange is a half-open token range [Start, End) on the ring's 64-bit
// token axis. End <= Start means the range wraps around zero.
type ShardRange struct {
	Start uint64
	End   uint64
}

// Contains reports whether token falls within the range, handling wrap.
func (s ShardRange) Contains(token uint64) bool {
	if s.Start < s.End {
		return token >= s.Start && token < s.End
	}
	if s.Start == s.End {
		return true // full ring
	}
	return token >= s.Start || token < s.End
}

// FullRange covers the entire token axis — the single shard used by the
// demo/default configuration.
func FullRange() ShardRange {
	return ShardRange{Start: 0, End: 0}
}

// digestKey computes the anti-entropy digest for one key's sibling set:
// H(key || for each sibling, in Merge's canonical order: tombstone-flag ||
// lwwMillis || canonical-clock || value-or-empty). Two nodes holding
// byte-identical sibling sets always compute identical digests regardless
// of how those siblings arrived (replicated write, read-repair, or direct
// put), since canonicalClock and Merge's sort are both order-independent.
func digestKey(key string, siblings causal.Siblings) [merkle.HashSize]byte {
	h := sha256.New()
	h.Write([]byte(key))
	for _, v := range siblings {
		if v.Tombstone {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
		var lww [8]byte
		binary.BigEndian.PutUint64(lww[:], uint64(v.LWWMillis))
		h.Write(lww[:])
		h.Write(canonicalClock(v.Clock))
		if !v.Tombstone {
			h.Write(v.Data)
		}
	}
	var out [merkle.HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// canonicalClock encodes a vector clock deterministically: node ids sorted
// ascending, each entry length-prefixed so no delimiter collision is
// possible between adjacent ids or across zero-padded counters.
func canonicalClock(c causal.Clock) []byte {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]byte, 0, len(ids)*16)
	for _, id := range ids {
		var idLen [4]byte
		binary.BigEndian.PutUint32(idLen[:], uint32(len(id)))
		out = append(out, idLen[:]...)
		out = append(out, id...)
		var counter [8]byte
		binary.BigEndian.PutUint64(counter[:], c[id])
		out = append(out, counter[:]...)
	}
	return out
}

// BuildEntries computes one merkle.Entry per key in snapshot whose token
// (per tokenOf) falls within shard, ready to feed into merkle.Build.
func BuildEntries(snapshot map[string]causal.Siblings, shard ShardRange, tokenOf func(string) uint64) []merkle.Entry {
	entries := make([]merkle.Entry, 0, len(snapshot))
	for key, siblings := range snapshot {
		tok := tokenOf(key)
		if !shard.Contains(tok) {
			continue
		}
		entries = append(entries, merkle.Entry{Token: tok, Digest: digestKey(key, siblings)})
	}
	return entries
}
