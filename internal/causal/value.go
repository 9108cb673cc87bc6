package causal

import (
	"errors"
	"sort"
	"strconv"
)

// ErrCandidatesEmpty is a programming-error-class invariant violation: the
// merger was asked to compute the maximal set of zero candidates. Callers
// are responsible for never doing this — a key always has at least the
// version being written.
var ErrCandidatesEmpty = errors.New("causal: candidate set is empty")

// Value is an immutable versioned record. Value=nil iff Tombstone=true.
// LWWMillis is a coordinator wall-clock timestamp used only as a tiebreaker
// for concurrent siblings; it never participates in causal comparison.
type Value struct {
	Data      []byte
	Tombstone bool
	Clock     Clock
	LWWMillis int64
}

// ownerHint is the identifier a Value's write is attributed to, used only by
// the display resolver's deterministic tiebreak: the lexicographically
// smallest node id present in the sibling's clock.
func (v Value) ownerHint() string {
	best := ""
	for id := range v.Clock {
		if best == "" || id < best {
			best = id
		}
	}
	return best
}

// Siblings is the maximal set of versions known for one key: no element's
// clock dominates another's. It is never empty for a known key.
type Siblings []Value

// Merge computes the maximal elements of candidates under the causal
// partial order. A candidate survives iff no other candidate's clock
// strictly dominates it. The result is deterministic with respect to the
// input set regardless of order.
func Merge(candidates []Value) (Siblings, error) {
	if len(candidates) == 0 {
		return nil, ErrCandidatesEmpty
	}

	maximal := make([]Value, 0, len(candidates))
	for i, cand := range candidates {
		dominated := false
		for j, other := range candidates {
			if i == j {
				continue
			}
			if other.Clock.Dominates(cand.Clock) {
				dominated = true
				break
			}
			// Exact duplicate clocks collapse to one representative; keep
			// the earliest index to make the result order-independent.
			if other.Clock.Compare(cand.Clock) == Equal && j < i {
				dominated = true
				break
			}
		}
		if !dominated {
			maximal = append(maximal, cand)
		}
	}

	sortSiblings(maximal)
	return maximal, nil
}

// sortSiblings gives Merge's result a canonical order so equal inputs in
// any order produce byte-identical output — useful for tests and for
// anti-entropy digesting.
func sortSiblings(s []Value) {
	sort.Slice(s, func(i, j int) bool {
		ci, cj := clockSignature(s[i].Clock), clockSignature(s[j].Clock)
		return ci < cj
	})
}

func clockSignature(c Clock) string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	sig := make([]byte, 0, 32)
	for _, id := range ids {
		sig = append(sig, id...)
		sig = append(sig, ':')
		sig = strconv.AppendUint(sig, c[id], 10)
		sig = append(sig, ',')
	}
	return string(sig)
}

// DisplayPolicy resolves a single value from a sibling set for read-time
// presentation. It never influences causal correctness — only what a GET
// without further conflict handling shows the caller.
type DisplayPolicy func(Siblings) Value

// LWWPolicy is the default resolver: largest LWWMillis wins; ties are
// broken by the lexicographically smallest node id found in the sibling's
// clock, an arbitrary but deterministic rule.
func LWWPolicy(siblings Siblings) Value {
	best := siblings[0]
	for _, v := range siblings[1:] {
		switch {
		case v.LWWMillis > best.LWWMillis:
			best = v
		case v.LWWMillis == best.LWWMillis && v.ownerHint() < best.ownerHint():
			best = v
		}
	}
	return best
}

// Resolve picks a single display value via policy, or the default LWWPolicy
// when policy is nil.
func Resolve(siblings Siblings, policy DisplayPolicy) Value {
	if policy == nil {
		policy = LWWPolicy
	}
	return policy(siblings)
}

// OwnerOrderPolicy resolves ties among concurrent siblings purely by the
// lexicographically smallest owning node id, ignoring LWWMillis entirely.
// This is the coordinator's read-path reconciliation rule: a single
// maximal element is always the winner outright, and only when several
// siblings survive does this deterministic-but-arbitrary node-id order
// apply.
func OwnerOrderPolicy(siblings Siblings) Value {
	best := siblings[0]
	for _, v := range siblings[1:] {
		if v.ownerHint() < best.ownerHint() {
			best = v
		}
	}
	return best
}

// Live reports whether the sibling set has a value a GET should surface:
// false when every maximal element is a tombstone.
func (s Siblings) Live() bool {
	for _, v := range s {
		if !v.Tombstone {
			return true
		}
	}
	return false
}
