// Package causal implements the vector-clock partial order and the
// multi-version merge used to keep a key's sibling set maximal.
//
// Big idea:
//
// In a distributed system, two nodes can update the same key without ever
// talking to each other first. A vector clock lets every node agree on
// "what happened before what" without agreeing on a single global order.
// Each key carries a map of nodeID -> counter. Comparing two such maps
// tells us whether one strictly happened after the other, or whether they
// are concurrent (a true conflict that only the application, or a
// tie-breaker, can resolve).
package causal

import "maps"

// Relation is the result of comparing two vector clocks.
type Relation int

const (
	Equal Relation = iota
	LeftDominates
	RightDominates
	Concurrent
)

// Clock maps a node identifier to a monotonically increasing counter.
// A missing entry is equivalent to zero. Clock is treated as immutable:
// Bump never mutates the receiver, it returns a new Clock.
type Clock map[string]uint64

// New returns an empty clock.
func New() Clock {
	return make(Clock)
}

// Bump returns a new clock equal to c with id's counter incremented by one.
func (c Clock) Bump(id string) Clock {
	out := c.Copy()
	out[id] = out[id] + 1
	return out
}

// Copy returns a deep copy; maps are reference types in Go and callers must
// never be able to mutate a Clock another goroutine is reading.
func (c Clock) Copy() Clock {
	out := make(Clock, len(c))
	maps.Copy(out, c)
	return out
}

// Get returns the counter for id, or zero if absent.
func (c Clock) Get(id string) uint64 {
	return c[id]
}

// Compare determines the partial-order relation of c to other.
//
//	A <= B iff A[i] <= B[i] for every i
//	A <  B iff A <= B and A != B
//
// compare(A,B).swap == compare(B,A) must hold, which is why this is
// written as a single symmetric scan rather than two calls to a
// one-directional "dominates" helper.
func (c Clock) Compare(other Clock) Relation {
	leftGreater := false
	rightGreater := false

	for id, v := range c {
		if v > other[id] {
			leftGreater = true
		} else if v < other[id] {
			rightGreater = true
		}
		if leftGreater && rightGreater {
			return Concurrent
		}
	}
	for id, v := range other {
		if _, ok := c[id]; ok {
			continue // already compared above
		}
		if v > 0 {
			rightGreater = true
		}
		if leftGreater && rightGreater {
			return Concurrent
		}
	}

	switch {
	case !leftGreater && !rightGreater:
		return Equal
	case leftGreater && !rightGreater:
		return LeftDominates
	case !leftGreater && rightGreater:
		return RightDominates
	default:
		return Concurrent
	}
}

// Dominates reports whether c strictly dominates other (c > other).
func (c Clock) Dominates(other Clock) bool {
	return c.Compare(other) == LeftDominates
}

// Merge returns the elementwise-maximum clock of c and other. Merge never
// resolves a conflict; it only combines version history so that a clock
// bumped from the merge result dominates every input clock.
func (c Clock) Merge(other Clock) Clock {
	out := c.Copy()
	for id, v := range other {
		if v > out[id] {
			out[id] = v
		}
	}
	return out
}

// MergeAll folds Merge across a set of clocks, returning the empty clock
// when given none.
func MergeAll(clocks []Clock) Clock {
	out := New()
	for _, c := range clocks {
		out = out.Merge(c)
	}
	return out
}
