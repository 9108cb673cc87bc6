package causal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeEmptyIsError(t *testing.T) {
	_, err := Merge(nil)
	require.ErrorIs(t, err, ErrCandidatesEmpty)
}

func TestMergeSingleWinner(t *testing.T) {
	v1 := Value{Data: []byte("a"), Clock: Clock{"n1": 1}}
	v2 := Value{Data: []byte("b"), Clock: Clock{"n1": 2}}

	out, err := Merge([]Value{v1, v2})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, v2.Clock, out[0].Clock)
}

func TestMergeConcurrentKeepsBothSiblings(t *testing.T) {
	v1 := Value{Data: []byte("a"), Clock: Clock{"A": 1}}
	v2 := Value{Data: []byte("b"), Clock: Clock{"B": 1}}

	out, err := Merge([]Value{v1, v2})
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestMergeIsOrderIndependent(t *testing.T) {
	v1 := Value{Data: []byte("a"), Clock: Clock{"A": 1}}
	v2 := Value{Data: []byte("b"), Clock: Clock{"B": 1}}
	v3 := Value{Data: []byte("c"), Clock: Clock{"A": 1, "B": 1}}

	out1, err := Merge([]Value{v1, v2, v3})
	require.NoError(t, err)
	out2, err := Merge([]Value{v3, v1, v2})
	require.NoError(t, err)

	require.Equal(t, out1, out2)
	require.Len(t, out1, 1) // v3 dominates both
}

func TestMergeIsIdempotent(t *testing.T) {
	v1 := Value{Data: []byte("a"), Clock: Clock{"A": 1}}
	v2 := Value{Data: []byte("b"), Clock: Clock{"B": 1}}

	out, err := Merge([]Value{v1, v2})
	require.NoError(t, err)

	again, err := Merge(out)
	require.NoError(t, err)
	require.Equal(t, out, again)
}

func TestTombstonesParticipateLikeLiveValues(t *testing.T) {
	live := Value{Data: []byte("a"), Clock: Clock{"A": 1}}
	dead := Value{Tombstone: true, Clock: Clock{"B": 1}}

	out, err := Merge([]Value{live, dead})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.True(t, out.Live())
}

func TestAllTombstonesMeansNotLive(t *testing.T) {
	d1 := Value{Tombstone: true, Clock: Clock{"A": 1}}
	d2 := Value{Tombstone: true, Clock: Clock{"B": 1}}

	out, err := Merge([]Value{d1, d2})
	require.NoError(t, err)
	require.False(t, out.Live())
}

func TestLWWPolicyTiebreakByNodeID(t *testing.T) {
	v1 := Value{Data: []byte("a"), Clock: Clock{"B": 1}, LWWMillis: 100}
	v2 := Value{Data: []byte("b"), Clock: Clock{"A": 1}, LWWMillis: 100}

	winner := Resolve(Siblings{v1, v2}, nil)
	require.Equal(t, "b", string(winner.Data))
}
