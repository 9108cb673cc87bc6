// Package coordinator implements the quorum-based put/delete/get surface
// that fronts the hash ring and the per-node durable stores: it fans
// writes out to all N ring-ordered owners in parallel goroutines and
// requires W acknowledgements, reads from R, reconciles divergent
// versions via causal dominance, and
// best-effort write-repairs replicas observed stale.
package coordinator

import (
	"context"

	"distributed-kvstore/internal/causal"
)

// ReplicaClient abstracts talking to one replica's Durable Store, whether
// it's the local node (direct call) or a remote node (RPC). Exactly one
// ReplicaClient in a coordinator's set should be "local".
type ReplicaClient interface {
	NodeID() string
	Put(ctx context.Context, key string, data []byte, opID, coordNodeID string) (causal.Value, error)
	Delete(ctx context.Context, key string, opID, coordNodeID string) (causal.Value, error)
	// Get returns the replica's full sibling set for key (ok=false if the
	// replica has never seen the key at all — distinct from a tombstoned
	// key, which returns ok=true with a tombstone sibling).
	Get(ctx context.Context, key string) (siblings causal.Siblings, ok bool, err error)
	// Apply pushes an externally-resolved value into this replica, used
	// for read-repair write-back.
	Apply(ctx context.Context, key string, value causal.Value, opID string) error
}

// IllegalArgument marks a replica failure that must propagate immediately
// rather than being counted as ordinary unavailability (e.g. a malformed
// value rejected by validation).
type IllegalArgument struct {
	Cause error
}

func (e *IllegalArgument) Error() string { return "illegal argument: " + e.Cause.Error() }
func (e *IllegalArgument) Unwrap() error { return e.Cause }
