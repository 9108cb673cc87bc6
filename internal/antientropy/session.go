package antientropy

import (
	"bytes"
	"context"
	"fmt"

	"distributed-kvstore/internal/causal"
	"distributed-kvstore/internal/merkle"
)

// Snapshot is the wire-level summary a peer returns in place of its full
// key set: a Merkle root plus the leaf-level digest manifests needed to
// rebuild the tree locally for diffing.
type Snapshot struct {
	RootHash  [merkle.HashSize]byte
	LeafCount int
	Digests   []merkle.Entry
}

// ShardSnapshotProvider exposes the local durable store's current contents
// for a shard, abstracted so Session doesn't depend on internal/storage
// directly (keeping this package usable against any store.SnapshotAll-shaped
// provider, including a test fake).
type ShardSnapshotProvider interface {
	SnapshotAll() map[string]causal.Siblings
}

// AntiEntropyPeer is the capability a Session needs from a remote node:
// fetch its current Merkle summary for a shard.
type AntiEntropyPeer interface {
	NodeID() string
	FetchSnapshot(ctx context.Context, shard ShardRange, leafCount int) (Snapshot, error)
}

// RepairExecutor receives the pull/push token sets a round discovers
// against peerNodeID. The actual key-level data movement (translating
// tokens back to keys and invoking coordinator reads/writes) lives outside
// this package.
type RepairExecutor interface {
	Repair(ctx context.Context, peerNodeID string, shard ShardRange, pull, push []uint64) error
}

// RoundRecorder observes a completed round's outcome, for metrics
// reporting. Session works without one.
type RoundRecorder interface {
	RecordAntiEntropyRound(inSync bool, err error)
}

// Outcome summarizes one completed round.
type Outcome struct {
	PeerNodeID string
	InSync     bool
	Pulled     []uint64
	Pushed     []uint64
}

// Session runs one anti-entropy round against one peer over one shard.
type Session struct {
	local     ShardSnapshotProvider
	tokenOf   func(string) uint64
	leafCount int
	executor  RepairExecutor
	metrics   RoundRecorder
}

// NewSession constructs a Session. tokenOf must be the same token function
// the ring uses, so both nodes place keys on an identical token axis.
// metrics may be nil.
func NewSession(local ShardSnapshotProvider, tokenOf func(string) uint64, leafCount int, executor RepairExecutor, metrics RoundRecorder) *Session {
	return &Session{local: local, tokenOf: tokenOf, leafCount: leafCount, executor: executor, metrics: metrics}
}

// LocalSnapshot builds this node's Merkle summary for shard, the form
// served to a peer that calls FetchSnapshot against this node.
func (s *Session) LocalSnapshot(shard ShardRange) (Snapshot, error) {
	entries := BuildEntries(s.local.SnapshotAll(), shard, s.tokenOf)
	tree, err := merkle.Build(entries, s.leafCount)
	if err != nil {
		return Snapshot{}, fmt.Errorf("antientropy: build local tree: %w", err)
	}
	digests := make([]merkle.Entry, 0, len(entries))
	for i := 0; i < tree.LeafCount(); i++ {
		digests = append(digests, tree.Manifest(i)...)
	}
	return Snapshot{RootHash: tree.Root(), LeafCount: tree.LeafCount(), Digests: digests}, nil
}

// Run executes one round against peer over shard: build the local tree,
// fetch the peer's snapshot, short-circuit on root equality, otherwise diff
// and classify, then hand pull/push tokens to the executor.
func (s *Session) Run(ctx context.Context, peer AntiEntropyPeer, shard ShardRange) (outcome Outcome, err error) {
	if s.metrics != nil {
		defer func() { s.metrics.RecordAntiEntropyRound(outcome.InSync, err) }()
	}

	localEntries := BuildEntries(s.local.SnapshotAll(), shard, s.tokenOf)
	localTree, buildErr := merkle.Build(localEntries, s.leafCount)
	if buildErr != nil {
		return Outcome{}, fmt.Errorf("antientropy: build local tree: %w", buildErr)
	}

	peerSnapshot, fetchErr := peer.FetchSnapshot(ctx, shard, s.leafCount)
	if fetchErr != nil {
		return Outcome{}, fmt.Errorf("antientropy: fetch peer snapshot: %w", fetchErr)
	}

	if bytes.Equal(localTree.Root()[:], peerSnapshot.RootHash[:]) {
		return Outcome{PeerNodeID: peer.NodeID(), InSync: true}, nil
	}

	remoteTree, buildErr := merkle.Build(peerSnapshot.Digests, peerSnapshot.LeafCount)
	if buildErr != nil {
		return Outcome{}, fmt.Errorf("antientropy: build remote tree: %w", buildErr)
	}

	diffs, diffErr := merkle.Diff(localTree, remoteTree)
	if diffErr != nil {
		return Outcome{}, fmt.Errorf("antientropy: diff trees: %w", diffErr)
	}

	pull, push := classify(diffs)

	if s.executor != nil {
		if repairErr := s.executor.Repair(ctx, peer.NodeID(), shard, pull, push); repairErr != nil {
			return Outcome{}, fmt.Errorf("antientropy: repair: %w", repairErr)
		}
	}

	return Outcome{PeerNodeID: peer.NodeID(), InSync: false, Pulled: pull, Pushed: push}, nil
}

// classify walks each differing leaf's two manifests and buckets tokens:
// present remotely but missing-or-different locally is a pull; present
// locally but missing-or-different remotely is a push. A token present in
// both manifests with identical digest is already reconciled and is
// reported in neither set.
func classify(diffs []merkle.LeafDiff) (pull, push []uint64) {
	for _, d := range diffs {
		localByToken := make(map[uint64][merkle.HashSize]byte, len(d.ManifestA))
		for _, e := range d.ManifestA {
			localByToken[e.Token] = e.Digest
		}
		remoteByToken := make(map[uint64][merkle.HashSize]byte, len(d.ManifestB))
		for _, e := range d.ManifestB {
			remoteByToken[e.Token] = e.Digest
		}

		for token, remoteDigest := range remoteByToken {
			if localDigest, ok := localByToken[token]; !ok || localDigest != remoteDigest {
				pull = append(pull, token)
			}
		}
		for token, localDigest := range localByToken {
			if remoteDigest, ok := remoteByToken[token]; !ok || remoteDigest != localDigest {
				push = append(push, token)
			}
		}
	}
	return pull, push
}
