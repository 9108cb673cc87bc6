package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"distributed-kvstore/internal/antientropy"
	"distributed-kvstore/internal/repair"
	"distributed-kvstore/internal/storage"
)

// RepairExecutor is the Coordinator-side implementation of
// antientropy.RepairExecutor: it turns a round's divergent tokens into
// actual key-level writes against one peer.
//
// Anti-entropy is symmetric by construction: every node runs its own
// daemon against every peer, so a token this node reports as "pull"
// (peer has newer data) is reported as "push" from that peer's own
// daemon the next time it runs a round against us. This executor only
// ever pushes — it walks its own local key space, keeps the subset whose
// token falls in the round's diff set, and writes each one to the peer.
// Given enough rounds on both sides, every divergent key converges
// without either side needing a way to ask a peer "which keys do you
// have for these tokens", a lookup the Merkle digest manifests don't
// support (digests don't carry key names, only token+hash).
//
// Before pushing, the diff set is run through a repair.Scheduler so a
// node under heavy divergence doesn't try to repair everything in one
// round: the scheduler's rate limiter and (in RAAE mode) hotness/age
// scoring decide which tokens actually get repaired now, leaving the
// rest divergent for the scheduler to reconsider next round.
type RepairExecutor struct {
	store     *storage.Store
	tokenOf   func(string) uint64
	replicas  map[string]ReplicaClient
	scheduler *repair.Scheduler
	log       *zap.Logger
}

// NewRepairExecutor constructs a RepairExecutor. replicas should be the
// same peer set the Coordinator writes through.
func NewRepairExecutor(store *storage.Store, tokenOf func(string) uint64, replicas map[string]ReplicaClient, scheduler *repair.Scheduler, log *zap.Logger) *RepairExecutor {
	if log == nil {
		log = zap.NewNop()
	}
	return &RepairExecutor{store: store, tokenOf: tokenOf, replicas: replicas, scheduler: scheduler, log: log}
}

// Repair implements antientropy.RepairExecutor.
func (e *RepairExecutor) Repair(ctx context.Context, peerNodeID string, shard antientropy.ShardRange, pull, push []uint64) error {
	client, ok := e.replicas[peerNodeID]
	if !ok {
		return fmt.Errorf("coordinator: repair: unknown peer %q", peerNodeID)
	}

	selected := e.select(shard, pull, push)
	if len(selected) == 0 {
		return nil
	}

	for key, siblings := range e.store.SnapshotAll() {
		token := e.tokenOf(key)
		if !selected[token] {
			continue
		}
		for _, v := range siblings {
			if err := client.Apply(ctx, key, v, uuid.NewString()); err != nil {
				e.log.Warn("repair push failed",
					zap.String("peer", peerNodeID), zap.String("key", key), zap.Error(err))
			}
		}
	}
	return nil
}

func (e *RepairExecutor) select(shard antientropy.ShardRange, pull, push []uint64) map[uint64]bool {
	if e.scheduler == nil {
		selected := make(map[uint64]bool, len(pull)+len(push))
		for _, t := range pull {
			selected[t] = true
		}
		for _, t := range push {
			selected[t] = true
		}
		return selected
	}

	seen := make(map[uint64]bool, len(pull)+len(push))
	diff := make([]uint64, 0, len(pull)+len(push))
	for _, t := range append(append([]uint64{}, pull...), push...) {
		if !seen[t] {
			seen[t] = true
			diff = append(diff, t)
		}
	}

	shardID := repair.ShardID(fmt.Sprintf("%d-%d", shard.Start, shard.End))
	picked := e.scheduler.Select(shardID, diff, time.Now().UnixMilli())

	selected := make(map[uint64]bool, len(picked))
	for _, t := range picked {
		selected[t] = true
	}
	return selected
}
