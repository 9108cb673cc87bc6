package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"distributed-kvstore/internal/apierr"
	"distributed-kvstore/internal/causal"
	"distributed-kvstore/internal/quorum"
	"distributed-kvstore/internal/repair"
	"distributed-kvstore/internal/ring"
)

// WriteQuorumRecorder observes whether a write met its quorum, for metrics
// reporting. Coordinator works without one.
type WriteQuorumRecorder interface {
	RecordWriteQuorum(met bool)
}

// Coordinator is the quorum front-end for a single node: it owns the hash
// ring, the set of replica clients, the adaptive planner, and the SLO
// trackers, and implements put/delete/get with adaptive quorum sizing.
type Coordinator struct {
	nodeID          string
	replicas        map[string]ReplicaClient
	ring            *ring.Ring
	n               int
	planner         *quorum.AdaptiveQuorumPlanner
	latency         *quorum.ReplicaLatencyTracker
	budget          *quorum.StalenessBudgetTracker
	slo             *quorum.SloMetrics
	hotness         *repair.HotnessTracker
	metrics         WriteQuorumRecorder
	log             *zap.Logger
}

// Config bundles everything needed to construct a Coordinator.
type Config struct {
	NodeID            string
	Replicas          []ReplicaClient
	Ring              *ring.Ring
	ReplicationFactor int
	BaseReadQuorum    int
	BaseWriteQuorum   int
	Latency           *quorum.ReplicaLatencyTracker
	Budget            *quorum.StalenessBudgetTracker
	Slo               *quorum.SloMetrics
	Hotness           *repair.HotnessTracker
	Metrics           WriteQuorumRecorder
	Log               *zap.Logger
}

// New constructs a Coordinator from cfg.
func New(cfg Config) *Coordinator {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	replicas := make(map[string]ReplicaClient, len(cfg.Replicas))
	for _, r := range cfg.Replicas {
		replicas[r.NodeID()] = r
	}
	return &Coordinator{
		nodeID:   cfg.NodeID,
		replicas: replicas,
		ring:     cfg.Ring,
		n:        cfg.ReplicationFactor,
		planner:  quorum.NewAdaptiveQuorumPlanner(cfg.Latency, cfg.BaseReadQuorum, cfg.BaseWriteQuorum),
		latency:  cfg.Latency,
		budget:   cfg.Budget,
		slo:      cfg.Slo,
		hotness:  cfg.Hotness,
		metrics:  cfg.Metrics,
		log:      log,
	}
}

// recordAccess bumps key's ring token hotness, if a tracker is configured.
func (c *Coordinator) recordAccess(key string) {
	if c.hotness == nil {
		return
	}
	c.hotness.RecordAccess(ring.TokenForKey(key), time.Now().UnixMilli())
}

type writeResult struct {
	nodeID string
	value  causal.Value
	err    error
}

// Put writes key=data through the quorum write path. coordNodeID defaults
// to the local node id when empty. opID identifies the write for
// idempotent retries; when empty, a fresh one is generated here with
// google/uuid, so a retry of such a call counts as a new write.
func (c *Coordinator) Put(ctx context.Context, key string, data []byte, coordNodeID, opID string) (causal.Value, error) {
	return c.write(ctx, key, data, false, coordNodeID, opID)
}

// Delete tombstones key through the quorum write path.
func (c *Coordinator) Delete(ctx context.Context, key, coordNodeID, opID string) (causal.Value, error) {
	return c.write(ctx, key, nil, true, coordNodeID, opID)
}

func (c *Coordinator) write(ctx context.Context, key string, data []byte, tombstone bool, coordNodeID, opID string) (causal.Value, error) {
	if coordNodeID == "" {
		coordNodeID = c.nodeID
	}
	if opID == "" {
		opID = uuid.NewString()
	}
	c.recordAccess(key)

	owners := c.ring.OwnersForKey(key, c.n)
	ordered, effectiveW := c.planner.WritePlan(owners)

	results := make(chan writeResult, len(ordered))
	for _, nodeID := range ordered {
		client, ok := c.replicas[nodeID]
		if !ok {
			results <- writeResult{nodeID: nodeID, err: errors.New("coordinator: unknown replica " + nodeID)}
			continue
		}
		go func(client ReplicaClient) {
			start := time.Now()
			var v causal.Value
			var err error
			if tombstone {
				v, err = client.Delete(ctx, key, opID, coordNodeID)
			} else {
				v, err = client.Put(ctx, key, data, opID, coordNodeID)
			}
			c.latency.RecordSample(client.NodeID(), float64(time.Since(start).Milliseconds()))
			results <- writeResult{nodeID: client.NodeID(), value: v, err: err}
		}(client)
	}

	var successes []causal.Value
	for i := 0; i < len(ordered); i++ {
		r := <-results
		var illegal *IllegalArgument
		if errors.As(r.err, &illegal) {
			return causal.Value{}, illegal
		}
		if r.err != nil {
			c.log.Warn("replica write failed", zap.String("node", r.nodeID), zap.Error(r.err))
			continue
		}
		successes = append(successes, r.value)
	}

	met := len(successes) >= effectiveW
	if c.metrics != nil {
		c.metrics.RecordWriteQuorum(met)
	}
	if !met {
		return causal.Value{}, apierr.Wrap(apierr.QuorumNotMet, "write quorum not met", apierr.ErrWriteQuorumNotMet)
	}

	clocks := make([]causal.Clock, len(successes))
	var maxLWW int64
	for i, v := range successes {
		clocks[i] = v.Clock
		if v.LWWMillis > maxLWW {
			maxLWW = v.LWWMillis
		}
	}
	return causal.Value{
		Data:      data,
		Tombstone: tombstone,
		Clock:     causal.MergeAll(clocks),
		LWWMillis: maxLWW,
	}, nil
}

type readResult struct {
	nodeID   string
	siblings causal.Siblings
	found    bool
	err      error
}

// GetResult is the outcome of a quorum read.
type GetResult struct {
	Found         bool
	Value         causal.Value
	SiblingCount  int
	StaleObserved bool
}

// Get reads key through the quorum read path, reconciling divergent
// replica versions and best-effort write-repairing any replica observed
// stale. hint is advisory and may silently downgrade a budgeted read to
// safe when the staleness budget is exhausted.
func (c *Coordinator) Get(ctx context.Context, key string, hint quorum.ConsistencyHint) (GetResult, error) {
	start := time.Now()
	c.recordAccess(key)

	usedBudget := hint.Mode == quorum.HintBudgeted && hint.AllowStaleness
	if usedBudget && !c.budget.WithinBudget(hint.MaxBudgetedFraction) {
		usedBudget = false // silent upgrade to safe for this call
	}

	owners := c.ring.OwnersForKey(key, c.n)
	ordered, effectiveR := c.planner.ReadPlan(owners)

	var result GetResult
	var err error
	if effectiveR == 1 {
		result, err = c.hedgedRead(ctx, key, ordered)
	} else {
		result, err = c.quorumRead(ctx, key, ordered, effectiveR)
	}

	quorumMissed := apierr.KindOf(err) == apierr.QuorumNotMet
	staleObserved := quorum.StaleObserved(result.StaleObserved, false, quorumMissed)

	c.budget.RecordRead(usedBudget)
	if c.slo != nil {
		c.slo.RecordReadOutcome(usedBudget, staleObserved)
		if hint.Mode != quorum.HintNone {
			c.slo.RecordLatencyOutcome(hint, float64(time.Since(start).Milliseconds()))
		}
	}
	return result, err
}

// hedgedRead implements the R==1 path: dispatch to the fastest-known
// replica; if it hasn't answered within its tracked p95, also dispatch to
// the next replica and return whichever completes first.
func (c *Coordinator) hedgedRead(ctx context.Context, key string, ordered []string) (GetResult, error) {
	if len(ordered) == 0 {
		return GetResult{}, apierr.Wrap(apierr.QuorumNotMet, "read quorum not met", apierr.ErrReadQuorumNotMet)
	}

	type resp struct {
		siblings causal.Siblings
		found    bool
		err      error
	}
	responses := make(chan resp, 2)

	dispatch := func(nodeID string) {
		client, ok := c.replicas[nodeID]
		if !ok {
			responses <- resp{err: errors.New("coordinator: unknown replica " + nodeID)}
			return
		}
		start := time.Now()
		siblings, found, err := client.Get(ctx, key)
		c.latency.RecordSample(nodeID, float64(time.Since(start).Milliseconds()))
		responses <- resp{siblings: siblings, found: found, err: err}
	}

	go dispatch(ordered[0])

	stats, ok := c.latency.Stats(ordered[0])
	hedgeAfter := 50 * time.Millisecond
	if ok && stats.P95 > 0 {
		hedgeAfter = time.Duration(stats.P95) * time.Millisecond
	}

	var r resp
	if len(ordered) > 1 {
		select {
		case r = <-responses:
		case <-time.After(hedgeAfter):
			go dispatch(ordered[1])
			r = <-responses
		}
	} else {
		r = <-responses
	}

	if r.err != nil {
		return GetResult{}, apierr.Wrap(apierr.QuorumNotMet, "read quorum not met", apierr.ErrReadQuorumNotMet)
	}
	if !r.found {
		return GetResult{Found: false}, nil
	}
	return c.reconcile(ctx, key, []readResult{{siblings: r.siblings, found: true}})
}

// quorumRead issues reads to the first min(effectiveR, len(ordered))
// replicas.
func (c *Coordinator) quorumRead(ctx context.Context, key string, ordered []string, effectiveR int) (GetResult, error) {
	contact := ordered[:effectiveR]

	results := make(chan readResult, len(contact))
	for _, nodeID := range contact {
		client, ok := c.replicas[nodeID]
		if !ok {
			results <- readResult{nodeID: nodeID, err: errors.New("coordinator: unknown replica " + nodeID)}
			continue
		}
		go func(client ReplicaClient) {
			start := time.Now()
			siblings, found, err := client.Get(ctx, key)
			c.latency.RecordSample(client.NodeID(), float64(time.Since(start).Milliseconds()))
			results <- readResult{nodeID: client.NodeID(), siblings: siblings, found: found, err: err}
		}(client)
	}

	var collected []readResult
	successes := 0
	anyValueFound := false
	for i := 0; i < len(contact); i++ {
		r := <-results
		if r.err != nil {
			c.log.Warn("replica read failed", zap.String("node", r.nodeID), zap.Error(r.err))
			continue
		}
		successes++
		if r.found {
			anyValueFound = true
		}
		collected = append(collected, r)
	}

	if !anyValueFound && successes < effectiveR {
		return GetResult{}, apierr.Wrap(apierr.QuorumNotMet, "read quorum not met", apierr.ErrReadQuorumNotMet)
	}
	if !anyValueFound {
		return GetResult{Found: false}, nil
	}
	if successes < effectiveR {
		return GetResult{}, apierr.Wrap(apierr.QuorumNotMet, "read quorum not met", apierr.ErrReadQuorumNotMet)
	}

	return c.reconcile(ctx, key, collected)
}

// reconcile merges all contacted replicas' sibling sets under the causal
// partial order, picks the winner (sole maximal, or the lexicographically
// smallest owning node id among several), and best-effort write-repairs
// any replica whose clock is strictly dominated by the winner's.
func (c *Coordinator) reconcile(ctx context.Context, key string, collected []readResult) (GetResult, error) {
	var allCandidates causal.Siblings
	for _, r := range collected {
		allCandidates = append(allCandidates, r.siblings...)
	}
	if len(allCandidates) == 0 {
		return GetResult{Found: false}, nil
	}

	maximal, err := causal.Merge(allCandidates)
	if err != nil {
		return GetResult{}, apierr.Wrap(apierr.Internal, "reconciliation failed", err)
	}
	if !maximal.Live() {
		return GetResult{Found: false}, nil
	}

	winner := causal.OwnerOrderPolicy(maximal)

	staleObserved := len(maximal) > 1
	for _, r := range collected {
		for _, v := range r.siblings {
			if winner.Clock.Dominates(v.Clock) {
				staleObserved = true
				client, ok := c.replicas[r.nodeID]
				if ok {
					repairOpID := uuid.NewString()
					go func(client ReplicaClient, repairOpID string) {
						repairCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
						defer cancel()
						if err := client.Apply(repairCtx, key, winner, repairOpID); err != nil {
							c.log.Info("read repair failed", zap.String("node", client.NodeID()), zap.Error(err))
						}
					}(client, repairOpID)
				}
			}
		}
	}

	return GetResult{
		Found:         !winner.Tombstone,
		Value:         winner,
		SiblingCount:  len(maximal),
		StaleObserved: staleObserved,
	}, nil
}
