package quorum

import "sort"

// HintMode enumerates how a ConsistencyHint should be interpreted.
type HintMode int

const (
	HintNone HintMode = iota
	HintDeadlineOnly
	HintBudgeted
)

// ConsistencyHint is an optional, advisory per-request override of the
// coordinator's default consistency behavior.
type ConsistencyHint struct {
	Mode                HintMode
	DeadlineMillis      int64 // meaningful when Mode != HintNone
	AllowStaleness      bool  // meaningful when Mode == HintBudgeted
	MaxBudgetedFraction float64
}

// AdaptiveQuorumPlanner turns a ring-ordered replica list into an ordered
// read or write plan, using latency stats to prefer fast replicas on
// reads while leaving write order untouched.
type AdaptiveQuorumPlanner struct {
	latency *ReplicaLatencyTracker
	baseR   int
	baseW   int
}

// NewAdaptiveQuorumPlanner creates a planner with the given base read and
// write quorum sizes.
func NewAdaptiveQuorumPlanner(latency *ReplicaLatencyTracker, baseR, baseW int) *AdaptiveQuorumPlanner {
	return &AdaptiveQuorumPlanner{latency: latency, baseR: baseR, baseW: baseW}
}

// ReadPlan orders replicas ascending by EWMA latency (replicas with no
// samples sort last) and caps the effective R at the replica count.
func (p *AdaptiveQuorumPlanner) ReadPlan(orderedReplicas []string) (ordered []string, effectiveR int) {
	ordered = append([]string{}, orderedReplicas...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return p.latency.EWMA(ordered[i]) < p.latency.EWMA(ordered[j])
	})
	effectiveR = p.baseR
	if effectiveR > len(ordered) {
		effectiveR = len(ordered)
	}
	return ordered, effectiveR
}

// WritePlan preserves the ring order and caps the effective W at the
// replica count.
func (p *AdaptiveQuorumPlanner) WritePlan(orderedReplicas []string) (ordered []string, effectiveW int) {
	ordered = append([]string{}, orderedReplicas...)
	effectiveW = p.baseW
	if effectiveW > len(ordered) {
		effectiveW = len(ordered)
	}
	return ordered, effectiveW
}
