package repair

import (
	"container/heap"
	"sync"
)

// ScoredToken is one entry in the priority scheduler's queue.
type ScoredToken struct {
	Shard      ShardID
	Token      Token
	Score      float64
	InsertedAt int64 // monotonic sequence number, not wall time
}

// priorityHeap is a max-heap by Score, ties broken by earliest InsertedAt.
type priorityHeap []ScoredToken

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score > h[j].Score
	}
	return h[i].InsertedAt < h[j].InsertedAt
}
func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *priorityHeap) Push(x any)   { *h = append(*h, x.(ScoredToken)) }
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// PriorityScheduler is a node-global max-heap of scored tokens awaiting
// repair, ordered by descending score with ties broken by earliest
// insertion.
type PriorityScheduler struct {
	mu       sync.Mutex
	heap     priorityHeap
	sequence int64
	capCap   int // globalBandwidthCap
}

// NewPriorityScheduler creates a scheduler bounded by globalBandwidthCap
// per Drain call.
func NewPriorityScheduler(globalBandwidthCap int) *PriorityScheduler {
	return &PriorityScheduler{capCap: globalBandwidthCap}
}

// Insert adds a scored token to the queue, stamping it with the next
// insertion sequence number.
func (p *PriorityScheduler) Insert(shard ShardID, token Token, score float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sequence++
	heap.Push(&p.heap, ScoredToken{Shard: shard, Token: token, Score: score, InsertedAt: p.sequence})
}

// Drain pops up to min(desired, globalBandwidthCap, size) highest-priority
// entries.
func (p *PriorityScheduler) Drain(desired int) []ScoredToken {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := desired
	if p.capCap > 0 && n > p.capCap {
		n = p.capCap
	}
	if n > len(p.heap) {
		n = len(p.heap)
	}

	out := make([]ScoredToken, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, heap.Pop(&p.heap).(ScoredToken))
	}
	return out
}

// Len reports the number of tokens currently queued.
func (p *PriorityScheduler) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.heap)
}
