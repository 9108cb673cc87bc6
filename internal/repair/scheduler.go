package repair

// Mode selects how Scheduler orders tokens within a repair round.
type Mode int

const (
	FIFO Mode = iota
	RAAE
)

// SelectionRecorder observes how many of a round's diverging tokens were
// selected for repair, for metrics reporting. Scheduler works without one.
type SelectionRecorder interface {
	RecordRepairSelection(selected, total int)
}

// Scheduler turns a round's differing tokens into a bounded, ordered
// selection for actual repair, applying rate-limiter backpressure and
// (in RAAE mode) hotness x divergence-age scoring.
type Scheduler struct {
	mode            Mode
	scorer          *Scorer
	divergence      *DivergenceTracker
	limiter         *RateLimiter
	priority        *PriorityScheduler
	maxTokensPerRun int
	metrics         SelectionRecorder
}

// Config bundles a Scheduler's dependencies and policy knobs.
type Config struct {
	Mode               Mode
	Hotness            *HotnessTracker
	Divergence         *DivergenceTracker
	Limiter            *RateLimiter
	GlobalBandwidthCap int
	MaxTokensPerRun    int
	Metrics            SelectionRecorder
}

// NewScheduler constructs a Scheduler from cfg.
func NewScheduler(cfg Config) *Scheduler {
	return &Scheduler{
		mode:            cfg.Mode,
		scorer:          NewScorer(cfg.Hotness, cfg.Divergence),
		divergence:      cfg.Divergence,
		limiter:         cfg.Limiter,
		priority:        NewPriorityScheduler(cfg.GlobalBandwidthCap),
		maxTokensPerRun: cfg.MaxTokensPerRun,
		metrics:         cfg.Metrics,
	}
}

// Select records divergence for every token in diffTokens, chooses a
// bounded, ordered subset to repair this round (FIFO or RAAE per the
// configured mode, clipped by the rate limiter's budget), marks the
// selected tokens as converged, and returns them. Unselected tokens
// remain divergent for the next round.
func (s *Scheduler) Select(shard ShardID, diffTokens []Token, now int64) []Token {
	for _, t := range diffTokens {
		s.divergence.RecordDivergence(t, now)
	}

	var selected []Token
	switch s.mode {
	case RAAE:
		selected = s.selectRAAE(shard, diffTokens, now)
	default:
		selected = s.selectFIFO(shard, diffTokens)
	}

	if s.metrics != nil {
		s.metrics.RecordRepairSelection(len(selected), len(diffTokens))
	}
	return selected
}

func (s *Scheduler) selectFIFO(shard ShardID, diffTokens []Token) []Token {
	budget := s.limiter.TryAcquireTokens(shard, len(diffTokens))
	if budget > len(diffTokens) {
		budget = len(diffTokens)
	}
	selected := diffTokens[:budget]
	for _, t := range selected {
		s.divergence.ClearConverged(t)
	}
	return selected
}

func (s *Scheduler) selectRAAE(shard ShardID, diffTokens []Token, now int64) []Token {
	for _, t := range diffTokens {
		s.priority.Insert(shard, t, s.scorer.Score(t, now))
	}

	requested := s.maxTokensPerRun
	if requested <= 0 || requested > len(diffTokens) {
		requested = len(diffTokens)
	}
	budget := s.limiter.TryAcquireTokens(shard, requested)
	if s.maxTokensPerRun > 0 && budget > s.maxTokensPerRun {
		budget = s.maxTokensPerRun
	}

	drained := s.priority.Drain(budget)
	selected := make([]Token, len(drained))
	for i, st := range drained {
		selected[i] = st.Token
		s.divergence.ClearConverged(st.Token)
	}
	return selected
}
