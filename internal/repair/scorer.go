package repair

// Scorer combines hotness and divergence age into a single repair-urgency
// ranking. Zero hotness or zero age means zero urgency.
type Scorer struct {
	hotness    *HotnessTracker
	divergence *DivergenceTracker
}

// NewScorer creates a Scorer over the given trackers.
func NewScorer(hotness *HotnessTracker, divergence *DivergenceTracker) *Scorer {
	return &Scorer{hotness: hotness, divergence: divergence}
}

// Score returns hotness(token) * ageMillis(token, now).
func (s *Scorer) Score(token Token, now int64) float64 {
	return s.hotness.Hotness(token) * float64(s.divergence.AgeMillis(token, now))
}
