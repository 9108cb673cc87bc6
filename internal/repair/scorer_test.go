package repair

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreZeroWhenHotnessNeverRecorded(t *testing.T) {
	s := NewScorer(NewHotnessTracker(0.3), NewDivergenceTracker())
	require.Zero(t, s.Score(1, 1000))
}

func TestScoreZeroWhenDivergenceNeverRecorded(t *testing.T) {
	h := NewHotnessTracker(0.3)
	h.RecordAccess(1, 500)
	s := NewScorer(h, NewDivergenceTracker())
	require.Zero(t, s.Score(1, 1000))
}

func TestScoreIsHotnessTimesAge(t *testing.T) {
	h := NewHotnessTracker(0.3)
	h.RecordAccess(1, 0)
	d := NewDivergenceTracker()
	d.RecordDivergence(1, 1000)
	s := NewScorer(h, d)

	got := s.Score(1, 1500)
	require.InDelta(t, 1.0*500, got, 1e-9)
}
