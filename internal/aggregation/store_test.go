package aggregation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rockwatch/internal/assessment"
	"rockwatch/internal/state"
)

func newStore() *Store {
	return New(state.NewStore())
}

func TestMergeKeepsWorstRisk(t *testing.T) {
	s := newStore()

	s.Merge(assessment.FrameResult{RiskLevel: assessment.RiskMedium})
	s.Merge(assessment.FrameResult{RiskLevel: assessment.RiskLow})

	assert.Equal(t, assessment.RiskMedium, s.Notification().RiskLevel)
}

func TestMergeStoresCanonicalSpelling(t *testing.T) {
	s := newStore()

	s.Merge(assessment.FrameResult{RiskLevel: "high", RockSize: "mid", Trajectory: " unstable "})
	s.Merge(assessment.FrameResult{RiskLevel: assessment.RiskHigh})

	n := s.Notification()
	assert.Equal(t, assessment.RiskHigh, n.RiskLevel)
	assert.Equal(t, assessment.SizeMedium, n.RockSize)
	assert.Equal(t, assessment.TrajectoryUnstable, n.Trajectory)

	s.Apply(assessment.FrameResult{RiskLevel: "critical", Confidence: 150})
	frames := s.LiveFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, assessment.RiskCritical, frames[0].RiskLevel)
	assert.Equal(t, 100.0, frames[0].Confidence)
	assert.Equal(t, assessment.RiskCritical, s.Notification().RiskLevel)
}

func TestMergeKeepsLargestSize(t *testing.T) {
	s := newStore()

	for _, size := range []assessment.RockSize{assessment.SizeSmall, assessment.SizeLarge, assessment.SizeMedium} {
		s.Merge(assessment.FrameResult{RockSize: size})
	}

	assert.Equal(t, assessment.SizeLarge, s.Notification().RockSize)
}

func TestMergeUnknownNeverOverwrites(t *testing.T) {
	s := newStore()

	s.Merge(assessment.FrameResult{Trajectory: assessment.TrajectoryModerate})
	s.Merge(assessment.FrameResult{})
	s.Merge(assessment.FrameResult{Trajectory: assessment.TrajectoryStable})

	assert.Equal(t, assessment.TrajectoryModerate, s.Notification().Trajectory)
}

func TestMergeDeduplicatesRecommendations(t *testing.T) {
	s := newStore()

	s.Merge(assessment.FrameResult{Recommendations: []string{"close road", "inspect slope"}})
	s.Merge(assessment.FrameResult{Recommendations: []string{"inspect slope", "", "evacuate", "close road"}})

	assert.Equal(t, []string{"close road", "inspect slope", "evacuate"}, s.Notification().Recommendations)
}

func TestConfidenceHistoryIsBounded(t *testing.T) {
	s := newStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 25; i++ {
		s.RecordConfidence(base.Add(time.Duration(i)*time.Second), float64(i))
	}

	history := s.ConfidenceHistory()
	require.Len(t, history, ConfidenceCapacity)
	for i, p := range history {
		assert.Equal(t, float64(i+6), p.Confidence)
	}
}

func TestRecordConfidenceClamps(t *testing.T) {
	s := newStore()

	s.RecordConfidence(time.Now(), 150)
	s.RecordConfidence(time.Now(), -3)

	history := s.ConfidenceHistory()
	require.Len(t, history, 2)
	assert.Equal(t, 100.0, history[0].Confidence)
	assert.Equal(t, 0.0, history[1].Confidence)
}

func TestFrameLogIsBounded(t *testing.T) {
	s := newStore()

	for i := 0; i < FrameLogCapacity+7; i++ {
		s.RecordFrame(assessment.FrameResult{Confidence: float64(i)})
	}

	frames := s.LiveFrames()
	require.Len(t, frames, FrameLogCapacity)
	assert.Equal(t, 7.0, frames[0].Confidence)
	assert.Equal(t, float64(FrameLogCapacity+6), frames[len(frames)-1].Confidence)
}

func TestApplyUpdatesEverything(t *testing.T) {
	s := newStore()
	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	s.Apply(assessment.FrameResult{
		Timestamp:       ts,
		RiskLevel:       assessment.RiskHigh,
		RockSize:        assessment.SizeSmall,
		Trajectory:      assessment.TrajectoryUnstable,
		Confidence:      87.5,
		Recommendations: []string{"close road"},
	})

	n := s.Notification()
	assert.Equal(t, assessment.RiskHigh, n.RiskLevel)
	assert.Equal(t, assessment.SizeSmall, n.RockSize)
	assert.Equal(t, assessment.TrajectoryUnstable, n.Trajectory)
	assert.Equal(t, []string{"close road"}, n.Recommendations)

	require.Len(t, s.LiveFrames(), 1)
	require.Len(t, s.ConfidenceHistory(), 1)
	assert.Equal(t, assessment.ConfidencePoint{Timestamp: ts, Confidence: 87.5}, s.ConfidenceHistory()[0])
}

func TestResetClearsSessionData(t *testing.T) {
	s := newStore()
	s.Apply(assessment.FrameResult{RiskLevel: assessment.RiskCritical, Confidence: 99, Recommendations: []string{"evacuate"}})

	s.Reset()

	assert.True(t, s.Notification().IsEmpty())
	assert.Empty(t, s.ConfidenceHistory())
	assert.Empty(t, s.LiveFrames())
}

func TestRanksAreMonotonicUnderConcurrentApply(t *testing.T) {
	s := newStore()
	levels := []assessment.RiskLevel{assessment.RiskLow, assessment.RiskCritical, assessment.RiskMedium, assessment.RiskHigh}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Apply(assessment.FrameResult{
				RiskLevel:       levels[i%len(levels)],
				Confidence:      float64(i % 100),
				Recommendations: []string{fmt.Sprintf("rec-%d", i%5)},
			})
		}(i)
	}
	wg.Wait()

	n := s.Notification()
	assert.Equal(t, assessment.RiskCritical, n.RiskLevel)
	assert.Len(t, n.Recommendations, 5)
	assert.Len(t, s.LiveFrames(), FrameLogCapacity)
	assert.Len(t, s.ConfidenceHistory(), ConfidenceCapacity)
}
