package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rockwatch/internal/assessment"
)

func TestNewStoreIsEmpty(t *testing.T) {
	s := NewStore()

	snap := s.Snapshot()
	assert.True(t, snap.Notification.IsEmpty())
	assert.NotNil(t, snap.Notification.Recommendations)
	assert.Empty(t, snap.ConfidenceHistory)
	assert.Empty(t, snap.LiveFrames)
	assert.Nil(t, snap.Monitoring)
	assert.Nil(t, snap.VideoAnalysis)
	assert.Nil(t, snap.LastError)
	assert.Empty(t, snap.Flags)
	assert.Equal(t, uint64(0), snap.Version)
}

func TestGettersReturnCopies(t *testing.T) {
	s := NewStore()
	s.SetNotification(assessment.Notification{
		RiskLevel:       assessment.RiskHigh,
		Recommendations: []string{"evacuate"},
	})

	n := s.Notification()
	n.Recommendations[0] = "changed"
	n.RiskLevel = assessment.RiskLow

	got := s.Notification()
	assert.Equal(t, assessment.RiskHigh, got.RiskLevel)
	assert.Equal(t, []string{"evacuate"}, got.Recommendations)
}

func TestMutateIncrementsVersion(t *testing.T) {
	s := NewStore()
	s.Mutate(func(slots *Slots) {
		slots.ConfidenceHistory = append(slots.ConfidenceHistory, assessment.ConfidencePoint{Confidence: 42})
	})
	s.SetFlag(FlagCameraActive, "true")

	assert.Equal(t, uint64(2), s.Version())
	require.Len(t, s.ConfidenceHistory(), 1)
	assert.Equal(t, 42.0, s.ConfidenceHistory()[0].Confidence)
}

func TestFlags(t *testing.T) {
	s := NewStore()
	s.SetFlag(FlagCameraActive, "true")
	s.SetFlag(FlagCameraStream, "active")

	v, ok := s.Flag(FlagCameraActive)
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	s.ClearFlag(FlagCameraActive)
	_, ok = s.Flag(FlagCameraActive)
	assert.False(t, ok)

	before := s.Version()
	s.ClearFlag(FlagCameraActive)
	assert.Equal(t, before, s.Version(), "clearing a missing flag is not a mutation")

	assert.Equal(t, map[string]string{FlagCameraStream: "active"}, s.Flags())
}

func TestResetSessionKeepsOtherSlots(t *testing.T) {
	s := NewStore()
	s.SetNotification(assessment.Notification{RiskLevel: assessment.RiskHigh, Recommendations: []string{"a"}})
	s.Mutate(func(slots *Slots) {
		slots.LiveFrames = append(slots.LiveFrames, assessment.FrameResult{Confidence: 10})
		slots.ConfidenceHistory = append(slots.ConfidenceHistory, assessment.ConfidencePoint{Confidence: 10})
	})
	s.SetMonitoring(MonitoringData{CameraActive: true})
	s.SetLastError(LastError{Kind: "TRANSIENT_DISPATCH", Message: "timeout"})

	s.ResetSession()

	snap := s.Snapshot()
	assert.True(t, snap.Notification.IsEmpty())
	assert.Empty(t, snap.LiveFrames)
	assert.Empty(t, snap.ConfidenceHistory)
	require.NotNil(t, snap.Monitoring)
	assert.True(t, snap.Monitoring.CameraActive)
	require.NotNil(t, snap.LastError)
}

func TestRefreshAllClearsEverything(t *testing.T) {
	s := NewStore()
	s.SetNotification(assessment.Notification{RiskLevel: assessment.RiskCritical})
	s.SetMonitoring(MonitoringData{CameraActive: true, ChangedAt: time.Now()})
	s.SetVideoAnalysis(assessment.VideoAnalysis{Filename: "slope.mp4", RiskLevel: assessment.RiskMedium})
	s.SetLastError(LastError{Kind: "RESOURCE_UNAVAILABLE"})
	s.SetFlag(FlagCameraActive, "true")
	s.SetFlag(FlagCameraStream, "active")

	s.RefreshAll()

	snap := s.Snapshot()
	assert.True(t, snap.Notification.IsEmpty())
	assert.Nil(t, snap.Monitoring)
	assert.Nil(t, snap.VideoAnalysis)
	assert.Nil(t, snap.LastError)
	assert.Empty(t, snap.Flags)
}

func TestGetBySlotName(t *testing.T) {
	s := NewStore()
	s.SetVideoAnalysis(assessment.VideoAnalysis{Filename: "slope.mp4"})

	for _, slot := range AllSlots() {
		_, ok := s.Get(slot)
		assert.True(t, ok, "slot %s", slot)
	}

	v, ok := s.Get(SlotVideoAnalysis)
	require.True(t, ok)
	a, isAnalysis := v.(*assessment.VideoAnalysis)
	require.True(t, isAnalysis)
	assert.Equal(t, "slope.mp4", a.Filename)

	_, ok = s.Get(Slot("pinn_graphs"))
	assert.False(t, ok)
}

func TestConcurrentMutations(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Mutate(func(slots *Slots) {
				slots.LiveFrames = append(slots.LiveFrames, assessment.FrameResult{})
			})
			_ = s.Snapshot()
		}()
	}
	wg.Wait()

	assert.Len(t, s.LiveFrames(), 50)
	assert.Equal(t, uint64(50), s.Version())
}
