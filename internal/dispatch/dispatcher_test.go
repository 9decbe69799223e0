package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rockwatch/internal/aggregation"
	"rockwatch/internal/assessment"
	"rockwatch/internal/camera"
	"rockwatch/internal/inference"
	"rockwatch/internal/state"
)

type stubSource struct {
	frame []byte
	err   error
}

func (s stubSource) Snapshot() ([]byte, error) { return s.frame, s.err }

func newDispatcher(t *testing.T, predictor Predictor) (*Dispatcher, *state.Store) {
	t.Helper()
	st := state.NewStore()
	d := New(predictor, aggregation.New(st), st, WithTimeout(time.Second))
	return d, st
}

func TestCapture(t *testing.T) {
	d, _ := newDispatcher(t, inference.NewMock())
	ctx := context.Background()

	frame, ok := d.Capture(ctx, stubSource{frame: []byte{0xFF, 0xD8}})
	assert.True(t, ok)
	assert.Equal(t, []byte{0xFF, 0xD8}, frame)

	_, ok = d.Capture(ctx, stubSource{err: camera.ErrNoFrame})
	assert.False(t, ok, "no frame yet is a silent skip")

	_, ok = d.Capture(ctx, stubSource{frame: []byte{}})
	assert.False(t, ok)

	_, ok = d.Capture(ctx, nil)
	assert.False(t, ok)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, ok = d.Capture(canceled, stubSource{frame: []byte{1}})
	assert.False(t, ok, "inactive session skips capture")
}

func TestCaptureReportsStreamFailure(t *testing.T) {
	d, st := newDispatcher(t, inference.NewMock())
	ctx := context.Background()
	dead := stubSource{err: fmt.Errorf("%w: exit status 1", camera.ErrStreamFailed)}

	_, ok := d.Capture(ctx, dead)
	assert.False(t, ok)

	le, ok := st.LastError()
	require.True(t, ok, "a dead stream must reach the error surface")
	assert.Equal(t, "RESOURCE_UNAVAILABLE", le.Kind)
	assert.Contains(t, le.Message, "exit status 1")

	// 次のティックでも報告は続く
	st.ClearLastError()
	_, ok = d.Capture(ctx, dead)
	assert.False(t, ok)
	_, ok = st.LastError()
	assert.True(t, ok)

	_, ok = d.Capture(ctx, stubSource{frame: []byte{0xFF, 0xD8}})
	assert.True(t, ok)
	assert.False(t, d.captureFailing.Load())
}

func TestDispatchAppliesResult(t *testing.T) {
	mock := inference.NewMock()
	mock.PredictFrameFunc = func(ctx context.Context, jpeg []byte) (*assessment.FrameResult, error) {
		return &assessment.FrameResult{
			RiskLevel:       assessment.RiskHigh,
			RockSize:        assessment.SizeLarge,
			Confidence:      80,
			Recommendations: []string{"close road"},
		}, nil
	}
	d, st := newDispatcher(t, mock)

	d.Dispatch([]byte{1, 2, 3}, time.Now())
	d.Wait()

	n := st.Notification()
	assert.Equal(t, assessment.RiskHigh, n.RiskLevel)
	assert.Equal(t, assessment.SizeLarge, n.RockSize)
	require.Len(t, st.LiveFrames(), 1)
	assert.False(t, st.LiveFrames()[0].Timestamp.IsZero())
	require.Len(t, st.ConfidenceHistory(), 1)

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Sent)
	assert.Equal(t, uint64(1), stats.Succeeded)
	assert.Equal(t, uint64(0), stats.Failed)
	assert.Equal(t, int64(0), stats.InFlight)
}

func TestDispatchFailureIsTransient(t *testing.T) {
	mock := inference.NewMock()
	mock.PredictFrameFunc = func(ctx context.Context, jpeg []byte) (*assessment.FrameResult, error) {
		return nil, errors.New("connection refused")
	}
	d, st := newDispatcher(t, mock)

	d.Dispatch([]byte{1}, time.Now())
	d.Dispatch([]byte{2}, time.Now())
	d.Wait()

	le, ok := st.LastError()
	require.True(t, ok)
	assert.Equal(t, "TRANSIENT_DISPATCH", le.Kind)
	assert.Contains(t, le.Message, "connection refused")

	assert.True(t, st.Notification().IsEmpty())
	assert.Empty(t, st.LiveFrames())
	assert.Equal(t, uint64(2), d.Stats().Failed)
}

func TestDispatchNilResultCountsAsFailure(t *testing.T) {
	mock := inference.NewMock()
	mock.PredictFrameFunc = func(ctx context.Context, jpeg []byte) (*assessment.FrameResult, error) {
		return nil, nil
	}
	d, st := newDispatcher(t, mock)

	d.Dispatch([]byte{1}, time.Now())
	d.Wait()

	_, ok := st.LastError()
	assert.True(t, ok)
	assert.Equal(t, uint64(1), d.Stats().Failed)
}

func TestDispatchDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	mock := inference.NewMock()
	mock.PredictFrameFunc = func(ctx context.Context, jpeg []byte) (*assessment.FrameResult, error) {
		<-release
		return &assessment.FrameResult{RiskLevel: assessment.RiskLow}, nil
	}
	d, st := newDispatcher(t, mock)

	start := time.Now()
	for i := 0; i < 5; i++ {
		d.Dispatch([]byte{byte(i)}, time.Now())
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Eventually(t, func() bool { return d.InFlight() == 5 }, time.Second, 5*time.Millisecond)

	close(release)
	d.Wait()
	assert.Len(t, st.LiveFrames(), 5)
	assert.Equal(t, int64(0), d.InFlight())
}

func TestDispatchUsesOwnTimeout(t *testing.T) {
	mock := inference.NewMock()
	mock.PredictFrameFunc = func(ctx context.Context, jpeg []byte) (*assessment.FrameResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	st := state.NewStore()
	d := New(mock, aggregation.New(st), st, WithTimeout(20*time.Millisecond))

	d.Dispatch([]byte{1}, time.Now())
	d.Wait()

	le, ok := st.LastError()
	require.True(t, ok)
	assert.Contains(t, le.Message, context.DeadlineExceeded.Error())
}

func TestCompletionsApplyInArrivalOrder(t *testing.T) {
	gates := []chan struct{}{make(chan struct{}), make(chan struct{})}
	levels := []assessment.RiskLevel{assessment.RiskCritical, assessment.RiskLow}

	var mu sync.Mutex
	call := 0
	started := make(chan struct{}, 2)
	mock := inference.NewMock()
	mock.PredictFrameFunc = func(ctx context.Context, jpeg []byte) (*assessment.FrameResult, error) {
		mu.Lock()
		i := call
		call++
		mu.Unlock()
		started <- struct{}{}
		<-gates[i]
		return &assessment.FrameResult{RiskLevel: levels[i], Confidence: float64(i)}, nil
	}
	d, st := newDispatcher(t, mock)

	d.Dispatch([]byte{0}, time.Now())
	<-started
	d.Dispatch([]byte{1}, time.Now())
	<-started

	// 後から送ったフレームの応答が先に届く
	close(gates[1])
	assert.Eventually(t, func() bool { return len(st.LiveFrames()) == 1 }, time.Second, time.Millisecond)
	close(gates[0])
	d.Wait()

	frames := st.LiveFrames()
	require.Len(t, frames, 2)
	assert.Equal(t, assessment.RiskLow, frames[0].RiskLevel)
	assert.Equal(t, assessment.RiskCritical, frames[1].RiskLevel)
	assert.Equal(t, assessment.RiskCritical, st.Notification().RiskLevel)
}

func TestWaitContext(t *testing.T) {
	block := make(chan struct{})
	mock := inference.NewMock()
	mock.PredictFrameFunc = func(ctx context.Context, jpeg []byte) (*assessment.FrameResult, error) {
		<-block
		return &assessment.FrameResult{}, nil
	}
	d, _ := newDispatcher(t, mock)
	d.Dispatch([]byte{1}, time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.WaitContext(ctx), context.DeadlineExceeded)

	close(block)
	assert.NoError(t, d.WaitContext(context.Background()))
}
