package inference

import (
	"context"
	"io"
	"sync"
	"time"

	"rockwatch/internal/assessment"
)

// Mock はテスト用の推論サービス
type Mock struct {
	// PredictFrameFunc は PredictFrame 呼び出し時に実行される
	PredictFrameFunc func(ctx context.Context, jpeg []byte) (*assessment.FrameResult, error)

	// AnalyzeVideoFunc は AnalyzeVideo 呼び出し時に実行される
	AnalyzeVideoFunc func(ctx context.Context, name string, r io.Reader) (*assessment.VideoAnalysis, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall は呼び出し記録
type MockCall struct {
	Method string
	Size   int
	Time   time.Time
}

// NewMock は常に Low リスクを返すモックを作成する
func NewMock() *Mock {
	return &Mock{
		PredictFrameFunc: func(ctx context.Context, jpeg []byte) (*assessment.FrameResult, error) {
			return &assessment.FrameResult{
				RiskLevel:       assessment.RiskLow,
				RockSize:        assessment.SizeSmall,
				Trajectory:      assessment.TrajectoryStable,
				Confidence:      50,
				Recommendations: []string{},
			}, nil
		},
		AnalyzeVideoFunc: func(ctx context.Context, name string, r io.Reader) (*assessment.VideoAnalysis, error) {
			return &assessment.VideoAnalysis{
				Filename:        name,
				RiskLevel:       assessment.RiskLow,
				Confidence:      50,
				Recommendations: []string{},
				AnalyzedAt:      time.Now(),
			}, nil
		},
	}
}

// PredictFrame は PredictFrameFunc を呼び出し、記録する
func (m *Mock) PredictFrame(ctx context.Context, jpeg []byte) (*assessment.FrameResult, error) {
	m.record("PredictFrame", len(jpeg))
	if m.PredictFrameFunc != nil {
		return m.PredictFrameFunc(ctx, jpeg)
	}
	return nil, ErrUnsuccessful
}

// AnalyzeVideo は AnalyzeVideoFunc を呼び出し、記録する
func (m *Mock) AnalyzeVideo(ctx context.Context, name string, r io.Reader) (*assessment.VideoAnalysis, error) {
	m.record("AnalyzeVideo", 0)
	if m.AnalyzeVideoFunc != nil {
		return m.AnalyzeVideoFunc(ctx, name, r)
	}
	return nil, ErrUnsuccessful
}

// Calls は呼び出し記録のコピーを返す
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount は指定メソッドの呼び出し回数を返す
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (m *Mock) record(method string, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Size: size, Time: time.Now()})
}
