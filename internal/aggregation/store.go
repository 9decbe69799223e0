// Package aggregation はフレームごとの推論結果をセッション単位の要約に畳み込む
package aggregation

import (
	"strings"
	"time"

	"rockwatch/internal/assessment"
	"rockwatch/internal/state"
)

const (
	// ConfidenceCapacity は信頼度履歴の最大件数
	ConfidenceCapacity = 20
	// FrameLogCapacity はライブフレームログの最大件数
	FrameLogCapacity = 50
)

// Store は共有状態上で通知・信頼度履歴・フレームログを更新する
type Store struct {
	state *state.Store
}

// New は共有状態を書き込み先とするStoreを作成する
func New(st *state.Store) *Store {
	return &Store{state: st}
}

// Merge は結果を通知状態に畳み込む
// 各項目は受信値の順位が保存値より厳密に高いときだけ置き換える
func (s *Store) Merge(result assessment.FrameResult) {
	r := result.Canonical()
	s.state.Mutate(func(slots *state.Slots) {
		mergeInto(&slots.Notification, r)
	})
}

// RecordConfidence は信頼度履歴に1件追加する
func (s *Store) RecordConfidence(ts time.Time, confidence float64) {
	p := assessment.ConfidencePoint{
		Timestamp:  ts,
		Confidence: assessment.ClampConfidence(confidence),
	}
	s.state.Mutate(func(slots *state.Slots) {
		slots.ConfidenceHistory = appendBounded(slots.ConfidenceHistory, p, ConfidenceCapacity)
	})
}

// RecordFrame はライブフレームログに1件追加する
func (s *Store) RecordFrame(result assessment.FrameResult) {
	r := result.Canonical()
	s.state.Mutate(func(slots *state.Slots) {
		slots.LiveFrames = appendBounded(slots.LiveFrames, r, FrameLogCapacity)
	})
}

// Apply はフレームログ追加・マージ・信頼度記録を1回の更新で行う
func (s *Store) Apply(result assessment.FrameResult) {
	r := result.Canonical()
	p := assessment.ConfidencePoint{Timestamp: r.Timestamp, Confidence: r.Confidence}

	s.state.Mutate(func(slots *state.Slots) {
		slots.LiveFrames = appendBounded(slots.LiveFrames, r, FrameLogCapacity)
		mergeInto(&slots.Notification, r)
		slots.ConfidenceHistory = appendBounded(slots.ConfidenceHistory, p, ConfidenceCapacity)
	})
}

// Reset は通知状態と両バッファを空にする
func (s *Store) Reset() {
	s.state.ResetSession()
}

// Notification は現在の通知状態を返す
func (s *Store) Notification() assessment.Notification {
	return s.state.Notification()
}

// ConfidenceHistory は信頼度履歴を古い順に返す
func (s *Store) ConfidenceHistory() []assessment.ConfidencePoint {
	return s.state.ConfidenceHistory()
}

// LiveFrames はフレームログを古い順に返す
func (s *Store) LiveFrames() []assessment.FrameResult {
	return s.state.LiveFrames()
}

// mergeInto は正規化済みの r を畳み込む
func mergeInto(n *assessment.Notification, r assessment.FrameResult) {
	if assessment.WorseRisk(r.RiskLevel, n.RiskLevel) {
		n.RiskLevel = r.RiskLevel
	}
	if assessment.WorseSize(r.RockSize, n.RockSize) {
		n.RockSize = r.RockSize
	}
	if assessment.WorseTrajectory(r.Trajectory, n.Trajectory) {
		n.Trajectory = r.Trajectory
	}
	if n.Recommendations == nil {
		n.Recommendations = []string{}
	}
	for _, rec := range r.Recommendations {
		if strings.TrimSpace(rec) == "" || contains(n.Recommendations, rec) {
			continue
		}
		n.Recommendations = append(n.Recommendations, rec)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// appendBounded は末尾に追加し、容量を超えた分を先頭から捨てる
func appendBounded[T any](buf []T, v T, capacity int) []T {
	buf = append(buf, v)
	if over := len(buf) - capacity; over > 0 {
		buf = append(buf[:0:0], buf[over:]...)
	}
	return buf
}
