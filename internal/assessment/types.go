package assessment

import (
	"math"
	"time"
)

// FrameResult は1フレーム分の推論結果
type FrameResult struct {
	Timestamp       time.Time  `json:"timestamp"`
	RiskLevel       RiskLevel  `json:"riskLevel"`
	RockSize        RockSize   `json:"rockSize"`
	Trajectory      Trajectory `json:"trajectory"`
	Confidence      float64    `json:"confidence"`
	Recommendations []string   `json:"recommendations"`
}

// Clone はスライスを含めたコピーを返す
func (r FrameResult) Clone() FrameResult {
	out := r
	out.Recommendations = append([]string(nil), r.Recommendations...)
	return out
}

// Canonical は各区分を正規の表記に揃え、信頼度を範囲内に収めたコピーを返す
// 未知の値は ⊥ になる
func (r FrameResult) Canonical() FrameResult {
	out := r.Clone()
	out.RiskLevel = ParseRiskLevel(string(r.RiskLevel))
	out.RockSize = ParseRockSize(string(r.RockSize))
	out.Trajectory = ParseTrajectory(string(r.Trajectory))
	out.Confidence = ClampConfidence(r.Confidence)
	return out
}

// ClampConfidence は信頼度を [0, 100] に収める
func ClampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c):
		return 0
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}

// Notification はセッション中に観測された最悪値の要約
type Notification struct {
	RiskLevel       RiskLevel  `json:"riskLevel"`
	RockSize        RockSize   `json:"rockSize"`
	Trajectory      Trajectory `json:"trajectory"`
	Recommendations []string   `json:"recommendations"`
}

// EmptyNotification は初期状態の通知を返す
func EmptyNotification() Notification {
	return Notification{Recommendations: []string{}}
}

// Clone はスライスを含めたコピーを返す
func (n Notification) Clone() Notification {
	out := n
	out.Recommendations = append([]string{}, n.Recommendations...)
	return out
}

// IsEmpty はすべての項目が未設定かどうかを返す
func (n Notification) IsEmpty() bool {
	return n.RiskLevel == RiskUnknown &&
		n.RockSize == SizeUnknown &&
		n.Trajectory == TrajectoryUnknown &&
		len(n.Recommendations) == 0
}

// ConfidencePoint は信頼度履歴の1要素
type ConfidencePoint struct {
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
}

// VideoAnalysis は動画一括解析サービスの結果
type VideoAnalysis struct {
	Filename        string        `json:"filename"`
	RiskLevel       RiskLevel     `json:"riskLevel"`
	Confidence      float64       `json:"confidence"`
	Recommendations []string      `json:"recommendations"`
	Details         string        `json:"details,omitempty"`
	ProcessingTime  time.Duration `json:"processingTime"`
	AnalyzedAt      time.Time     `json:"analyzedAt"`
}
