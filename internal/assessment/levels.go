package assessment

import (
	"encoding/json"
	"strings"
)

// RiskLevel はリスクレベルを表す
type RiskLevel string

// RockSize は岩石サイズを表す
type RockSize string

// Trajectory は落石軌道の安定度を表す
type Trajectory string

const (
	RiskUnknown  RiskLevel = ""
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

const (
	SizeUnknown RockSize = ""
	SizeSmall   RockSize = "Small"
	SizeMedium  RockSize = "Medium"
	SizeLarge   RockSize = "Large"
)

const (
	TrajectoryUnknown  Trajectory = ""
	TrajectoryStable   Trajectory = "Stable"
	TrajectoryModerate Trajectory = "Moderate"
	TrajectoryUnstable Trajectory = "Unstable"
)

var riskOrder = []RiskLevel{RiskUnknown, RiskLow, RiskMedium, RiskHigh, RiskCritical}
var sizeOrder = []RockSize{SizeUnknown, SizeSmall, SizeMedium, SizeLarge}
var trajectoryOrder = []Trajectory{TrajectoryUnknown, TrajectoryStable, TrajectoryModerate, TrajectoryUnstable}

// ParseRiskLevel は文字列をRiskLevelに変換する
func ParseRiskLevel(s string) RiskLevel {
	return riskOrder[rankOf(s, riskOrder)]
}

// ParseRockSize は文字列をRockSizeに変換する
func ParseRockSize(s string) RockSize {
	return sizeOrder[rankOf(s, sizeOrder)]
}

// ParseTrajectory は文字列をTrajectoryに変換する
func ParseTrajectory(s string) Trajectory {
	return trajectoryOrder[rankOf(s, trajectoryOrder)]
}

// Rank は優先度を返す（Low=1 ... Critical=4、不明=0）
func (r RiskLevel) Rank() int { return rankOf(string(r), riskOrder) }

// Rank は優先度を返す（Small=1 ... Large=3、不明=0）
func (s RockSize) Rank() int { return rankOf(string(s), sizeOrder) }

// Rank は優先度を返す（Stable=1 ... Unstable=3、不明=0）
func (t Trajectory) Rank() int { return rankOf(string(t), trajectoryOrder) }

// WorseRisk は a が b より厳密に高い優先度を持つ場合に true を返す
func WorseRisk(a, b RiskLevel) bool { return a.Rank() > b.Rank() }

// WorseSize は a が b より厳密に大きい場合に true を返す
func WorseSize(a, b RockSize) bool { return a.Rank() > b.Rank() }

// WorseTrajectory は a が b より厳密に不安定な場合に true を返す
func WorseTrajectory(a, b Trajectory) bool { return a.Rank() > b.Rank() }

// UnmarshalJSON は推論サービスの表記ゆれを吸収する
func (r *RiskLevel) UnmarshalJSON(data []byte) error {
	s, err := unmarshalLevel(data)
	if err != nil {
		return err
	}
	*r = ParseRiskLevel(s)
	return nil
}

// UnmarshalJSON は推論サービスの表記ゆれを吸収する
func (s *RockSize) UnmarshalJSON(data []byte) error {
	v, err := unmarshalLevel(data)
	if err != nil {
		return err
	}
	*s = ParseRockSize(v)
	return nil
}

// UnmarshalJSON は推論サービスの表記ゆれを吸収する
func (t *Trajectory) UnmarshalJSON(data []byte) error {
	v, err := unmarshalLevel(data)
	if err != nil {
		return err
	}
	*t = ParseTrajectory(v)
	return nil
}

// unmarshalLevel は null や文字列以外の値を不明として扱う
func unmarshalLevel(data []byte) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", nil
	}
	return s, nil
}

// rankOf は順序表の中での位置を返す。見つからなければ0
func rankOf[T ~string](s string, order []T) int {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return 0
	}
	if key == "mid" {
		key = "medium"
	}
	for i := 1; i < len(order); i++ {
		if strings.ToLower(string(order[i])) == key {
			return i
		}
	}
	return 0
}
