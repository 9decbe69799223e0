// Package state はビュー間で共有される状態を保持する
//
// 描画側はこのストアを読み取るだけで、書き込みは集約処理と
// オペレーターのリフレッシュ操作に限られる。各ビューはグローバル変数ではなく
// ストアの参照を受け取って利用する。
package state

import (
	"sync"
	"time"

	"rockwatch/internal/assessment"
)

// Slot は共有状態の名前付きスロット
type Slot string

const (
	SlotNotification      Slot = "notification"
	SlotConfidenceHistory Slot = "confidence_history"
	SlotLiveFrames        Slot = "live_frames"
	SlotMonitoring        Slot = "monitoring"
	SlotVideoAnalysis     Slot = "video_analysis"
	SlotLastError         Slot = "last_error"
)

// AllSlots は全スロット名を返す
func AllSlots() []Slot {
	return []Slot{
		SlotNotification,
		SlotConfidenceHistory,
		SlotLiveFrames,
		SlotMonitoring,
		SlotVideoAnalysis,
		SlotLastError,
	}
}

// セッション中だけ有効なフラグ
const (
	FlagCameraActive = "camera_active"
	FlagCameraStream = "camera_stream"
)

// MonitoringData はライブ監視ビューが反映するカメラ状態
type MonitoringData struct {
	CameraActive bool      `json:"cameraActive"`
	ChangedAt    time.Time `json:"changedAt"`
}

// LastError はオペレーターに表示する直近のエラー
type LastError struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Slots は全スロットの値
// Mutate のコールバック内でのみ直接変更してよい
type Slots struct {
	Notification      assessment.Notification
	ConfidenceHistory []assessment.ConfidencePoint
	LiveFrames        []assessment.FrameResult
	Monitoring        *MonitoringData
	VideoAnalysis     *assessment.VideoAnalysis
	LastError         *LastError
}

// Snapshot は描画側に渡す読み取り専用のコピー
type Snapshot struct {
	Version           uint64                       `json:"version"`
	Notification      assessment.Notification      `json:"notification"`
	ConfidenceHistory []assessment.ConfidencePoint `json:"confidenceHistory"`
	LiveFrames        []assessment.FrameResult     `json:"liveFrames"`
	Monitoring        *MonitoringData              `json:"monitoring"`
	VideoAnalysis     *assessment.VideoAnalysis    `json:"videoAnalysis"`
	LastError         *LastError                   `json:"lastError"`
	Flags             map[string]string            `json:"flags"`
}

// Store は共有状態の保持者
type Store struct {
	mu      sync.RWMutex
	slots   Slots
	flags   map[string]string
	version uint64
}

// NewStore は空の状態でStoreを作成する
func NewStore() *Store {
	return &Store{
		slots: emptySlots(),
		flags: make(map[string]string),
	}
}

func emptySlots() Slots {
	return Slots{
		Notification:      assessment.EmptyNotification(),
		ConfidenceHistory: []assessment.ConfidencePoint{},
		LiveFrames:        []assessment.FrameResult{},
	}
}

// Mutate はロックを取得した状態で fn を実行する
// 読み取りと書き込みを1つの不可分な操作として行いたい場合に使う
func (s *Store) Mutate(fn func(slots *Slots)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.slots)
	s.version++
}

// Notification は通知状態のコピーを返す
func (s *Store) Notification() assessment.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots.Notification.Clone()
}

// SetNotification は通知状態を置き換える
func (s *Store) SetNotification(n assessment.Notification) {
	n = n.Clone()
	s.Mutate(func(slots *Slots) { slots.Notification = n })
}

// ConfidenceHistory は信頼度履歴のコピーを返す
func (s *Store) ConfidenceHistory() []assessment.ConfidencePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]assessment.ConfidencePoint{}, s.slots.ConfidenceHistory...)
}

// LiveFrames はフレームログのコピーを返す
func (s *Store) LiveFrames() []assessment.FrameResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneFrames(s.slots.LiveFrames)
}

// Monitoring はライブ監視ビューの状態を返す
func (s *Store) Monitoring() (MonitoringData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.slots.Monitoring == nil {
		return MonitoringData{}, false
	}
	return *s.slots.Monitoring, true
}

// SetMonitoring はライブ監視ビューの状態を設定する
func (s *Store) SetMonitoring(m MonitoringData) {
	s.Mutate(func(slots *Slots) { slots.Monitoring = &m })
}

// VideoAnalysis は動画解析結果を返す
func (s *Store) VideoAnalysis() (assessment.VideoAnalysis, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.slots.VideoAnalysis == nil {
		return assessment.VideoAnalysis{}, false
	}
	return cloneAnalysis(*s.slots.VideoAnalysis), true
}

// SetVideoAnalysis は動画解析結果を設定する
func (s *Store) SetVideoAnalysis(a assessment.VideoAnalysis) {
	a = cloneAnalysis(a)
	s.Mutate(func(slots *Slots) { slots.VideoAnalysis = &a })
}

// LastError は直近のエラーを返す
func (s *Store) LastError() (LastError, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.slots.LastError == nil {
		return LastError{}, false
	}
	return *s.slots.LastError, true
}

// SetLastError はエラー表示を更新する
func (s *Store) SetLastError(e LastError) {
	s.Mutate(func(slots *Slots) { slots.LastError = &e })
}

// ClearLastError はエラー表示を消去する
func (s *Store) ClearLastError() {
	s.Mutate(func(slots *Slots) { slots.LastError = nil })
}

// SetFlag はセッションフラグを設定する
func (s *Store) SetFlag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[key] = value
	s.version++
}

// ClearFlag はセッションフラグを削除する
func (s *Store) ClearFlag(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flags[key]; ok {
		delete(s.flags, key)
		s.version++
	}
}

// Flag はセッションフラグの値を返す
func (s *Store) Flag(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.flags[key]
	return v, ok
}

// Flags は全セッションフラグのコピーを返す
func (s *Store) Flags() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyFlags(s.flags)
}

// ResetSession は通知状態と履歴バッファだけを初期化する
func (s *Store) ResetSession() {
	s.Mutate(func(slots *Slots) {
		slots.Notification = assessment.EmptyNotification()
		slots.ConfidenceHistory = []assessment.ConfidencePoint{}
		slots.LiveFrames = []assessment.FrameResult{}
	})
}

// RefreshAll は全スロットを初期値に戻し、セッションフラグも消去する
func (s *Store) RefreshAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.slots = emptySlots()
	s.flags = make(map[string]string)
	s.version++
}

// Version は変更のたびに増加するカウンターを返す
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot は全スロットのコピーを返す
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Version:           s.version,
		Notification:      s.slots.Notification.Clone(),
		ConfidenceHistory: append([]assessment.ConfidencePoint{}, s.slots.ConfidenceHistory...),
		LiveFrames:        cloneFrames(s.slots.LiveFrames),
		Flags:             copyFlags(s.flags),
	}
	if s.slots.Monitoring != nil {
		m := *s.slots.Monitoring
		snap.Monitoring = &m
	}
	if s.slots.VideoAnalysis != nil {
		a := cloneAnalysis(*s.slots.VideoAnalysis)
		snap.VideoAnalysis = &a
	}
	if s.slots.LastError != nil {
		e := *s.slots.LastError
		snap.LastError = &e
	}
	return snap
}

// Get は名前付きスロットの値を返す。未知のスロットなら false
func (s *Store) Get(slot Slot) (interface{}, bool) {
	snap := s.Snapshot()

	switch slot {
	case SlotNotification:
		return snap.Notification, true
	case SlotConfidenceHistory:
		return snap.ConfidenceHistory, true
	case SlotLiveFrames:
		return snap.LiveFrames, true
	case SlotMonitoring:
		return snap.Monitoring, true
	case SlotVideoAnalysis:
		return snap.VideoAnalysis, true
	case SlotLastError:
		return snap.LastError, true
	default:
		return nil, false
	}
}

func cloneFrames(frames []assessment.FrameResult) []assessment.FrameResult {
	out := make([]assessment.FrameResult, len(frames))
	for i, f := range frames {
		out[i] = f.Clone()
	}
	return out
}

func cloneAnalysis(a assessment.VideoAnalysis) assessment.VideoAnalysis {
	out := a
	out.Recommendations = append([]string(nil), a.Recommendations...)
	return out
}

func copyFlags(flags map[string]string) map[string]string {
	out := make(map[string]string, len(flags))
	for k, v := range flags {
		out[k] = v
	}
	return out
}
