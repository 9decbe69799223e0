// Package session はカメラセッションのライフサイクルを管理する
//
// セッションは Idle と Active の2状態を持つ。Active の間だけカメラを保持し、
// 一定間隔でフレームを取得して推論に回す。状態の変化は EventBridge で通知する。
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rockwatch/internal/camera"
	"rockwatch/internal/dispatch"
	apperrors "rockwatch/internal/errors"
	"rockwatch/internal/logging"
	"rockwatch/internal/state"
)

// DefaultInterval はフレーム取得の既定の間隔
const DefaultInterval = time.Second

// State はセッションの状態
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
)

// FrameDispatcher はフレームの取得と送信を行う
type FrameDispatcher interface {
	Capture(ctx context.Context, source dispatch.FrameSource) ([]byte, bool)
	Dispatch(frame []byte, capturedAt time.Time)
}

// Resetter はセッション開始時に集約を初期化する
type Resetter interface {
	Reset()
}

// FlagStore はセッションフラグとエラー表示を保持する
type FlagStore interface {
	SetFlag(key, value string)
	ClearFlag(key string)
	ClearLastError()
}

// Publisher はカメラの状態変化を通知する
type Publisher interface {
	Publish(active bool)
}

// Deps はセッションが利用するコンポーネント
type Deps struct {
	Provider    camera.Provider
	Dispatcher  FrameDispatcher
	Aggregation Resetter
	State       FlagStore
	Bridge      Publisher
}

// Status はセッションの状態のスナップショット
type Status struct {
	State     State        `json:"state"`
	SessionID string       `json:"sessionId,omitempty"`
	StartedAt *time.Time   `json:"startedAt,omitempty"`
	Ticks     uint64       `json:"ticks"`
	Captured  uint64       `json:"captured"`
	Device    string       `json:"device,omitempty"`
	Camera    *camera.Info `json:"camera,omitempty"`
}

// Session はカメラセッション
type Session struct {
	deps     Deps
	interval time.Duration
	device   string
	logger   *logrus.Entry
	now      func() time.Time

	// opMu は Start と Stop を直列化する。通知の順序もこれで保証する
	opMu sync.Mutex

	mu        sync.RWMutex
	state     State
	sessionID string
	startedAt time.Time
	handle    camera.Handle
	cancel    context.CancelFunc
	done      chan struct{}
	latest    []byte

	ticks    atomic.Uint64
	captured atomic.Uint64
}

// Option はセッションの設定
type Option func(*Session)

// WithInterval はフレーム取得間隔を設定する
func WithInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithDevice はエラー表示に使うデバイス名を設定する
func WithDevice(device string) Option {
	return func(s *Session) { s.device = device }
}

// WithLogger はロガーを設定する
func WithLogger(l *logrus.Entry) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock は時刻の取得元を差し替える
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New はIdle状態のセッションを作成する
func New(deps Deps, opts ...Option) *Session {
	s := &Session{
		deps:     deps,
		interval: DefaultInterval,
		logger:   logging.NewLogger("session"),
		now:      time.Now,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start はカメラを取得してフレームの定期送信を開始する
// Active の場合は何もしない。取得に失敗した場合は RESOURCE_UNAVAILABLE を返し、状態は変わらない
func (s *Session) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.State() == StateActive {
		return nil
	}

	handle, err := s.deps.Provider.Acquire(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("device", s.device).Warn("カメラの取得に失敗しました")
		return apperrors.ResourceUnavailable(s.device, err)
	}

	id := uuid.NewString()
	s.deps.Aggregation.Reset()
	s.deps.State.ClearLastError()

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.state = StateActive
	s.sessionID = id
	s.startedAt = s.now()
	s.handle = handle
	s.cancel = cancel
	s.done = done
	s.latest = nil
	s.mu.Unlock()
	s.ticks.Store(0)
	s.captured.Store(0)

	s.deps.State.SetFlag(state.FlagCameraActive, "true")
	s.deps.State.SetFlag(state.FlagCameraStream, id)

	go s.run(loopCtx, handle, done)

	info := handle.Info()
	s.logger.WithFields(logrus.Fields{
		"session_id": id,
		"device":     info.Device,
		"backend":    info.Backend,
		"interval":   s.interval,
	}).Info("カメラセッションを開始しました")

	s.deps.Bridge.Publish(true)
	return nil
}

// Stop はフレーム送信を止めてカメラを解放する
// Idle の場合は何もしない。送信中のリクエストは中断しない
func (s *Session) Stop() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	active := s.state == StateActive
	cancel, done, handle, id := s.cancel, s.done, s.handle, s.sessionID
	s.mu.RUnlock()
	if !active {
		return
	}

	cancel()
	<-done

	if err := handle.Release(); err != nil {
		s.logger.WithError(err).Warn("カメラの解放に失敗しました")
	}

	s.mu.Lock()
	s.state = StateIdle
	s.handle = nil
	s.cancel = nil
	s.done = nil
	s.latest = nil
	s.mu.Unlock()

	s.deps.State.ClearFlag(state.FlagCameraActive)
	s.deps.State.ClearFlag(state.FlagCameraStream)

	s.logger.WithFields(logrus.Fields{
		"session_id": id,
		"ticks":      s.ticks.Load(),
	}).Info("カメラセッションを停止しました")

	s.deps.Bridge.Publish(false)
}

// Close はプロセス終了時やビュー破棄時の後始末を行う
func (s *Session) Close() error {
	s.Stop()
	return nil
}

// run は一定間隔でフレームを取得して送信する
func (s *Session) run(ctx context.Context, handle camera.Handle, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, handle)
		}
	}
}

func (s *Session) tick(ctx context.Context, handle camera.Handle) {
	s.ticks.Add(1)

	frame, ok := s.deps.Dispatcher.Capture(ctx, handle)
	if !ok {
		return
	}
	s.captured.Add(1)

	s.mu.Lock()
	s.latest = frame
	s.mu.Unlock()

	s.deps.Dispatcher.Dispatch(frame, s.now())
}

// State は現在の状態を返す
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsActive は Active かどうかを返す
func (s *Session) IsActive() bool {
	return s.State() == StateActive
}

// Status は現在の状態を返す
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		State:    s.state,
		Ticks:    s.ticks.Load(),
		Captured: s.captured.Load(),
		Device:   s.device,
	}
	if s.state == StateActive {
		started := s.startedAt
		info := s.handle.Info()
		st.SessionID = s.sessionID
		st.StartedAt = &started
		st.Device = info.Device
		st.Camera = &info
	}
	return st
}

// LatestFrame は直近に取得したJPEGフレームを返す
// 返すスライスは共有されるため変更しないこと
func (s *Session) LatestFrame() ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != StateActive || s.latest == nil {
		return nil, false
	}
	return s.latest, true
}
