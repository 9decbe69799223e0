// Package monitor はライブ監視ビューの状態を保持する
//
// ビューはセッションを直接参照せず、EventBridge の通知だけでカメラの
// 稼働状態を知る。
package monitor

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"rockwatch/internal/bridge"
	"rockwatch/internal/logging"
	"rockwatch/internal/state"
)

// Subscriber は通知の購読を提供する
type Subscriber interface {
	Subscribe(name string, handler bridge.Handler) *bridge.Subscription
	Unsubscribe(sub *bridge.Subscription)
}

// MonitoringSink は監視ビューの状態の書き込み先
type MonitoringSink interface {
	SetMonitoring(m state.MonitoringData)
}

// View はライブ監視ビュー
type View struct {
	bridge   Subscriber
	sink     MonitoringSink
	sub      *bridge.Subscription
	received atomic.Uint64
	logger   *logrus.Entry
}

// New は通知の購読を開始したビューを作成する
func New(b Subscriber, sink MonitoringSink) *View {
	v := &View{
		bridge: b,
		sink:   sink,
		logger: logging.NewLogger("monitor"),
	}
	v.sub = b.Subscribe("monitor", v.handle)
	return v
}

func (v *View) handle(n bridge.Notice) {
	v.received.Add(1)
	v.sink.SetMonitoring(state.MonitoringData{
		CameraActive: n.Active,
		ChangedAt:    n.At,
	})
	v.logger.WithField("camera_active", n.Active).Debug("監視状態を更新しました")
}

// Received は受け取った通知の数を返す
func (v *View) Received() uint64 {
	return v.received.Load()
}

// Close は購読を解除する
func (v *View) Close() error {
	v.bridge.Unsubscribe(v.sub)
	return nil
}
