// Package dispatch はキャプチャしたフレームを推論サービスへ非同期に送る
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"rockwatch/internal/assessment"
	"rockwatch/internal/camera"
	apperrors "rockwatch/internal/errors"
	"rockwatch/internal/logging"
	"rockwatch/internal/state"
)

// DefaultTimeout は1回の推論送信の既定の上限
const DefaultTimeout = 10 * time.Second

// FrameSource は現在のフレームを返すもの (camera.Handle が満たす)
type FrameSource interface {
	Snapshot() ([]byte, error)
}

// Predictor はフレーム1枚の推論を行う
type Predictor interface {
	PredictFrame(ctx context.Context, jpeg []byte) (*assessment.FrameResult, error)
}

// Applier は推論結果を集約に反映する
type Applier interface {
	Apply(result assessment.FrameResult)
}

// ErrorSink はオペレーター向けのエラー表示を受け取る
type ErrorSink interface {
	SetLastError(e state.LastError)
}

// Stats は送信の集計値
type Stats struct {
	Sent      uint64 `json:"sent"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	InFlight  int64  `json:"inFlight"`
}

// Dispatcher はフレームの取得と送信を担う
// 送信は投げっぱなしで、完了は到着順に集約へ反映される
type Dispatcher struct {
	predictor Predictor
	applier   Applier
	sink      ErrorSink
	timeout   time.Duration
	logger    *logrus.Entry
	now       func() time.Time

	wg        sync.WaitGroup
	inFlight  atomic.Int64
	sent      atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64

	// captureFailing はカメラ側の障害の警告ログを繰り返さないためのフラグ
	captureFailing atomic.Bool
}

// Option はDispatcherの設定
type Option func(*Dispatcher)

// WithTimeout は1回の送信の上限を設定する
func WithTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.timeout = d
		}
	}
}

// WithLogger はロガーを設定する
func WithLogger(l *logrus.Entry) Option {
	return func(dp *Dispatcher) { dp.logger = l }
}

// WithClock は時刻の取得元を差し替える
func WithClock(now func() time.Time) Option {
	return func(dp *Dispatcher) { dp.now = now }
}

// New はDispatcherを作成する
func New(predictor Predictor, applier Applier, sink ErrorSink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		predictor: predictor,
		applier:   applier,
		sink:      sink,
		timeout:   DefaultTimeout,
		logger:    logging.NewLogger("dispatch"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Capture は現在のフレームを同期的に取得する
// フレームがまだない、またはセッションが終了している場合は false を返す
// ストリームが止まった場合は last_error に RESOURCE_UNAVAILABLE を書く
func (d *Dispatcher) Capture(ctx context.Context, source FrameSource) ([]byte, bool) {
	if ctx.Err() != nil || source == nil {
		return nil, false
	}

	frame, err := source.Snapshot()
	switch {
	case err == nil:
	case errors.Is(err, camera.ErrNoFrame), errors.Is(err, camera.ErrReleased):
		return nil, false
	case errors.Is(err, camera.ErrStreamFailed):
		d.captureFailed(err)
		return nil, false
	default:
		d.logger.WithError(err).Debug("フレームの取得に失敗しました")
		return nil, false
	}
	if len(frame) == 0 {
		return nil, false
	}
	d.captureFailing.Store(false)
	return frame, true
}

func (d *Dispatcher) captureFailed(err error) {
	appErr := apperrors.New(apperrors.ErrCodeResourceUnavailable, "カメラからフレームを取得できません")
	if d.captureFailing.Swap(true) {
		d.logger.WithError(err).Debug("カメラのストリームが停止しています")
	} else {
		d.logger.WithError(err).Warn("カメラのストリームが停止しました")
	}

	if d.sink != nil {
		d.sink.SetLastError(state.LastError{
			Kind:    string(appErr.Code),
			Message: fmt.Sprintf("%s: %v", appErr.Message, err),
			At:      d.now(),
		})
	}
}

// Dispatch はフレームを非同期に送信してすぐに戻る
// 送信にはセッションとは独立したタイムアウトを使う
func (d *Dispatcher) Dispatch(frame []byte, capturedAt time.Time) {
	d.wg.Add(1)
	d.inFlight.Add(1)
	d.sent.Add(1)

	go func() {
		defer d.wg.Done()
		defer d.inFlight.Add(-1)

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		result, err := d.predictor.PredictFrame(ctx, frame)
		if err == nil && result == nil {
			err = errors.New("空の推論結果")
		}
		if err != nil {
			d.fail(err, capturedAt)
			return
		}

		r := result.Clone()
		r.Timestamp = d.now()
		d.applier.Apply(r)
		d.succeeded.Add(1)

		d.logger.WithFields(logrus.Fields{
			"risk":       r.RiskLevel,
			"confidence": r.Confidence,
			"latency":    r.Timestamp.Sub(capturedAt),
		}).Debug("推論結果を反映しました")
	}()
}

func (d *Dispatcher) fail(err error, capturedAt time.Time) {
	d.failed.Add(1)

	appErr := apperrors.TransientDispatch(err)
	d.logger.WithError(err).WithField("captured_at", capturedAt).Warn("フレームの推論に失敗しました")

	if d.sink != nil {
		d.sink.SetLastError(state.LastError{
			Kind:    string(appErr.Code),
			Message: fmt.Sprintf("%s: %v", appErr.Message, err),
			At:      d.now(),
		})
	}
}

// Wait は送信中のリクエストがすべて終わるまで待つ
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// WaitContext は ctx が終わるまでの間だけ Wait する
func (d *Dispatcher) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight は送信中のリクエスト数を返す
func (d *Dispatcher) InFlight() int64 {
	return d.inFlight.Load()
}

// Stats は集計値を返す
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Sent:      d.sent.Load(),
		Succeeded: d.succeeded.Load(),
		Failed:    d.failed.Load(),
		InFlight:  d.inFlight.Load(),
	}
}
