package camera

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rockwatch/internal/logging"
)

// DefaultStartupTimeout は Acquire が最初のフレームを待つ上限
const DefaultStartupTimeout = 5 * time.Second

// streamFunc はフレームごとに onFrame を呼び、ストリームが終わるまでブロックする
type streamFunc func(ctx context.Context, onFrame func([]byte)) error

// FFmpegProvider はffmpeg経由でV4L2デバイスまたはX11画面を取得する
type FFmpegProvider struct {
	backend        string
	input          ffmpegInput
	lease          *Lease
	name           string
	logger         *logrus.Entry
	lookPath       func(file string) (string, error)
	stream         streamFunc
	startupTimeout time.Duration
}

func newFFmpegProvider(backend string, input ffmpegInput, name string, lease *Lease) *FFmpegProvider {
	logger := logging.NewLogger("camera").WithField("backend", backend)
	return &FFmpegProvider{
		backend:        backend,
		input:          input,
		lease:          lease,
		name:           name,
		logger:         logger,
		lookPath:       exec.LookPath,
		stream:         newFFmpegCapturer(input, logger).Stream,
		startupTimeout: DefaultStartupTimeout,
	}
}

// NewV4L2Provider はV4L2デバイス用のProviderを作成する
func NewV4L2Provider(device string, settings Settings, lease *Lease) *FFmpegProvider {
	input := ffmpegInput{
		format:   "v4l2",
		source:   device,
		settings: settings.withDefaults(),
	}
	return newFFmpegProvider(BackendFFmpeg, input, fmt.Sprintf("USB Camera (%s)", device), lease)
}

// NewX11Provider はX11画面キャプチャ用のProviderを作成する
// 監視カメラの映像を表示している画面をそのまま解析に回す場合に使う
func NewX11Provider(display string, settings Settings, lease *Lease) *FFmpegProvider {
	input := ffmpegInput{
		format:   "x11grab",
		source:   display,
		settings: settings.withDefaults(),
		filter:   "format=yuv420p",
	}
	return newFFmpegProvider(BackendX11, input, fmt.Sprintf("X11 Screen (%s)", display), lease)
}

// Acquire は排他権を取得してからffmpegのストリームを開始する
// 最初のフレームが届くまで待ち、その前にストリームが終了した場合は排他権を返して分類済みのエラーを返す
func (p *FFmpegProvider) Acquire(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := p.lookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: ffmpegが見つかりません", ErrBackendUnavailable)
	}
	if err := p.checkSource(); err != nil {
		return nil, err
	}

	owner := fmt.Sprintf("%s:%s", p.backend, uuid.NewString())
	if err := p.lease.TryAcquire(owner); err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	h := &ffmpegHandle{
		info: Info{
			Backend:    p.backend,
			Device:     p.input.source,
			Name:       p.name,
			Width:      p.input.settings.Width,
			Height:     p.input.settings.Height,
			AcquiredAt: time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
		release: func() {
			p.lease.Release(owner)
		},
	}

	first := make(chan struct{})
	var firstOnce sync.Once
	onFrame := func(frame []byte) {
		h.setLatest(frame)
		firstOnce.Do(func() { close(first) })
	}

	go func() {
		defer close(h.done)
		err := p.stream(streamCtx, onFrame)
		if err != nil && streamCtx.Err() == nil {
			p.logger.WithError(err).Warn("キャプチャストリームが終了しました")
		}
		h.setStreamErr(err)
	}()

	abort := func() {
		cancel()
		<-h.done
		p.lease.Release(owner)
	}

	timer := time.NewTimer(p.startupTimeout)
	defer timer.Stop()

	select {
	case <-first:
	case <-h.done:
		p.lease.Release(owner)
		cancel()
		return nil, classifyStreamError(p.input.source, h.streamError())
	case <-timer.C:
		abort()
		return nil, fmt.Errorf("%w: %s から %s 以内にフレームが届きません", ErrNoFrame, p.input.source, p.startupTimeout)
	case <-ctx.Done():
		abort()
		return nil, ctx.Err()
	}

	p.logger.WithField("device", p.input.source).Info("カメラを取得しました")
	return h, nil
}

// classifyStreamError はffmpegの終了理由をセンチネルエラーに分類する
func classifyStreamError(source string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrStreamFailed, source)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "device or resource busy"):
		return fmt.Errorf("%w: %s", ErrBusy, source)
	case strings.Contains(msg, "permission denied"):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, source)
	case strings.Contains(msg, "no such file or directory"), strings.Contains(msg, "cannot open display"):
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, source)
	default:
		return fmt.Errorf("%w: %v", ErrStreamFailed, err)
	}
}

func (p *FFmpegProvider) checkSource() error {
	if p.backend == BackendX11 {
		if p.input.source == "" {
			return fmt.Errorf("%w: ディスプレイが指定されていません", ErrDeviceNotFound)
		}
		return nil
	}
	return checkDeviceAccess(p.input.source)
}

// checkDeviceAccess はデバイスファイルの存在と読み取り権限を確認する
func checkDeviceAccess(device string) error {
	f, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return classifyOpenError(device, err)
	}
	_ = f.Close()
	return nil
}

func classifyOpenError(device string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, device)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, device)
	default:
		return fmt.Errorf("デバイスのオープンに失敗 (%s): %w", device, err)
	}
}

type ffmpegHandle struct {
	info Info

	mu        sync.RWMutex
	latest    []byte
	streamErr error

	cancel      context.CancelFunc
	done        chan struct{}
	release     func()
	releaseOnce sync.Once
	released    bool
}

func (h *ffmpegHandle) setLatest(frame []byte) {
	h.mu.Lock()
	h.latest = frame
	h.mu.Unlock()
}

func (h *ffmpegHandle) streamError() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.streamErr
}

func (h *ffmpegHandle) setStreamErr(err error) {
	h.mu.Lock()
	if err == nil {
		err = errors.New("ストリームが終了しました")
	}
	h.streamErr = err
	h.mu.Unlock()
}

// Snapshot はストリーミング中の最新フレームのコピーを返す
// ストリームが終了した後は ErrStreamFailed を返す
func (h *ffmpegHandle) Snapshot() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.released {
		return nil, ErrReleased
	}
	if h.streamErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamFailed, h.streamErr)
	}
	if h.latest == nil {
		return nil, ErrNoFrame
	}

	frame := make([]byte, len(h.latest))
	copy(frame, h.latest)
	return frame, nil
}

// Release はffmpegを停止し、排他権を返却する
func (h *ffmpegHandle) Release() error {
	h.releaseOnce.Do(func() {
		h.cancel()
		<-h.done

		h.mu.Lock()
		h.released = true
		h.latest = nil
		h.mu.Unlock()

		h.release()
	})
	return nil
}

func (h *ffmpegHandle) Info() Info {
	return h.info
}
