package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"
)

// MockProvider はテストとデモ用の合成フレームを返すProvider
type MockProvider struct {
	device string
	lease  *Lease

	mu         sync.Mutex
	acquireErr error
	noFrame    bool

	acquisitions atomic.Int64
	releases     atomic.Int64
	owners       atomic.Int64
}

// MockOption はMockProviderの設定
type MockOption func(*MockProvider)

// WithMockLease は排他権を差し替える。nil なら独立した排他権を使う
func WithMockLease(l *Lease) MockOption {
	return func(m *MockProvider) {
		if l != nil {
			m.lease = l
		}
	}
}

// WithMockDevice はデバイス名を設定する
func WithMockDevice(device string) MockOption {
	return func(m *MockProvider) {
		if device != "" {
			m.device = device
		}
	}
}

// NewMockProvider はMockProviderを作成する
func NewMockProvider(opts ...MockOption) *MockProvider {
	m := &MockProvider{
		device: "mock://camera0",
		lease:  NewLease(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FailWith は以降の Acquire を err で失敗させる。nil で解除
func (m *MockProvider) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquireErr = err
}

// SetNoFrame は Snapshot が ErrNoFrame を返すようにする
func (m *MockProvider) SetNoFrame(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.noFrame = v
}

// Acquisitions は成功した Acquire の回数を返す
func (m *MockProvider) Acquisitions() int {
	return int(m.acquisitions.Load())
}

// Releases は実際に解放された回数を返す
func (m *MockProvider) Releases() int {
	return int(m.releases.Load())
}

// Acquire は合成フレームを返すハンドルを作成する
func (m *MockProvider) Acquire(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	err := m.acquireErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	owner := fmt.Sprintf("%s#%d", BackendMock, m.owners.Add(1))
	if err := m.lease.TryAcquire(owner); err != nil {
		return nil, err
	}
	m.acquisitions.Add(1)

	return &mockHandle{
		provider: m,
		owner:    owner,
		info: Info{
			Backend:    BackendMock,
			Device:     m.device,
			Name:       "Mock Camera",
			Width:      mockWidth,
			Height:     mockHeight,
			AcquiredAt: time.Now(),
		},
	}, nil
}

const (
	mockWidth  = 64
	mockHeight = 48
)

type mockHandle struct {
	provider *MockProvider
	owner    string
	info     Info

	mu       sync.Mutex
	seq      int
	released bool
}

func (h *mockHandle) Snapshot() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil, ErrReleased
	}

	h.provider.mu.Lock()
	noFrame := h.provider.noFrame
	h.provider.mu.Unlock()
	if noFrame {
		return nil, ErrNoFrame
	}

	h.seq++
	return syntheticFrame(h.seq)
}

func (h *mockHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil
	}
	h.released = true
	h.provider.lease.Release(h.owner)
	h.provider.releases.Add(1)
	return nil
}

func (h *mockHandle) Info() Info {
	return h.info
}

// syntheticFrame は連番ごとに色が変わるグラデーション画像をJPEGで返す
func syntheticFrame(seq int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, mockWidth, mockHeight))
	shift := uint8(seq * 16)
	for y := 0; y < mockHeight; y++ {
		for x := 0; x < mockWidth; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x*4) + shift,
				G: uint8(y * 5),
				B: 128 - shift,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}
