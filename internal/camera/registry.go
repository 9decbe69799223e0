package camera

import (
	"fmt"
	"sort"
	"sync"
)

// バックエンド名
const (
	BackendFFmpeg = "ffmpeg"
	BackendX11    = "x11"
	BackendGoCV   = "gocv"
	BackendMock   = "mock"
)

// Options はProvider作成時の設定
type Options struct {
	Backend  string
	Device   string
	Settings Settings
	// Lease が nil の場合は SharedLease を使う
	Lease *Lease
}

// Factory はProviderを作成する関数
type Factory func(opts Options) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

func init() {
	Register(BackendFFmpeg, func(opts Options) (Provider, error) {
		if opts.Device == "" {
			return nil, fmt.Errorf("ffmpegバックエンドにはデバイスパスが必要です")
		}
		return NewV4L2Provider(opts.Device, opts.Settings, opts.Lease), nil
	})
	Register(BackendX11, func(opts Options) (Provider, error) {
		display := opts.Device
		if display == "" {
			display = ":0.0"
		}
		return NewX11Provider(display, opts.Settings, opts.Lease), nil
	})
	Register(BackendMock, func(opts Options) (Provider, error) {
		return NewMockProvider(WithMockLease(opts.Lease), WithMockDevice(opts.Device)), nil
	})
}

// Register はバックエンドを登録する
// ビルドタグ付きのバックエンドは init から呼び出す
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Backends は登録済みのバックエンド名を返す
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewProvider は設定に応じたProviderを作成する
func NewProvider(opts Options) (Provider, error) {
	factoriesMu.RLock()
	f, ok := factories[opts.Backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("サポートされていないバックエンド: %s (利用可能: %v)", opts.Backend, Backends())
	}

	if opts.Lease == nil {
		opts.Lease = SharedLease()
	}
	return f(opts)
}
