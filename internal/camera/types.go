package camera

import (
	"context"
	"time"
)

// Settings はキャプチャ設定を表す
type Settings struct {
	Width  int // 画像幅
	Height int // 画像高さ
	FPS    int // フレームレート
}

// DefaultSettings は既定のキャプチャ設定を返す
func DefaultSettings() Settings {
	return Settings{Width: 1280, Height: 720, FPS: 15}
}

// withDefaults は未指定の項目を既定値で埋める
func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.Width <= 0 {
		s.Width = def.Width
	}
	if s.Height <= 0 {
		s.Height = def.Height
	}
	if s.FPS <= 0 {
		s.FPS = def.FPS
	}
	return s
}

// Info は取得済みカメラの情報
type Info struct {
	Backend    string    `json:"backend"`
	Device     string    `json:"device"`
	Name       string    `json:"name"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// Handle は取得済みカメラへの排他的な参照
// Release はちょうど1回だけ実際の解放を行い、2回目以降は何もしない
type Handle interface {
	// Snapshot は最新フレームをJPEGで返す。まだフレームがなければ ErrNoFrame
	Snapshot() ([]byte, error)

	// Release はカメラを解放する
	Release() error

	// Info は取得時の情報を返す
	Info() Info
}

// Provider はカメラの取得を担う
type Provider interface {
	// Acquire はカメラを排他的に取得する
	Acquire(ctx context.Context) (Handle, error)
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]string, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device string) bool

	// GetDeviceInfo はデバイスの詳細情報を取得する
	GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error)
}

// DeviceInfo はカメラデバイスの詳細情報を表す
type DeviceInfo struct {
	Device  string   `json:"device"`
	Name    string   `json:"name"`
	Driver  string   `json:"driver"`
	Formats []string `json:"formats"`
}
