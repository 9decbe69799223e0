package camera

import "errors"

var (
	// ErrPermissionDenied はデバイスへのアクセス権限がないことを表す
	ErrPermissionDenied = errors.New("camera: permission denied")

	// ErrDeviceNotFound はデバイスが存在しないことを表す
	ErrDeviceNotFound = errors.New("camera: device not found")

	// ErrBusy は別のセッションがカメラを保持していることを表す
	ErrBusy = errors.New("camera: device busy")

	// ErrNoFrame はまだフレームが取得できていないことを表す
	ErrNoFrame = errors.New("camera: no frame available")

	// ErrReleased は解放済みのハンドルを使おうとしたことを表す
	ErrReleased = errors.New("camera: handle released")

	// ErrStreamFailed はキャプチャストリームが終了し、以降フレームが届かないことを表す
	ErrStreamFailed = errors.New("camera: capture stream failed")

	// ErrBackendUnavailable はキャプチャに必要な外部コマンドやライブラリがないことを表す
	ErrBackendUnavailable = errors.New("camera: backend unavailable")
)
