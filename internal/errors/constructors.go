package errors

import "fmt"

// ResourceUnavailable はカメラを取得できなかったことを表すエラーを作成する
func ResourceUnavailable(device string, cause error) *AppError {
	return Wrap(cause, ErrCodeResourceUnavailable, fmt.Sprintf("カメラを利用できません: %s", device)).
		WithDetail("device", device)
}

// TransientDispatch は1フレーム分の推論送信失敗を表すエラーを作成する
func TransientDispatch(cause error) *AppError {
	return Wrap(cause, ErrCodeTransientDispatch, "推論サーバーへの送信に失敗しました")
}

// AnalysisFailed は動画解析の失敗を表すエラーを作成する
func AnalysisFailed(filename string, cause error) *AppError {
	return Wrap(cause, ErrCodeAnalysisFailed, fmt.Sprintf("動画の解析に失敗しました: %s", filename)).
		WithDetail("filename", filename)
}

// ConfigNotFound は設定ファイルが見つからないことを表すエラーを作成する
func ConfigNotFound(path string) *AppError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("設定ファイルが見つかりません: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid は設定値が不正であることを表すエラーを作成する
func ConfigInvalid(reason string) *AppError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("無効な設定: %s", reason))
}

// InvalidInput は入力が不正であることを表すエラーを作成する
func InvalidInput(reason string) *AppError {
	return New(ErrCodeInvalidInput, reason)
}
