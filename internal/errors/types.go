// Package errors はアプリケーション全体で使うコード付きエラーを提供する
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode はエラーの種別を表す
type ErrorCode string

const (
	// カメラ関連
	ErrCodeResourceUnavailable ErrorCode = "RESOURCE_UNAVAILABLE"

	// 推論サービス関連
	ErrCodeTransientDispatch ErrorCode = "TRANSIENT_DISPATCH"
	ErrCodeAnalysisFailed    ErrorCode = "ANALYSIS_FAILED"

	// 設定関連
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// 汎用
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// AppError はコードと詳細情報を持つ構造化エラー
type AppError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error はerrorインターフェースを実装する
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap は原因となったエラーを返す
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail は詳細情報を追加する
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON はエラーをJSON文字列に変換する
func (e *AppError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New は新しいAppErrorを作成する
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap は既存のエラーをAppErrorで包む
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is はエラーチェーンに指定コードのAppErrorが含まれるか判定する
func Is(err error, code ErrorCode) bool {
	return GetCode(err) == code && code != ""
}

// As はエラーチェーンから最初のAppErrorを取り出す
func As(err error, target **AppError) bool {
	return stderrors.As(err, target)
}

// GetCode はエラーチェーンから最初に見つかったコードを取り出す
func GetCode(err error) ErrorCode {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			return appErr.Code
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = unwrapper.Unwrap()
	}
	return ""
}
