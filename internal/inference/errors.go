package inference

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsuccessful はサービスが success:false を返したことを表す
	ErrUnsuccessful = errors.New("inference: service reported failure")

	// ErrEmptyFrame は空のフレームを送ろうとしたことを表す
	ErrEmptyFrame = errors.New("inference: empty frame")
)

// APIError は推論サービスの2xx以外の応答
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("inference %s: API error %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// IsServerError はサーバー側エラー(5xx)かどうかを返す
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsAPIError は err の連鎖に APIError が含まれていればそれを返す
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
