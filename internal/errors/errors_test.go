package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	err := New(ErrCodeInvalidInput, "bad input")
	assert.Equal(t, ErrCodeInvalidInput, err.Code)
	assert.Equal(t, "INVALID_INPUT: bad input", err.Error())

	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeTransientDispatch, "dispatch failed")
	assert.Equal(t, cause, wrapped.Unwrap())
	assert.True(t, Is(wrapped, ErrCodeTransientDispatch))
	assert.False(t, Is(wrapped, ErrCodeResourceUnavailable))

	detailed := err.WithDetail("field", "confidence")
	assert.Equal(t, "confidence", detailed.Details["field"])
}

func TestIsThroughFmtWrap(t *testing.T) {
	// fmt.Errorf の %w で包まれていてもコードを取り出せる
	inner := ResourceUnavailable("/dev/video0", fmt.Errorf("permission denied"))
	outer := fmt.Errorf("セッション開始に失敗: %w", inner)

	assert.True(t, Is(outer, ErrCodeResourceUnavailable))
	assert.Equal(t, ErrCodeResourceUnavailable, GetCode(outer))
	assert.Equal(t, ErrorCode(""), GetCode(fmt.Errorf("plain")))
	assert.False(t, Is(nil, ErrCodeInternal))
}

func TestConstructors(t *testing.T) {
	err := ResourceUnavailable("/dev/video1", nil)
	require.NotNil(t, err)
	assert.Equal(t, "/dev/video1", err.Details["device"])

	err = AnalysisFailed("slope.mp4", fmt.Errorf("timeout"))
	assert.Equal(t, ErrCodeAnalysisFailed, err.Code)
	assert.Equal(t, "slope.mp4", err.Details["filename"])
	assert.Contains(t, err.ToJSON(), `"code": "ANALYSIS_FAILED"`)
}

func TestAs(t *testing.T) {
	err := fmt.Errorf("開始に失敗: %w", ResourceUnavailable("/dev/video0", stderrors.New("busy")))

	var appErr *AppError
	require.True(t, As(err, &appErr))
	assert.Equal(t, ErrCodeResourceUnavailable, appErr.Code)
	assert.Equal(t, "/dev/video0", appErr.Details["device"])

	assert.False(t, As(stderrors.New("plain"), &appErr))
}
