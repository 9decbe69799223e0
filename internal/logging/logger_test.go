package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerReturnsSameEntry(t *testing.T) {
	a := NewLogger("test-same")
	b := NewLogger("test-same")
	assert.Same(t, a, b)
	assert.Equal(t, "test-same", a.Data["component"])
}

func TestConfigureAppliesToExistingLoggers(t *testing.T) {
	t.Setenv("ROCKWATCH_LOG_LEVEL", "")

	logger := NewLogger("test-configure")
	require.NoError(t, Configure(Config{Level: "debug", Format: "json"}))
	defer func() { _ = Configure(Config{Level: "info", Format: "text"}) }()

	var buf bytes.Buffer
	SetOutput(&buf)

	assert.Equal(t, logrus.DebugLevel, logger.Logger.GetLevel())

	logger.WithField("tick", 3).Debug("キャプチャ")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "test-configure", line["component"])
	assert.Equal(t, float64(3), line["tick"])
}

func TestEnvLevelOverridesConfig(t *testing.T) {
	t.Setenv("ROCKWATCH_LOG_LEVEL", "warn")
	require.NoError(t, Configure(Config{Level: "debug"}))
	defer func() { _ = Configure(Config{Level: "info", Format: "text"}) }()

	logger := NewLogger("test-env")
	assert.Equal(t, logrus.WarnLevel, logger.Logger.GetLevel())
}

func TestConfigureClosesReplacedLogFile(t *testing.T) {
	t.Setenv("ROCKWATCH_LOG_LEVEL", "")
	dir := t.TempDir()
	defer func() { _ = Configure(Config{Level: "info", Format: "text"}) }()

	require.NoError(t, Configure(Config{Level: "info", File: filepath.Join(dir, "first.log")}))
	first := logFile
	require.NotNil(t, first)

	require.NoError(t, Configure(Config{Level: "info", File: filepath.Join(dir, "second.log")}))
	second := logFile
	require.NotNil(t, second)
	assert.NotSame(t, first, second)

	_, err := first.Write([]byte("x"))
	assert.True(t, errors.Is(err, os.ErrClosed), "replaced log file must be closed")

	NewLogger("test-file").Info("書き込み")
	data, err := os.ReadFile(filepath.Join(dir, "second.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "test-file")

	// ファイルなしに戻すと開いていたファイルも閉じる
	require.NoError(t, Configure(Config{Level: "info"}))
	assert.Nil(t, logFile)
	_, err = second.Write([]byte("x"))
	assert.True(t, errors.Is(err, os.ErrClosed))
}

func TestConfigureKeepsFileWhenOpenFails(t *testing.T) {
	dir := t.TempDir()
	defer func() { _ = Configure(Config{Level: "info", Format: "text"}) }()

	require.NoError(t, Configure(Config{Level: "info", File: filepath.Join(dir, "app.log")}))
	open := logFile

	// ディレクトリはファイルとして開けない
	require.Error(t, Configure(Config{Level: "info", File: dir}))
	assert.Same(t, open, logFile)
	_, err := open.Write([]byte("x\n"))
	assert.NoError(t, err)
}
