// Package logging はコンポーネント単位のlogrusロガーを提供する
package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config はログ出力の設定
type Config struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text または json
	File   string `yaml:"file"`   // 空の場合は標準エラー出力のみ
}

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex

	current           = Config{Level: "info", Format: "text"}
	output  io.Writer = os.Stderr
	// logFile は Configure が開いたログファイル。出力先を差し替えるときに閉じる
	logFile *os.File
)

// Configure はこれ以降に作成されるロガーの設定を変更する
// 既に作成済みのロガーにも新しいレベルと出力先を反映する
func Configure(cfg Config) error {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	var writers []io.Writer
	writers = append(writers, os.Stderr)

	var file *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return err
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		file = f
		writers = append(writers, file)
	}

	current = cfg
	if len(writers) == 1 {
		output = writers[0]
	} else {
		output = io.MultiWriter(writers...)
	}

	for _, entry := range loggers {
		apply(entry.Logger)
	}

	// 全ロガーを新しい出力先に切り替えてから古いファイルを閉じる
	closeLogFile()
	logFile = file
	return nil
}

// closeLogFile は開いているログファイルを閉じる（ロック済み前提）
func closeLogFile() {
	if logFile == nil {
		return
	}
	_ = logFile.Close()
	logFile = nil
}

// SetOutput はテストなどで出力先を差し替える
func SetOutput(w io.Writer) {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	output = w
	for _, entry := range loggers {
		entry.Logger.SetOutput(w)
	}
	closeLogFile()
}

// NewLogger はコンポーネント用のロガーを返す
// 同じコンポーネント名に対しては同じインスタンスを返す
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	logger := logrus.New()
	apply(logger)

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

// apply は現在の設定をロガーに反映する（ロック済み前提）
func apply(logger *logrus.Logger) {
	levelStr := current.Level
	if env := os.Getenv("ROCKWATCH_LOG_LEVEL"); env != "" {
		levelStr = env
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch current.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logger.SetOutput(output)
}
