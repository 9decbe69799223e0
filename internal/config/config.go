package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"rockwatch/internal/camera"
	apperrors "rockwatch/internal/errors"
	"rockwatch/internal/logging"
)

// DefaultFile は --config 未指定時に探す設定ファイル
const DefaultFile = "rockwatch.yaml"

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Camera    CameraConfig    `yaml:"camera"`
	Capture   CaptureConfig   `yaml:"capture"`
	Inference InferenceConfig `yaml:"inference"`
	Logging   logging.Config  `yaml:"logging"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"` // MJPEGストリームのため0(無効)が既定
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CameraConfig はカメラの設定
type CameraConfig struct {
	Backend string `yaml:"backend"` // ffmpeg / x11 / gocv / mock
	Device  string `yaml:"device"`  // /dev/video0 や :0.0
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	FPS     int    `yaml:"fps"`
}

// CaptureConfig はフレーム取得の設定
type CaptureConfig struct {
	Interval time.Duration `yaml:"interval"` // 推論に回す間隔
}

// InferenceConfig は推論サービスの設定
type InferenceConfig struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`       // フレーム1枚あたり
	VideoTimeout time.Duration `yaml:"video_timeout"` // 動画1本あたり
}

// Default は既定値の設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    0,
			ShutdownTimeout: 10 * time.Second,
		},
		Camera: CameraConfig{
			Backend: camera.BackendFFmpeg,
			Device:  "/dev/video0",
			Width:   1280,
			Height:  720,
			FPS:     15,
		},
		Capture: CaptureConfig{
			Interval: time.Second,
		},
		Inference: InferenceConfig{
			URL:          "http://127.0.0.1:8000",
			Timeout:      10 * time.Second,
			VideoTimeout: 5 * time.Minute,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load は既定値、設定ファイル、環境変数の順に重ねて設定を読み込む
// path が空の場合はカレントディレクトリの rockwatch.yaml があれば読む
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid,
				fmt.Sprintf("設定ファイルの解析に失敗: %s", path))
		}
	case errors.Is(err, fs.ErrNotExist):
		if explicit {
			return nil, apperrors.ConfigNotFound(path)
		}
	default:
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() error {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Inference.URL = getEnvOrDefault("INFERENCE_URL", c.Inference.URL)
	c.Camera.Device = getEnvOrDefault("CAMERA_DEVICE", c.Camera.Device)
	c.Camera.Backend = getEnvOrDefault("CAMERA_BACKEND", c.Camera.Backend)

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return apperrors.ConfigInvalid(fmt.Sprintf("PORT が数値ではありません: %q", v))
		}
		c.Server.Port = port
	}
	if v := os.Getenv("CAPTURE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return apperrors.ConfigInvalid(fmt.Sprintf("CAPTURE_INTERVAL を解釈できません: %q", v))
		}
		c.Capture.Interval = d
	}
	return nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return apperrors.ConfigInvalid(fmt.Sprintf("無効なポート番号: %d", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return apperrors.ConfigInvalid("タイムアウトに負の値は指定できません")
	}

	if !contains(camera.Backends(), c.Camera.Backend) {
		return apperrors.ConfigInvalid(fmt.Sprintf("未対応のカメラバックエンド: %q (利用可能: %v)", c.Camera.Backend, camera.Backends()))
	}
	if c.Camera.Backend == camera.BackendFFmpeg && c.Camera.Device == "" {
		return apperrors.ConfigInvalid("camera.device が指定されていません")
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 || c.Camera.FPS < 0 {
		return apperrors.ConfigInvalid("カメラの解像度とフレームレートに負の値は指定できません")
	}

	if c.Capture.Interval <= 0 {
		return apperrors.ConfigInvalid(fmt.Sprintf("無効なキャプチャ間隔: %s", c.Capture.Interval))
	}

	u, err := url.Parse(c.Inference.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.ConfigInvalid(fmt.Sprintf("無効な推論サービスURL: %q", c.Inference.URL))
	}
	if c.Inference.Timeout <= 0 || c.Inference.VideoTimeout <= 0 {
		return apperrors.ConfigInvalid("推論サービスのタイムアウトは正の値が必要です")
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return apperrors.ConfigInvalid(fmt.Sprintf("無効なログレベル: %q", c.Logging.Level))
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return apperrors.ConfigInvalid(fmt.Sprintf("無効なログ形式: %q", c.Logging.Format))
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// CameraSettings はカメラパッケージ向けの設定を返す
func (c *Config) CameraSettings() camera.Settings {
	return camera.Settings{
		Width:  c.Camera.Width,
		Height: c.Camera.Height,
		FPS:    c.Camera.FPS,
	}
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
