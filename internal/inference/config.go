package inference

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"rockwatch/internal/logging"
)

// DefaultBaseURL は推論サービスの既定のURL
const DefaultBaseURL = "http://127.0.0.1:8000"

// Config はクライアントの設定
type Config struct {
	BaseURL string
	// Timeout はフレーム推論1回あたりの上限
	Timeout time.Duration
	// VideoTimeout は動画解析1回あたりの上限
	VideoTimeout time.Duration

	HTTPClient *http.Client
	Logger     *logrus.Entry
}

// Option はクライアント設定を変更する関数
type Option func(*Config)

// DefaultConfig は既定の設定を返す
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      DefaultBaseURL,
		Timeout:      10 * time.Second,
		VideoTimeout: 5 * time.Minute,
		Logger:       logging.NewLogger("inference"),
	}
}

// Apply はオプションを順に適用する
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// WithBaseURL は推論サービスのURLを設定する
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithTimeout はフレーム推論のタイムアウトを設定する
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithVideoTimeout は動画解析のタイムアウトを設定する
func WithVideoTimeout(d time.Duration) Option {
	return func(c *Config) { c.VideoTimeout = d }
}

// WithHTTPClient は利用するHTTPクライアントを差し替える
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// WithLogger はロガーを設定する
func WithLogger(l *logrus.Entry) Option {
	return func(c *Config) { c.Logger = l }
}
