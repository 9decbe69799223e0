package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rockwatch/internal/assessment"
	"rockwatch/internal/bridge"
	"rockwatch/internal/camera"
	"rockwatch/internal/config"
	"rockwatch/internal/dispatch"
	"rockwatch/internal/logging"
	"rockwatch/internal/session"
	"rockwatch/internal/state"
)

// SessionController はカメラセッションの操作
type SessionController interface {
	Start(ctx context.Context) error
	Stop()
	Status() session.Status
	LatestFrame() ([]byte, bool)
}

// DispatchMonitor は推論送信の状況
type DispatchMonitor interface {
	Stats() dispatch.Stats
	WaitContext(ctx context.Context) error
}

// DeviceScanner はカメラデバイスを検出する
type DeviceScanner interface {
	Scan(ctx context.Context) ([]camera.DeviceInfo, error)
}

// VideoAnalyzer は動画の一括解析を行う
type VideoAnalyzer interface {
	AnalyzeVideo(ctx context.Context, name string, r io.Reader) (*assessment.VideoAnalysis, error)
}

// Deps はサーバーが利用するコンポーネント
type Deps struct {
	Session    SessionController
	Dispatcher DispatchMonitor
	State      *state.Store
	Bridge     *bridge.Bridge
	Discovery  DeviceScanner
	Analyzer   VideoAnalyzer
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	deps       Deps
	engine     *gin.Engine
	httpServer *http.Server
	logger     *logrus.Entry
	startedAt  time.Time

	events    *eventHub
	closing   chan struct{}
	closeOnce sync.Once
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config:    cfg,
		deps:      deps,
		engine:    gin.New(),
		logger:    logging.NewLogger("server"),
		startedAt: time.Now(),
		closing:   make(chan struct{}),
	}
	s.events = newEventHub(deps.Bridge, s.logger)
	s.engine.Use(gin.Recovery(), requestLogger(s.logger))
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      s.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	s.engine.GET("/", s.handleRoot)
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/state", s.handleState)
		api.GET("/state/:slot", s.handleStateSlot)
		api.POST("/session/start", s.handleSessionStart)
		api.POST("/session/stop", s.handleSessionStop)
		api.POST("/refresh", s.handleRefresh)
		api.GET("/devices", s.handleDevices)
		api.POST("/analysis/video", s.handleVideoAnalysis)
		api.GET("/stream", s.handleStream)
	}

	s.engine.GET("/ws/events", s.handleEvents)
}

// Start はサーバーを起動し、シグナルかコンテキストのキャンセルで停止する
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve は ln で待ち受ける。Start と同じく停止まで戻らない
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	shutdownCh := make(chan error, 1)

	go func() {
		s.logger.WithField("addr", ln.Addr().String()).Info("HTTPサーバーを起動しています")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		s.logger.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.logger.WithField("signal", sig.String()).Info("シグナルを受信しました")
	case err := <-shutdownCh:
		return err
	}

	return s.Shutdown()
}

// Shutdown はセッションを停止し、送信中の推論を待ってからHTTPサーバーを閉じる
func (s *Server) Shutdown() error {
	s.logger.Info("サーバーをシャットダウンしています...")

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.closeOnce.Do(func() { close(s.closing) })

	if s.deps.Session != nil {
		s.deps.Session.Stop()
	}
	if s.deps.Dispatcher != nil {
		if err := s.deps.Dispatcher.WaitContext(ctx); err != nil {
			s.logger.WithError(err).Warn("送信中の推論の完了を待てませんでした")
		}
	}

	s.events.closeAll()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.logger.Info("サーバーが正常にシャットダウンされました")
	return nil
}

// requestLogger はリクエストごとにアクセスログを出す
func requestLogger(logger *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
			"client":  c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request")
			return
		}
		entry.Debug("request")
	}
}
