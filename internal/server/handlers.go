package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"rockwatch/internal/camera"
	apperrors "rockwatch/internal/errors"
	"rockwatch/internal/state"
)

// ErrorResponse はエラー応答の本文
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (s *Server) respondError(c *gin.Context, status int, err error) {
	resp := ErrorResponse{
		Error:     string(apperrors.ErrCodeInternal),
		Message:   err.Error(),
		Timestamp: time.Now(),
	}

	var appErr *apperrors.AppError
	if apperrors.As(err, &appErr) {
		resp.Error = string(appErr.Code)
		resp.Message = appErr.Message
		resp.Details = appErr.Details
		if appErr.Cause != nil {
			if resp.Details == nil {
				resp.Details = map[string]interface{}{}
			}
			resp.Details["cause"] = appErr.Cause.Error()
		}
	}

	c.AbortWithStatusJSON(status, resp)
}

// handleRoot はルートパスのハンドラ
func (s *Server) handleRoot(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(`<!DOCTYPE html>
<html lang="ja">
<head>
    <meta charset="UTF-8">
    <title>Rockwatch - 落石監視コンソール</title>
</head>
<body>
    <h1>Rockwatch 落石監視コンソール</h1>
    <p>ステータス: <a href="/api/status">/api/status</a></p>
    <p>共有状態: <a href="/api/state">/api/state</a></p>
    <p>プレビュー: <a href="/api/stream">/api/stream</a></p>
    <p>ヘルスチェック: <a href="/health">/health</a></p>
</body>
</html>`))
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// handleStatus はセッション・送信・通知の状況を返す
func (s *Server) handleStatus(c *gin.Context) {
	resp := gin.H{
		"status": "running",
		"server": gin.H{
			"host": s.config.Server.Host,
			"port": s.config.Server.Port,
		},
		"camera": gin.H{
			"backend": s.config.Camera.Backend,
			"device":  s.config.Camera.Device,
		},
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"timestamp": time.Now(),
	}
	if s.deps.Session != nil {
		resp["session"] = s.deps.Session.Status()
	}
	if s.deps.Dispatcher != nil {
		resp["dispatch"] = s.deps.Dispatcher.Stats()
	}
	if s.deps.Bridge != nil {
		resp["bridge"] = gin.H{
			"subscribers": s.deps.Bridge.SubscriberCount(),
			"published":   s.deps.Bridge.Published(),
		}
	}
	c.JSON(http.StatusOK, resp)
}

// handleState は共有状態全体を返す
func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.State.Snapshot())
}

// handleStateSlot は名前付きスロット1つを返す
func (s *Server) handleStateSlot(c *gin.Context) {
	slot := state.Slot(c.Param("slot"))
	value, ok := s.deps.State.Get(slot)
	if !ok {
		s.respondError(c, http.StatusNotFound,
			apperrors.InvalidInput("不明なスロットです").WithDetail("slot", string(slot)))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"slot":  slot,
		"value": value,
	})
}

// handleSessionStart はカメラセッションを開始する
func (s *Server) handleSessionStart(c *gin.Context) {
	if err := s.deps.Session.Start(c.Request.Context()); err != nil {
		status := http.StatusInternalServerError
		if apperrors.Is(err, apperrors.ErrCodeResourceUnavailable) {
			status = http.StatusServiceUnavailable
			s.deps.State.SetLastError(state.LastError{
				Kind:    string(apperrors.ErrCodeResourceUnavailable),
				Message: err.Error(),
				At:      time.Now(),
			})
		}
		s.respondError(c, status, err)
		return
	}
	c.JSON(http.StatusOK, s.deps.Session.Status())
}

// handleSessionStop はカメラセッションを停止する
func (s *Server) handleSessionStop(c *gin.Context) {
	s.deps.Session.Stop()
	c.JSON(http.StatusOK, s.deps.Session.Status())
}

// handleRefresh は共有状態を初期化する
func (s *Server) handleRefresh(c *gin.Context) {
	s.deps.State.RefreshAll()
	s.logger.Info("共有状態をリフレッシュしました")
	c.JSON(http.StatusOK, s.deps.State.Snapshot())
}

// handleDevices は検出したカメラデバイスの一覧を返す
func (s *Server) handleDevices(c *gin.Context) {
	devices := []camera.DeviceInfo{}
	if s.deps.Discovery != nil {
		found, err := s.deps.Discovery.Scan(c.Request.Context())
		if err != nil {
			s.respondError(c, http.StatusInternalServerError,
				apperrors.Wrap(err, apperrors.ErrCodeInternal, "デバイスのスキャンに失敗しました"))
			return
		}
		devices = found
	}
	c.JSON(http.StatusOK, gin.H{
		"devices":  devices,
		"backends": camera.Backends(),
	})
}

// handleVideoAnalysis はアップロードされた動画を解析サービスへ転送する
func (s *Server) handleVideoAnalysis(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		s.respondError(c, http.StatusBadRequest, apperrors.InvalidInput("file フィールドに動画を指定してください"))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") {
		s.respondError(c, http.StatusBadRequest,
			apperrors.InvalidInput("動画ファイルを選択してください").WithDetail("content_type", contentType))
		return
	}

	f, err := header.Open()
	if err != nil {
		s.respondError(c, http.StatusBadRequest, apperrors.InvalidInput("アップロードを読み込めません"))
		return
	}
	defer f.Close()

	result, err := s.deps.Analyzer.AnalyzeVideo(c.Request.Context(), header.Filename, f)
	if err != nil {
		appErr := apperrors.AnalysisFailed(header.Filename, err)
		s.logger.WithError(err).WithField("file", header.Filename).Warn("動画解析に失敗しました")
		s.deps.State.SetLastError(state.LastError{
			Kind:    string(appErr.Code),
			Message: appErr.Message,
			At:      time.Now(),
		})
		s.respondError(c, http.StatusBadGateway, appErr)
		return
	}

	s.deps.State.SetVideoAnalysis(*result)
	c.JSON(http.StatusOK, result)
}
