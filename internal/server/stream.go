package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "rockwatch/internal/errors"
	"rockwatch/internal/session"
)

// streamPollInterval は最新フレームを確認する間隔
const streamPollInterval = 100 * time.Millisecond

// handleStream はセッションの最新フレームをMJPEGで配信する
// セッションが停止するとストリームも終了する
func (s *Server) handleStream(c *gin.Context) {
	if s.deps.Session.Status().State != session.StateActive {
		s.respondError(c, http.StatusServiceUnavailable,
			apperrors.New(apperrors.ErrCodeResourceUnavailable, "カメラセッションがアクティブではありません"))
		return
	}

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()
	var last []byte

	for {
		select {
		case <-clientGone:
			return
		case <-s.closing:
			return
		case <-ticker.C:
			frame, ok := s.deps.Session.LatestFrame()
			if !ok {
				if s.deps.Session.Status().State != session.StateActive {
					return
				}
				continue
			}
			if sameFrame(frame, last) {
				continue
			}
			last = frame

			if err := writeMJPEGPart(writer, frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeMJPEGPart はMJPEGの1パート分を書き込む
func writeMJPEGPart(w http.ResponseWriter, frame []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

// sameFrame は同じフレームを再送しないための判定
// LatestFrame は共有スライスを返すため先頭要素のアドレスで比較できる
func sameFrame(a, b []byte) bool {
	return len(a) > 0 && len(a) == len(b) && &a[0] == &b[0]
}
