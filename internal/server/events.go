package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"rockwatch/internal/bridge"
)

const (
	// writeWait は書き込み完了を待つ時間
	writeWait = 10 * time.Second

	// pongWait はpong応答を待つ時間
	pongWait = 60 * time.Second

	// pingPeriod は pongWait より短くする
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize はクライアントから受け取るメッセージの上限
	maxMessageSize = 4 * 1024

	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 監視コンソールは別オリジンのフロントエンドから接続される
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventMessage はWebSocketで送るカメラ状態の通知
type EventMessage struct {
	Type   string    `json:"type"`
	Active bool      `json:"active"`
	At     time.Time `json:"at"`
}

const eventCameraToggle = "camera_toggle"

// eventHub はWebSocketクライアントを管理する
type eventHub struct {
	bridge *bridge.Bridge
	logger *logrus.Entry

	mu      sync.Mutex
	clients map[*eventClient]struct{}
}

func newEventHub(b *bridge.Bridge, logger *logrus.Entry) *eventHub {
	return &eventHub{
		bridge:  b,
		logger:  logger.WithField("feed", "events"),
		clients: make(map[*eventClient]struct{}),
	}
}

// eventClient は1つのWebSocket接続
type eventClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *eventClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// handleEvents は接続ごとにEventBridgeを購読し、切断時に解除する
func (s *Server) handleEvents(c *gin.Context) {
	if s.deps.Bridge == nil {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocketのアップグレードに失敗しました")
		return
	}

	s.events.serve(conn, c.ClientIP())
}

func (h *eventHub) serve(conn *websocket.Conn, remote string) {
	client := &eventClient{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	// 通知は配信側をブロックしないよう、バッファが一杯なら捨てる
	sub := h.bridge.Subscribe("ws:"+remote, func(n bridge.Notice) {
		data, err := json.Marshal(EventMessage{Type: eventCameraToggle, Active: n.Active, At: n.At})
		if err != nil {
			return
		}
		select {
		case client.send <- data:
		case <-client.done:
		default:
			h.logger.WithField("client", remote).Warn("送信バッファが一杯のため通知を破棄しました")
		}
	})
	h.logger.WithField("client", remote).Info("イベントフィードに接続しました")

	go h.writePump(client)
	h.readPump(client)

	h.bridge.Unsubscribe(sub)
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	h.logger.WithField("client", remote).Info("イベントフィードから切断しました")
}

// readPump は切断とpong応答を検知するために読み続ける
func (h *eventHub) readPump(c *eventClient) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump だけが接続に書き込む
func (h *eventHub) writePump(c *eventClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeAll はシャットダウン時にすべての接続を閉じる
func (h *eventHub) closeAll() {
	h.mu.Lock()
	clients := make([]*eventClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		c.close()
	}
}

// clientCount は接続中のクライアント数を返す
func (h *eventHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
