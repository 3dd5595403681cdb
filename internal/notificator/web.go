package notificator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fleettrack/internal/models"
)

const writeTimeout = 10 * time.Second

// webConn serializes writes; gorilla connections allow only one
// concurrent writer.
type webConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *webConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WebNotificator 浏览器实时推送渠道
// 每个在线用户可挂多个 WebSocket 连接，事件按用户扇出。
type WebNotificator struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu          sync.RWMutex
	connections map[int64]map[*webConn]bool
}

// NewWeb 创建 WebSocket 通知渠道
func NewWeb(logger *zap.Logger) *WebNotificator {
	return &WebNotificator{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth happens upstream; the handshake itself is open.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:      logger,
		connections: make(map[int64]map[*webConn]bool),
	}
}

// Type implements notification.Notificator.
func (n *WebNotificator) Type() string { return "web" }

// ServeHTTP 处理 WebSocket 握手（GET /api/ws?userId=N）
func (n *WebNotificator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "missing or invalid userId", http.StatusBadRequest)
		return
	}

	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	wc := &webConn{conn: conn}
	n.register(userID, wc)
	n.logger.Info("WebSocket client connected", zap.Int64("user_id", userID))

	// Reader loop only detects disconnect; clients do not send data.
	go func() {
		defer func() {
			n.unregister(userID, wc)
			conn.Close()
			n.logger.Info("WebSocket client disconnected", zap.Int64("user_id", userID))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Send implements notification.Notificator.
// 用户不在线不算失败。
func (n *WebNotificator) Send(ctx context.Context, user *models.User, event *models.Event, position *models.Position) error {
	payload := map[string]interface{}{
		"event": event,
	}
	if position != nil {
		payload["position"] = position
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	n.mu.RLock()
	conns := make([]*webConn, 0, len(n.connections[user.ID]))
	for conn := range n.connections[user.ID] {
		conns = append(conns, conn)
	}
	n.mu.RUnlock()

	var lastErr error
	for _, wc := range conns {
		if err := wc.write(data); err != nil {
			n.unregister(user.ID, wc)
			wc.conn.Close()
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("websocket delivery failed: %w", lastErr)
	}
	return nil
}

// Online 当前在线的用户连接数
func (n *WebNotificator) Online(userID int64) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.connections[userID])
}

func (n *WebNotificator) register(userID int64, wc *webConn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.connections[userID] == nil {
		n.connections[userID] = make(map[*webConn]bool)
	}
	n.connections[userID][wc] = true
}

func (n *WebNotificator) unregister(userID int64, wc *webConn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.connections[userID], wc)
	if len(n.connections[userID]) == 0 {
		delete(n.connections, userID)
	}
}
