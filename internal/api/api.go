// Package api serves the administrative HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fleettrack/internal/models"
	"fleettrack/internal/notification"
)

// UserSource 用户查询接口（由 repository.UserRepository 实现）
type UserSource interface {
	GetByID(ctx context.Context, userID int64) (*models.User, error)
}

// Server 管理接口服务器
type Server struct {
	addr       string
	users      UserSource
	registry   *notification.Registry
	wsHandler  http.Handler // web notificator hub attach point
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
	httpServer *http.Server
}

// NewServer 创建管理接口服务器
func NewServer(addr string, users UserSource, registry *notification.Registry,
	wsHandler http.Handler, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	s := &Server{
		addr:      addr,
		users:     users,
		registry:  registry,
		wsHandler: wsHandler,
		gatherer:  gatherer,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/notifications/types", s.handleEventTypes)
	mux.HandleFunc("/api/notifications/notificators", s.handleNotificators)
	mux.HandleFunc("/api/notifications/test", s.handleTestNotification)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	if wsHandler != nil {
		mux.Handle("/api/ws", wsHandler)
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Run 启动管理接口，直到 ctx 取消
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Admin API listening", zap.String("addr", s.addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler 返回路由（测试用）
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleEventTypes GET /api/notifications/types
func (s *Server) handleEventTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, models.AllEventTypes())
}

// handleNotificators GET /api/notifications/notificators
func (s *Server) handleNotificators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	types := s.registry.Types()
	typed := make([]models.Typed, 0, len(types))
	for _, t := range types {
		typed = append(typed, models.Typed{Type: t})
	}
	writeJSON(w, http.StatusOK, typed)
}

// testNotificationRequest POST /api/notifications/test 请求体
type testNotificationRequest struct {
	UserID int64 `json:"userId"`
}

// handleTestNotification POST /api/notifications/test
// 给发起请求的用户本人经所有已注册渠道发送一条合成测试消息，
// 不经过订阅规则过滤。
func (s *Server) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req testNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "userId required"})
		return
	}

	user, err := s.users.GetByID(r.Context(), req.UserID)
	if err != nil {
		s.logger.Error("Failed to load user for test notification",
			zap.Int64("user_id", req.UserID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "user lookup failed"})
		return
	}
	if user == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return
	}

	event := models.NewEvent(models.TypeTestNotification, 0)
	for _, channel := range s.registry.Types() {
		notificator, err := s.registry.Get(channel)
		if err != nil {
			continue
		}
		if err := notificator.Send(r.Context(), user, event, nil); err != nil {
			s.logger.Warn("Test notification delivery failed",
				zap.String("channel", channel),
				zap.Int64("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Test notification sent", zap.Int64("user_id", user.ID))
	writeJSON(w, http.StatusAccepted, map[string]bool{"sent": true})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
