// Package notificator implements the delivery channels used by the
// notification engine.
package notificator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"fleettrack/internal/models"
)

// 用户属性键：webhook 回调地址
const keyWebhookURL = "webhookUrl"

// WebhookNotificator 按用户配置的回调地址 POST 事件
type WebhookNotificator struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewWebhook 创建 webhook 通知渠道
func NewWebhook(timeout time.Duration, logger *zap.Logger) *WebhookNotificator {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetHeader("Content-Type", "application/json")

	return &WebhookNotificator{
		httpClient: client,
		logger:     logger,
	}
}

// Type implements notification.Notificator.
func (n *WebhookNotificator) Type() string { return "webhook" }

// Send implements notification.Notificator.
// 用户未配置回调地址时静默跳过。
func (n *WebhookNotificator) Send(ctx context.Context, user *models.User, event *models.Event, position *models.Position) error {
	url := user.GetString(keyWebhookURL)
	if url == "" {
		return nil
	}

	payload := map[string]interface{}{
		"event": event,
		"user":  map[string]interface{}{"id": user.ID, "name": user.Name},
	}
	if position != nil {
		payload["position"] = position
	}

	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post(url)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}

	n.logger.Debug("Webhook delivered",
		zap.Int64("user_id", user.ID),
		zap.String("type", event.Type),
	)
	return nil
}
