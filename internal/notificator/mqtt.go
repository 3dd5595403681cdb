package notificator

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"fleettrack/internal/models"
)

// Publisher MQTT 发布接口（由 mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTNotificator 按用户主题发布事件
type MQTTNotificator struct {
	publisher Publisher
	qos       byte
	logger    *zap.Logger
}

// NewMQTT 创建 MQTT 通知渠道
func NewMQTT(publisher Publisher, qos byte, logger *zap.Logger) *MQTTNotificator {
	return &MQTTNotificator{
		publisher: publisher,
		qos:       qos,
		logger:    logger,
	}
}

// Type implements notification.Notificator.
func (n *MQTTNotificator) Type() string { return "mqtt" }

// Send implements notification.Notificator.
func (n *MQTTNotificator) Send(ctx context.Context, user *models.User, event *models.Event, position *models.Position) error {
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

	topic := fmt.Sprintf("fleettrack/users/%d/notifications", user.ID)
	if err := n.publisher.Publish(topic, n.qos, false, data); err != nil {
		return fmt.Errorf("mqtt notification failed: %w", err)
	}

	n.logger.Debug("MQTT notification published",
		zap.String("topic", topic),
		zap.String("type", event.Type),
	)
	return nil
}
