// Package forwarder publishes fully-processed events to a Redis Stream
// for downstream consumers.
package forwarder

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"fleettrack/internal/models"
)

// EventForwarder 事件转发器
// 每个事件只发布一次，附带全部收件人，由下游自行扇出。
type EventForwarder struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewEventForwarder 创建事件转发器
func NewEventForwarder(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *EventForwarder {
	return &EventForwarder{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

// Forward 发布事件到 Stream
func (f *EventForwarder) Forward(ctx context.Context, event *models.Event, position *models.Position, userIDs []int64) error {
	payload := map[string]interface{}{
		"event":     event,
		"timestamp": time.Now().Unix(),
	}
	if position != nil {
		payload["position"] = position
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	recipients := make([]string, len(userIDs))
	for i, id := range userIDs {
		recipients[i] = strconv.FormatInt(id, 10)
	}

	id, err := f.client.XAdd(ctx, &redis.XAddArgs{
		Stream: f.stream,
		MaxLen: f.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":       event.Type,
			"device_id":  strconv.FormatInt(event.DeviceID, 10),
			"recipients": strings.Join(recipients, ","),
			"data":       string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event to stream: %w", err)
	}

	f.logger.Debug("Event forwarded",
		zap.String("stream", f.stream),
		zap.String("message_id", id),
		zap.String("type", event.Type),
	)
	return nil
}
