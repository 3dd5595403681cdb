package server

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"fleettrack/internal/config"
	"fleettrack/internal/protocol"
)

// Subscriber MQTT 订阅接口（由 mqtt.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// mqttChannel session.Channel 的 MQTT 实现
// Replies go to the device's downlink topic.
type mqttChannel struct {
	publisher Subscriber
	topic     string
	qos       byte
}

func (c *mqttChannel) Write(data []byte) error {
	return c.publisher.Publish(c.topic, c.qos, false, data)
}

func (c *mqttChannel) RemoteAddr() string { return "mqtt:" + c.topic }

func (c *mqttChannel) Close() error { return nil }

// MQTTConsumer 经 MQTT 网关接入的报文消费者
// 一条消息一帧，主题为 trackers/{protocol}/{uniqueId}/up 形式；回复
// 发布到该设备自己的下行主题。
type MQTTConsumer struct {
	client    Subscriber
	cfg       *config.MQTTConfig
	protocols *protocol.Registry
	pipeline  *Pipeline
	logger    *zap.Logger

	// per-device reply channels keyed by protocol/uniqueId, created
	// lazily. One channel per device keeps session resolution and
	// replies scoped to that device.
	mu       sync.Mutex
	channels map[string]*mqttChannel
}

// NewMQTTConsumer 创建 MQTT 接入消费者
func NewMQTTConsumer(client Subscriber, cfg *config.MQTTConfig, protocols *protocol.Registry, pipeline *Pipeline, logger *zap.Logger) *MQTTConsumer {
	return &MQTTConsumer{
		client:    client,
		cfg:       cfg,
		protocols: protocols,
		pipeline:  pipeline,
		logger:    logger,
		channels:  make(map[string]*mqttChannel),
	}
}

// Start 订阅上行主题
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if err := c.client.Subscribe(c.cfg.UplinkTopic, c.cfg.QoS, func(topic string, payload []byte) error {
		return c.handleMessage(ctx, topic, payload)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to uplink topic: %w", err)
	}
	c.logger.Info("MQTT ingestion started", zap.String("topic", c.cfg.UplinkTopic))
	return nil
}

// handleMessage 单条消息 = 单帧
func (c *MQTTConsumer) handleMessage(ctx context.Context, topic string, payload []byte) error {
	protocolName, uniqueID, err := parseUplinkTopic(topic)
	if err != nil {
		c.logger.Warn("Ignoring message on unexpected topic", zap.String("topic", topic))
		return nil
	}
	proto, err := c.protocols.Get(protocolName)
	if err != nil {
		c.logger.Warn("Ignoring message for unknown protocol",
			zap.String("topic", topic),
			zap.String("protocol", protocolName),
		)
		return nil
	}

	key := protocolName + "/" + uniqueID
	c.mu.Lock()
	ch := c.channels[key]
	if ch == nil {
		ch = &mqttChannel{
			publisher: c.client,
			topic:     fmt.Sprintf(c.cfg.DownTopic, protocolName, uniqueID),
			qos:       c.cfg.QoS,
		}
		c.channels[key] = ch
	}
	c.mu.Unlock()

	// Gateways must deliver exactly one frame per message, so the frame
	// decoder is applied to the payload as-is.
	decoder := proto.NewFrameDecoder()
	frame, rest, err := decoder.Decode(payload)
	if err != nil {
		c.logger.Warn("Dropping undecodable MQTT payload",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return nil
	}
	if len(rest) > 0 {
		c.logger.Warn("Trailing bytes after frame in MQTT payload",
			zap.String("topic", topic),
			zap.Int("trailing", len(rest)),
		)
	}

	if err := c.pipeline.HandleFrame(ctx, proto, ch, frame); err != nil {
		c.logger.Warn("MQTT frame processing failed",
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
	return nil
}

// parseUplinkTopic 从 trackers/{protocol}/{uniqueId}/up 提取协议名和设备号
func parseUplinkTopic(topic string) (string, string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("unexpected topic shape %q", topic)
	}
	return parts[1], parts[2], nil
}
