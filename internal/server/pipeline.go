// Package server runs the per-protocol ingestion endpoints and feeds
// decoded frames through the shared processing pipeline.
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"fleettrack/internal/metrics"
	"fleettrack/internal/models"
	"fleettrack/internal/protocol"
	"fleettrack/internal/session"
)

// PositionStore 轨迹点持久化接口
type PositionStore interface {
	Insert(ctx context.Context, position *models.Position) error
}

// PositionCache 最新位置缓存接口
type PositionCache interface {
	SetLast(ctx context.Context, position *models.Position) error
	GetLast(ctx context.Context, deviceID int64) (*models.Position, error)
}

// EventProcessor 位置→事件处理接口（由 handler.Chain 实现）
type EventProcessor interface {
	Process(position *models.Position) []*models.Event
	Warm(position *models.Position)
}

// Dispatcher 事件派发接口（由 notification.Manager 实现）
type Dispatcher interface {
	Dispatch(ctx context.Context, event *models.Event, position *models.Position)
}

// Pipeline 帧→位置→事件→通知的共享处理链
// TCP 接入和 MQTT 接入复用同一条链。
type Pipeline struct {
	sessions  *session.Registry
	chain     EventProcessor
	manager   Dispatcher
	positions PositionStore
	cache     PositionCache // nil 表示禁用
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu     sync.Mutex
	warmed map[int64]bool
}

// NewPipeline 创建处理链
func NewPipeline(
	sessions *session.Registry,
	chain EventProcessor,
	manager Dispatcher,
	positions PositionStore,
	cache PositionCache,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		sessions:  sessions,
		chain:     chain,
		manager:   manager,
		positions: positions,
		cache:     cache,
		metrics:   m,
		logger:    logger,
		warmed:    make(map[int64]bool),
	}
}

// HandleFrame 处理一帧完整报文
// 返回的错误表示连接已不可恢复，调用方应断开；可恢复的解码失败
// （脏帧、未识别设备）只记日志并丢弃该帧。
func (p *Pipeline) HandleFrame(ctx context.Context, proto *protocol.Protocol, ch session.Channel, frame []byte) error {
	result, err := proto.Decoder.Decode(ctx, p.sessions, ch, frame)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrDeviceUnknown):
			p.countFrameError(proto.Name, "device_unknown")
			p.logger.Info("Dropping frame from unregistered device",
				zap.String("protocol", proto.Name),
				zap.String("remote", ch.RemoteAddr()),
			)
			return nil
		case errors.Is(err, session.ErrNoSession):
			p.countFrameError(proto.Name, "no_session")
			p.logger.Debug("Dropping frame from unidentified connection",
				zap.String("protocol", proto.Name),
				zap.String("remote", ch.RemoteAddr()),
			)
			return nil
		case errors.Is(err, protocol.ErrFrameMalformed):
			p.countFrameError(proto.Name, "malformed")
			p.logger.Warn("Dropping malformed frame",
				zap.String("protocol", proto.Name),
				zap.String("remote", ch.RemoteAddr()),
			)
			return nil
		default:
			p.countFrameError(proto.Name, "fatal")
			return err
		}
	}

	if len(result.Response) > 0 {
		if err := ch.Write(result.Response); err != nil {
			return err
		}
	}

	for _, position := range result.Positions {
		p.processPosition(ctx, proto.Name, position)
	}
	for _, event := range result.Events {
		p.dispatch(ctx, event, nil)
	}
	return nil
}

// processPosition 持久化位置并推进事件链
func (p *Pipeline) processPosition(ctx context.Context, protocolName string, position *models.Position) {
	if position.ServerTime.IsZero() {
		position.ServerTime = time.Now()
	}
	if p.metrics != nil {
		p.metrics.PositionsDecoded.WithLabelValues(protocolName).Inc()
	}

	// Seed handler memory from the cache once per device so a restart
	// does not fabricate transition events.
	p.warm(ctx, position.DeviceID)

	if err := p.positions.Insert(ctx, position); err != nil {
		p.logger.Error("Failed to persist position, processing anyway",
			zap.Int64("device_id", position.DeviceID),
			zap.Error(err),
		)
	}

	events := p.chain.Process(position)
	for _, event := range events {
		p.dispatch(ctx, event, position)
	}

	if p.cache != nil {
		if err := p.cache.SetLast(ctx, position); err != nil {
			p.logger.Warn("Failed to cache last position",
				zap.Int64("device_id", position.DeviceID),
				zap.Error(err),
			)
		}
	}
}

func (p *Pipeline) dispatch(ctx context.Context, event *models.Event, position *models.Position) {
	if p.metrics != nil {
		p.metrics.EventsGenerated.WithLabelValues(event.Type).Inc()
	}
	p.manager.Dispatch(ctx, event, position)
}

func (p *Pipeline) warm(ctx context.Context, deviceID int64) {
	if p.cache == nil {
		return
	}
	p.mu.Lock()
	done := p.warmed[deviceID]
	if !done {
		p.warmed[deviceID] = true
	}
	p.mu.Unlock()
	if done {
		return
	}

	cached, err := p.cache.GetLast(ctx, deviceID)
	if err != nil {
		p.logger.Warn("Failed to read cached position",
			zap.Int64("device_id", deviceID),
			zap.Error(err),
		)
		return
	}
	if cached != nil {
		p.chain.Warm(cached)
	}
}

func (p *Pipeline) countFrameError(protocolName, kind string) {
	if p.metrics != nil {
		p.metrics.FrameErrors.WithLabelValues(protocolName, kind).Inc()
	}
}
