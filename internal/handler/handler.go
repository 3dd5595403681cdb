// Package handler contains the position analyzers that turn sequences
// of positions into discrete events. Handlers are pure over the
// (previous, current) pair; the per-device previous-position memory is
// owned by the Chain, which processes positions for one device in
// arrival order.
package handler

import (
	"sync"

	"go.uber.org/zap"

	"fleettrack/internal/models"
)

// Handler 事件处理器
type Handler interface {
	Name() string
	OnPosition(current, previous *models.Position) []*models.Event
}

// Chain 处理器链（平铺有序列表，处理器之间不通信）
type Chain struct {
	handlers []Handler
	logger   *zap.Logger

	mu   sync.RWMutex
	last map[int64]*models.Position
}

// NewChain 创建处理器链
func NewChain(logger *zap.Logger, handlers ...Handler) *Chain {
	return &Chain{
		handlers: handlers,
		logger:   logger,
		last:     make(map[int64]*models.Position),
	}
}

// Process runs one position through every handler and advances the
// per-device memory. Positions for a single device must be submitted
// in decode order; different devices may be processed concurrently.
func (c *Chain) Process(position *models.Position) []*models.Event {
	c.mu.RLock()
	previous := c.last[position.DeviceID]
	c.mu.RUnlock()

	var events []*models.Event
	for _, h := range c.handlers {
		produced := h.OnPosition(position, previous)
		if len(produced) > 0 {
			c.logger.Debug("Handler produced events",
				zap.String("handler", h.Name()),
				zap.Int64("device_id", position.DeviceID),
				zap.Int("count", len(produced)),
			)
			events = append(events, produced...)
		}
	}

	c.mu.Lock()
	c.last[position.DeviceID] = position
	c.mu.Unlock()
	return events
}

// Warm seeds the per-device memory, e.g. from the last-position cache
// after a restart.
func (c *Chain) Warm(position *models.Position) {
	if position == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.last[position.DeviceID]; !exists {
		c.last[position.DeviceID] = position
	}
}

// Forget drops the per-device memory, used when a device is removed.
func (c *Chain) Forget(deviceID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.last, deviceID)
}
