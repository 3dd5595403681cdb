package handler

import (
	"fleettrack/internal/models"
)

// IgnitionHandler ACC 点火状态变化检测
type IgnitionHandler struct{}

// NewIgnitionHandler 创建点火检测处理器
func NewIgnitionHandler() *IgnitionHandler { return &IgnitionHandler{} }

// Name implements Handler.
func (h *IgnitionHandler) Name() string { return "ignition" }

// OnPosition implements Handler. An event fires only when both samples
// report the ignition attribute and the state differs.
func (h *IgnitionHandler) OnPosition(current, previous *models.Position) []*models.Event {
	if previous == nil {
		return nil
	}
	now, ok := current.GetBool(models.KeyIgnition)
	if !ok {
		return nil
	}
	before, ok := previous.GetBool(models.KeyIgnition)
	if !ok || before == now {
		return nil
	}

	eventType := models.TypeIgnitionOff
	if now {
		eventType = models.TypeIgnitionOn
	}
	event := models.NewEvent(eventType, current.DeviceID)
	event.PositionID = current.ID
	event.EventTime = current.FixTime
	return []*models.Event{event}
}
