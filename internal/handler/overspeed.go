package handler

import (
	"fleettrack/internal/models"
)

// OverspeedHandler 超速检测
// Fires once when the speed crosses the limit upward; repeated samples
// above the limit do not repeat the event.
type OverspeedHandler struct {
	limitKnots float64
}

// NewOverspeedHandler 创建超速检测处理器（limit 单位：节）
func NewOverspeedHandler(limitKnots float64) *OverspeedHandler {
	return &OverspeedHandler{limitKnots: limitKnots}
}

// Name implements Handler.
func (h *OverspeedHandler) Name() string { return "overspeed" }

// OnPosition implements Handler.
func (h *OverspeedHandler) OnPosition(current, previous *models.Position) []*models.Event {
	if h.limitKnots <= 0 || !current.Valid {
		return nil
	}
	if current.Speed <= h.limitKnots {
		return nil
	}
	if previous != nil && previous.Valid && previous.Speed > h.limitKnots {
		return nil // still speeding, already reported
	}

	event := models.NewEvent(models.TypeDeviceOverspeed, current.DeviceID)
	event.PositionID = current.ID
	event.EventTime = current.FixTime
	event.Set("speed", current.Speed)
	event.Set(models.KeySpeedLimit, h.limitKnots)
	return []*models.Event{event}
}
