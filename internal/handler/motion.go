package handler

import (
	"fleettrack/internal/models"
)

// minimal speed in knots below which a device counts as stopped
const motionThresholdKnots = 1.0

// MotionHandler 运动状态变化检测（基于速度阈值）
type MotionHandler struct{}

// NewMotionHandler 创建运动检测处理器
func NewMotionHandler() *MotionHandler { return &MotionHandler{} }

// Name implements Handler.
func (h *MotionHandler) Name() string { return "motion" }

// OnPosition implements Handler.
func (h *MotionHandler) OnPosition(current, previous *models.Position) []*models.Event {
	if previous == nil || !current.Valid || !previous.Valid {
		return nil
	}
	moving := current.Speed >= motionThresholdKnots
	wasMoving := previous.Speed >= motionThresholdKnots
	if moving == wasMoving {
		return nil
	}

	eventType := models.TypeDeviceStopped
	if moving {
		eventType = models.TypeDeviceMoving
	}
	event := models.NewEvent(eventType, current.DeviceID)
	event.PositionID = current.ID
	event.EventTime = current.FixTime
	return []*models.Event{event}
}
