package handler

import (
	"fleettrack/internal/models"
)

// AlarmHandler 报警透传（Position 报警属性 → alarm 事件）
type AlarmHandler struct{}

// NewAlarmHandler 创建报警处理器
func NewAlarmHandler() *AlarmHandler { return &AlarmHandler{} }

// Name implements Handler.
func (h *AlarmHandler) Name() string { return "alarm" }

// OnPosition implements Handler.
func (h *AlarmHandler) OnPosition(current, previous *models.Position) []*models.Event {
	alarm := current.GetString(models.KeyAlarm)
	if alarm == "" {
		return nil
	}
	event := models.NewEvent(models.TypeAlarm, current.DeviceID)
	event.PositionID = current.ID
	event.EventTime = current.FixTime
	event.Set(models.KeyAlarm, alarm)
	return []*models.Event{event}
}
