package models

import (
	"time"
)

// Event types form a closed, statically declared vocabulary.
const (
	TypeDeviceOnline  = "deviceOnline"
	TypeDeviceOffline = "deviceOffline"
	TypeDeviceUnknown = "deviceUnknown"

	TypeDeviceMoving  = "deviceMoving"
	TypeDeviceStopped = "deviceStopped"

	TypeIgnitionOn  = "ignitionOn"
	TypeIgnitionOff = "ignitionOff"

	TypeDeviceOverspeed = "deviceOverspeed"

	TypeGeofenceEnter = "geofenceEnter"
	TypeGeofenceExit  = "geofenceExit"

	TypeAlarm = "alarm"

	TypeCommandResult    = "commandResult"
	TypeTestNotification = "testNotification"
)

// AllEventTypes 所有事件类型（用于管理接口枚举）
func AllEventTypes() []Typed {
	names := []string{
		TypeDeviceOnline, TypeDeviceOffline, TypeDeviceUnknown,
		TypeDeviceMoving, TypeDeviceStopped,
		TypeIgnitionOn, TypeIgnitionOff,
		TypeDeviceOverspeed,
		TypeGeofenceEnter, TypeGeofenceExit,
		TypeAlarm,
		TypeCommandResult, TypeTestNotification,
	}
	types := make([]Typed, 0, len(names))
	for _, name := range names {
		types = append(types, Typed{Type: name})
	}
	return types
}

// Event 状态变化事件（detected state transition, persisted before dispatch）
type Event struct {
	ID         int64                  `json:"id" db:"id"`
	Type       string                 `json:"type" db:"type"`
	DeviceID   int64                  `json:"device_id" db:"device_id"`
	PositionID int64                  `json:"position_id,omitempty" db:"position_id"`
	EventTime  time.Time              `json:"event_time" db:"event_time"`
	Attributes map[string]interface{} `json:"attributes"`
}

// NewEvent 创建事件（server time 由此处统一赋值）
func NewEvent(eventType string, deviceID int64) *Event {
	return &Event{
		Type:      eventType,
		DeviceID:  deviceID,
		EventTime: time.Now(),
	}
}

// Set stores an event attribute, allocating the map on first use.
func (e *Event) Set(key string, value interface{}) {
	if e.Attributes == nil {
		e.Attributes = make(map[string]interface{})
	}
	e.Attributes[key] = value
}

// GetString returns a string attribute, "" when absent.
func (e *Event) GetString(key string) string {
	if e.Attributes == nil {
		return ""
	}
	if v, ok := e.Attributes[key].(string); ok {
		return v
	}
	return ""
}
