package models

import (
	"time"
)

// Attribute keys shared by protocol decoders and event handlers.
const (
	KeyIgnition   = "ignition"
	KeyMotion     = "motion"
	KeyAlarm      = "alarm"
	KeyBattery    = "battery"
	KeyPower      = "power"
	KeySatellites = "sat"
	KeyRSSI       = "rssi"
	KeyOdometer   = "odometer"
	KeyStatus     = "status"
	KeyIndex      = "index"
	KeyResult     = "result"
	KeySpeedLimit = "speedLimit"
	KeyGeofenceID = "geofenceId"
)

// Alarm attribute values (Position KeyAlarm / Notification "alarms" filter).
const (
	AlarmSOS          = "sos"
	AlarmPowerCut     = "powerCut"
	AlarmVibration    = "vibration"
	AlarmGeofenceIn   = "geofenceEnter"
	AlarmGeofenceOut  = "geofenceExit"
	AlarmLowBattery   = "lowBattery"
	AlarmOverspeed    = "overspeed"
	AlarmPowerRestore = "powerRestored"
)

// Position 规范化的定位采样（normalized telemetry sample）
// Attributes carries protocol-specific fields keyed by the Key* constants.
type Position struct {
	ID         int64                  `json:"id" db:"id"`
	DeviceID   int64                  `json:"device_id" db:"device_id"`
	Protocol   string                 `json:"protocol" db:"protocol"`
	FixTime    time.Time              `json:"fix_time" db:"fix_time"`
	ServerTime time.Time              `json:"server_time" db:"server_time"`
	Valid      bool                   `json:"valid" db:"valid"`
	Latitude   float64                `json:"latitude" db:"latitude"`
	Longitude  float64                `json:"longitude" db:"longitude"`
	Altitude   float64                `json:"altitude" db:"altitude"`
	Speed      float64                `json:"speed" db:"speed"` // knots
	Course     float64                `json:"course" db:"course"`
	Address    string                 `json:"address,omitempty" db:"address"`
	Attributes map[string]interface{} `json:"attributes"`
}

// Set stores a protocol attribute, allocating the map on first use.
func (p *Position) Set(key string, value interface{}) {
	if p.Attributes == nil {
		p.Attributes = make(map[string]interface{})
	}
	p.Attributes[key] = value
}

// GetString returns a string attribute, "" when absent or of another type.
func (p *Position) GetString(key string) string {
	if p.Attributes == nil {
		return ""
	}
	if v, ok := p.Attributes[key].(string); ok {
		return v
	}
	return ""
}

// GetBool returns a bool attribute and whether it was present.
func (p *Position) GetBool(key string) (bool, bool) {
	if p.Attributes == nil {
		return false, false
	}
	v, ok := p.Attributes[key].(bool)
	return v, ok
}

// GetFloat returns a numeric attribute as float64 and whether it was present.
func (p *Position) GetFloat(key string) (float64, bool) {
	if p.Attributes == nil {
		return 0, false
	}
	switch v := p.Attributes[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
