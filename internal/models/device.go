package models

import (
	"math"
	"time"
)

// Device 终端设备（对应 devices 表）
type Device struct {
	ID       int64     `json:"id" db:"id"`
	Name     string    `json:"name" db:"name"`
	UniqueID string    `json:"unique_id" db:"unique_id"`
	Disabled bool      `json:"disabled" db:"disabled"`
	LastSeen time.Time `json:"last_seen" db:"last_seen"`
}

// User 账号（对应 users 表）
// Attributes carries per-user channel settings, e.g. "webhookUrl".
type User struct {
	ID         int64                  `json:"id" db:"id"`
	Name       string                 `json:"name" db:"name"`
	Email      string                 `json:"email" db:"email"`
	Attributes map[string]interface{} `json:"attributes"`
}

// GetString returns a string attribute, "" when absent.
func (u *User) GetString(key string) string {
	if u.Attributes == nil {
		return ""
	}
	if v, ok := u.Attributes[key].(string); ok {
		return v
	}
	return ""
}

// Geofence 圆形围栏（对应 geofences 表）
type Geofence struct {
	ID        int64   `json:"id" db:"id"`
	Name      string  `json:"name" db:"name"`
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
	Radius    float64 `json:"radius" db:"radius"` // meters
}

const earthRadiusMeters = 6371000

// Contains reports whether the point lies inside the fence circle.
func (g *Geofence) Contains(lat, lon float64) bool {
	return haversine(g.Latitude, g.Longitude, lat, lon) <= g.Radius
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}
