package models

import (
	"strings"
)

// Notification 用户通知规则（user-authored dispatch rule）
// Notificators is a comma-separated list of channel names.
// For alarm-type notifications the "alarms" attribute holds a
// comma-separated whitelist of alarm sub-types; a missing whitelist
// matches no alarms at all.
type Notification struct {
	ID           int64                  `json:"id" db:"id"`
	Type         string                 `json:"type" db:"type"`
	Always       bool                   `json:"always" db:"always"`
	CalendarID   int64                  `json:"calendar_id,omitempty" db:"calendar_id"`
	Notificators string                 `json:"notificators" db:"notificators"`
	Attributes   map[string]interface{} `json:"attributes"`
}

// NotificatorTypes 解析通知渠道列表
func (n *Notification) NotificatorTypes() []string {
	if n.Notificators == "" {
		return nil
	}
	parts := strings.Split(n.Notificators, ",")
	types := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			types = append(types, trimmed)
		}
	}
	return types
}

// GetString returns a string attribute, "" when absent.
func (n *Notification) GetString(key string) string {
	if n.Attributes == nil {
		return ""
	}
	if v, ok := n.Attributes[key].(string); ok {
		return v
	}
	return ""
}

// Typed 类型描述符（仅用于向客户端枚举，不落库）
type Typed struct {
	Type string `json:"type"`
}
