package models

// Command types. Protocol encoders reject types they cannot represent.
const (
	CommandCustom        = "custom"
	CommandEngineStop    = "engineStop"
	CommandEngineResume  = "engineResume"
	CommandPositionQuery = "positionSingle"
)

// Command attribute keys.
const (
	KeyData = "data"
)

// Command 下行指令（application-level outbound command）
type Command struct {
	DeviceID   int64                  `json:"device_id"`
	Type       string                 `json:"type"`
	Attributes map[string]interface{} `json:"attributes"`
}

// GetString returns a string attribute, "" when absent.
func (c *Command) GetString(key string) string {
	if c.Attributes == nil {
		return ""
	}
	if v, ok := c.Attributes[key].(string); ok {
		return v
	}
	return ""
}
