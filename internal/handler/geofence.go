package handler

import (
	"go.uber.org/zap"

	"fleettrack/internal/models"
)

// GeofenceProvider 围栏查询接口（由 repository.GeofenceRepository 实现）
type GeofenceProvider interface {
	ListByDevice(deviceID int64) ([]*models.Geofence, error)
}

// GeofenceHandler 围栏进出检测
type GeofenceHandler struct {
	provider GeofenceProvider
	logger   *zap.Logger
}

// NewGeofenceHandler 创建围栏检测处理器
func NewGeofenceHandler(provider GeofenceProvider, logger *zap.Logger) *GeofenceHandler {
	return &GeofenceHandler{provider: provider, logger: logger}
}

// Name implements Handler.
func (h *GeofenceHandler) Name() string { return "geofence" }

// OnPosition implements Handler. Containment is recomputed for both
// samples from the device's fences; the diff yields enter/exit events.
func (h *GeofenceHandler) OnPosition(current, previous *models.Position) []*models.Event {
	if previous == nil || !current.Valid || !previous.Valid {
		return nil
	}
	fences, err := h.provider.ListByDevice(current.DeviceID)
	if err != nil {
		h.logger.Warn("Geofence lookup failed",
			zap.Int64("device_id", current.DeviceID),
			zap.Error(err),
		)
		return nil
	}

	var events []*models.Event
	for _, fence := range fences {
		inside := fence.Contains(current.Latitude, current.Longitude)
		wasInside := fence.Contains(previous.Latitude, previous.Longitude)
		if inside == wasInside {
			continue
		}

		eventType := models.TypeGeofenceExit
		if inside {
			eventType = models.TypeGeofenceEnter
		}
		event := models.NewEvent(eventType, current.DeviceID)
		event.PositionID = current.ID
		event.EventTime = current.FixTime
		event.Set(models.KeyGeofenceID, fence.ID)
		events = append(events, event)
	}
	return events
}
