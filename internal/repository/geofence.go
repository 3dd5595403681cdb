package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"fleettrack/internal/models"
)

// GeofenceRepository 围栏仓库
// 实现 handler.GeofenceProvider。
type GeofenceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewGeofenceRepository 创建围栏仓库
func NewGeofenceRepository(db *sql.DB, logger *zap.Logger) *GeofenceRepository {
	return &GeofenceRepository{
		db:     db,
		logger: logger,
	}
}

// ListByDevice 查询设备关联的所有围栏
func (r *GeofenceRepository) ListByDevice(deviceID int64) ([]*models.Geofence, error) {
	query := `
		SELECT g.id, g.name, g.latitude, g.longitude, g.radius
		FROM geofences g
		JOIN device_geofence dg ON dg.geofence_id = g.id
		WHERE dg.device_id = $1
		ORDER BY g.id
	`

	rows, err := r.db.Query(query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query device geofences: %w", err)
	}
	defer rows.Close()

	var fences []*models.Geofence
	for rows.Next() {
		var fence models.Geofence
		if err := rows.Scan(&fence.ID, &fence.Name, &fence.Latitude, &fence.Longitude, &fence.Radius); err != nil {
			return nil, fmt.Errorf("failed to scan geofence: %w", err)
		}
		fences = append(fences, &fence)
	}
	return fences, rows.Err()
}
