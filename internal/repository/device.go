package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fleettrack/internal/models"
	"fleettrack/internal/session"
)

// DeviceRepository 设备仓库
type DeviceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeviceRepository 创建设备仓库
func NewDeviceRepository(db *sql.DB, logger *zap.Logger) *DeviceRepository {
	return &DeviceRepository{
		db:     db,
		logger: logger,
	}
}

// GetByUniqueID 按设备唯一标识（IMEI）查询设备
// Unknown identifiers map to session.ErrDeviceUnknown so the protocol
// layer can drop the frame without acknowledging it.
func (r *DeviceRepository) GetByUniqueID(ctx context.Context, uniqueID string) (*models.Device, error) {
	query := `
		SELECT id, name, unique_id, disabled, last_seen
		FROM devices
		WHERE unique_id = $1
	`

	var device models.Device
	var lastSeen sql.NullTime
	err := r.db.QueryRowContext(ctx, query, uniqueID).Scan(
		&device.ID,
		&device.Name,
		&device.UniqueID,
		&device.Disabled,
		&lastSeen,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, session.ErrDeviceUnknown
		}
		return nil, fmt.Errorf("failed to query device by unique id: %w", err)
	}
	if lastSeen.Valid {
		device.LastSeen = lastSeen.Time
	}

	if device.Disabled {
		return nil, session.ErrDeviceUnknown
	}
	return &device, nil
}

// GetByID 按主键查询设备
func (r *DeviceRepository) GetByID(ctx context.Context, id int64) (*models.Device, error) {
	query := `
		SELECT id, name, unique_id, disabled, last_seen
		FROM devices
		WHERE id = $1
	`

	var device models.Device
	var lastSeen sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&device.ID,
		&device.Name,
		&device.UniqueID,
		&device.Disabled,
		&lastSeen,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, session.ErrDeviceUnknown
		}
		return nil, fmt.Errorf("failed to query device: %w", err)
	}
	if lastSeen.Valid {
		device.LastSeen = lastSeen.Time
	}
	return &device, nil
}

// TouchLastSeen 更新设备最近上报时间
func (r *DeviceRepository) TouchLastSeen(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE devices SET last_seen = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last_seen: %w", err)
	}
	return nil
}
