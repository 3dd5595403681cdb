package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"fleettrack/internal/models"
)

// PositionRepository 轨迹点仓库
type PositionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPositionRepository 创建轨迹点仓库
func NewPositionRepository(db *sql.DB, logger *zap.Logger) *PositionRepository {
	return &PositionRepository{
		db:     db,
		logger: logger,
	}
}

// Insert 写入轨迹点，回填自增ID
func (r *PositionRepository) Insert(ctx context.Context, position *models.Position) error {
	attributes, err := json.Marshal(position.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal position attributes: %w", err)
	}

	query := `
		INSERT INTO positions (
			device_id, protocol, fix_time, server_time, valid,
			latitude, longitude, altitude, speed, course, address, attributes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`

	err = r.db.QueryRowContext(ctx, query,
		position.DeviceID,
		position.Protocol,
		position.FixTime,
		position.ServerTime,
		position.Valid,
		position.Latitude,
		position.Longitude,
		position.Altitude,
		position.Speed,
		position.Course,
		position.Address,
		attributes,
	).Scan(&position.ID)
	if err != nil {
		return fmt.Errorf("failed to insert position: %w", err)
	}
	return nil
}
