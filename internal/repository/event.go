package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"fleettrack/internal/models"
)

// EventRepository 事件仓库
type EventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEventRepository 创建事件仓库
func NewEventRepository(db *sql.DB, logger *zap.Logger) *EventRepository {
	return &EventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert 写入事件，回填自增ID
func (r *EventRepository) Insert(ctx context.Context, event *models.Event) error {
	attributes, err := json.Marshal(event.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal event attributes: %w", err)
	}

	var positionID sql.NullInt64
	if event.PositionID != 0 {
		positionID = sql.NullInt64{Int64: event.PositionID, Valid: true}
	}

	query := `
		INSERT INTO events (type, device_id, position_id, event_time, attributes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err = r.db.QueryRowContext(ctx, query,
		event.Type,
		event.DeviceID,
		positionID,
		event.EventTime,
		attributes,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}
