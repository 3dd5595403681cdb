package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"fleettrack/internal/models"
)

// NotificationRepository 通知配置仓库
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository 创建通知配置仓库
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// UserNotifications 查询用户订阅的所有通知配置
func (r *NotificationRepository) UserNotifications(ctx context.Context, userID int64) ([]*models.Notification, error) {
	query := `
		SELECT n.id, n.type, n.always, COALESCE(n.calendar_id, 0), n.notificators, n.attributes
		FROM notifications n
		JOIN user_notification un ON un.notification_id = n.id
		WHERE un.user_id = $1
		ORDER BY n.id
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		notification, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, notification)
	}
	return notifications, rows.Err()
}

// DeviceNotificationIDs 查询设备直接关联的通知配置ID集合
func (r *NotificationRepository) DeviceNotificationIDs(ctx context.Context, deviceID int64) (map[int64]bool, error) {
	query := `
		SELECT notification_id
		FROM device_notification
		WHERE device_id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query device notifications: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan notification id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// GetCalendar 查询日历配置
func (r *NotificationRepository) GetCalendar(ctx context.Context, id int64) (*models.Calendar, error) {
	query := `
		SELECT id, name, days, start_time, end_time, timezone
		FROM calendars
		WHERE id = $1
	`

	var calendar models.Calendar
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&calendar.ID,
		&calendar.Name,
		&calendar.Days,
		&calendar.Start,
		&calendar.End,
		&calendar.Timezone,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}
	return &calendar, nil
}

func scanNotification(rows *sql.Rows) (*models.Notification, error) {
	var notification models.Notification
	var attributes []byte
	err := rows.Scan(
		&notification.ID,
		&notification.Type,
		&notification.Always,
		&notification.CalendarID,
		&notification.Notificators,
		&attributes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}
	if len(attributes) > 0 {
		if err := json.Unmarshal(attributes, &notification.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification attributes: %w", err)
		}
	}
	return &notification, nil
}
