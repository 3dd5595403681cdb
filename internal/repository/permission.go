package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"fleettrack/internal/models"
)

// PermissionRepository 用户-设备关联仓库
type PermissionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPermissionRepository 创建用户-设备关联仓库
func NewPermissionRepository(db *sql.DB, logger *zap.Logger) *PermissionRepository {
	return &PermissionRepository{
		db:     db,
		logger: logger,
	}
}

// UsersOfDevice 查询可见该设备的所有用户
func (r *PermissionRepository) UsersOfDevice(ctx context.Context, deviceID int64) ([]*models.User, error) {
	query := `
		SELECT u.id, u.name, u.email, u.attributes
		FROM users u
		JOIN user_device ud ON ud.user_id = u.id
		WHERE ud.device_id = $1
		ORDER BY u.id
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query device users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var user models.User
		var attributes []byte
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &attributes); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if len(attributes) > 0 {
			if err := json.Unmarshal(attributes, &user.Attributes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal user attributes: %w", err)
			}
		}
		users = append(users, &user)
	}
	return users, rows.Err()
}

// CheckDeviceAccess 校验用户对设备的可见性
func (r *PermissionRepository) CheckDeviceAccess(ctx context.Context, userID, deviceID int64) (bool, error) {
	query := `
		SELECT 1
		FROM user_device
		WHERE user_id = $1 AND device_id = $2
	`

	var one int
	err := r.db.QueryRowContext(ctx, query, userID, deviceID).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to check device access: %w", err)
	}
	return true, nil
}
