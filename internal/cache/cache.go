// Package cache keeps the latest position of each device in Redis so
// event handlers can recover their previous-position memory after a
// restart.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"fleettrack/internal/config"
	"fleettrack/internal/models"
)

const lastPositionTTL = 7 * 24 * time.Hour

// NewRedisClient 创建Redis客户端
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// PositionCache 设备最新位置缓存
type PositionCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewPositionCache 创建位置缓存
func NewPositionCache(client *redis.Client, logger *zap.Logger) *PositionCache {
	return &PositionCache{
		client: client,
		logger: logger,
	}
}

func lastPositionKey(deviceID int64) string {
	return fmt.Sprintf("fleettrack:device:%d:last", deviceID)
}

// SetLast 写入设备最新位置
func (c *PositionCache) SetLast(ctx context.Context, position *models.Position) error {
	data, err := json.Marshal(position)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}
	if err := c.client.Set(ctx, lastPositionKey(position.DeviceID), data, lastPositionTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache position: %w", err)
	}
	return nil
}

// GetLast 读取设备最新位置，未命中返回 nil
func (c *PositionCache) GetLast(ctx context.Context, deviceID int64) (*models.Position, error) {
	data, err := c.client.Get(ctx, lastPositionKey(deviceID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached position: %w", err)
	}

	var position models.Position
	if err := json.Unmarshal(data, &position); err != nil {
		// Stale or corrupt entry; treat as a miss.
		c.logger.Warn("Discarding unreadable cached position",
			zap.Int64("device_id", deviceID),
			zap.Error(err),
		)
		return nil, nil
	}
	return &position, nil
}
