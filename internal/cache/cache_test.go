package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleettrack/internal/models"
)

func setupCache(t *testing.T) (*miniredis.Miniredis, *PositionCache) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewPositionCache(client, zap.NewNop())
}

func TestPositionCache_RoundTrip(t *testing.T) {
	_, c := setupCache(t)
	ctx := context.Background()

	position := &models.Position{
		DeviceID:  7,
		Protocol:  "gt06",
		FixTime:   time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC),
		Valid:     true,
		Latitude:  23.123,
		Longitude: 114.567,
		Speed:     12.5,
	}
	position.Set(models.KeyIgnition, true)

	require.NoError(t, c.SetLast(ctx, position))

	got, err := c.GetLast(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.DeviceID)
	assert.InDelta(t, 23.123, got.Latitude, 1e-9)
	assert.Equal(t, true, got.Attributes[models.KeyIgnition])
}

func TestPositionCache_Miss(t *testing.T) {
	_, c := setupCache(t)

	got, err := c.GetLast(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPositionCache_CorruptEntryIsMiss(t *testing.T) {
	mr, c := setupCache(t)
	require.NoError(t, mr.Set("fleettrack:device:7:last", "{not json"))

	got, err := c.GetLast(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}
