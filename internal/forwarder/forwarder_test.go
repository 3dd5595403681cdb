package forwarder

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleettrack/internal/models"
)

func TestForward_PublishesOnceWithRecipients(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	f := NewEventForwarder(client, "fleettrack:events", 1000, zap.NewNop())

	event := models.NewEvent(models.TypeAlarm, 7)
	event.Set(models.KeyAlarm, models.AlarmSOS)
	position := &models.Position{DeviceID: 7, Latitude: 23.123, Longitude: 114.567}

	require.NoError(t, f.Forward(context.Background(), event, position, []int64{5, 9}))

	entries, err := client.XRange(context.Background(), "fleettrack:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	values := entries[0].Values
	assert.Equal(t, models.TypeAlarm, values["type"])
	assert.Equal(t, "7", values["device_id"])
	assert.Equal(t, "5,9", values["recipients"])
	assert.Contains(t, values["data"], `"sos"`)
}

func TestForward_NoPosition(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	f := NewEventForwarder(client, "fleettrack:events", 1000, zap.NewNop())

	event := models.NewEvent(models.TypeDeviceOffline, 7)
	require.NoError(t, f.Forward(context.Background(), event, nil, nil))

	entries, err := client.XRange(context.Background(), "fleettrack:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "", entries[0].Values["recipients"])
}
