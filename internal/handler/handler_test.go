package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleettrack/internal/models"
)

func position(deviceID int64, speed float64, attrs map[string]interface{}) *models.Position {
	p := &models.Position{
		DeviceID: deviceID,
		Protocol: "gt06",
		FixTime:  time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC),
		Valid:    true,
		Speed:    speed,
	}
	for k, v := range attrs {
		p.Set(k, v)
	}
	return p
}

func TestIgnitionHandler(t *testing.T) {
	h := NewIgnitionHandler()

	off := position(1, 0, map[string]interface{}{models.KeyIgnition: false})
	on := position(1, 0, map[string]interface{}{models.KeyIgnition: true})

	// First position has no history.
	assert.Nil(t, h.OnPosition(on, nil))

	events := h.OnPosition(on, off)
	require.Len(t, events, 1)
	assert.Equal(t, models.TypeIgnitionOn, events[0].Type)

	events = h.OnPosition(off, on)
	require.Len(t, events, 1)
	assert.Equal(t, models.TypeIgnitionOff, events[0].Type)

	// No change, no event.
	assert.Nil(t, h.OnPosition(on, on))

	// Missing attribute on either side, no event.
	bare := position(1, 0, nil)
	assert.Nil(t, h.OnPosition(bare, on))
	assert.Nil(t, h.OnPosition(on, bare))
}

func TestMotionHandler(t *testing.T) {
	h := NewMotionHandler()

	stopped := position(1, 0, nil)
	moving := position(1, 20, nil)

	events := h.OnPosition(moving, stopped)
	require.Len(t, events, 1)
	assert.Equal(t, models.TypeDeviceMoving, events[0].Type)

	events = h.OnPosition(stopped, moving)
	require.Len(t, events, 1)
	assert.Equal(t, models.TypeDeviceStopped, events[0].Type)

	assert.Nil(t, h.OnPosition(moving, moving))

	invalid := position(1, 20, nil)
	invalid.Valid = false
	assert.Nil(t, h.OnPosition(invalid, stopped))
}

func TestOverspeedHandler(t *testing.T) {
	h := NewOverspeedHandler(54) // ~100 km/h in knots

	slow := position(1, 30, nil)
	fast := position(1, 60, nil)

	events := h.OnPosition(fast, slow)
	require.Len(t, events, 1)
	assert.Equal(t, models.TypeDeviceOverspeed, events[0].Type)
	limit, ok := events[0].Attributes[models.KeySpeedLimit].(float64)
	require.True(t, ok)
	assert.Equal(t, float64(54), limit)

	// Still above the limit: no repeated event.
	assert.Nil(t, h.OnPosition(fast, fast))

	// Back under, then over again fires again.
	assert.Nil(t, h.OnPosition(slow, fast))
	assert.Len(t, h.OnPosition(fast, slow), 1)
}

func TestAlarmHandler(t *testing.T) {
	h := NewAlarmHandler()

	quiet := position(1, 0, nil)
	assert.Nil(t, h.OnPosition(quiet, nil))

	sos := position(1, 0, map[string]interface{}{models.KeyAlarm: models.AlarmSOS})
	events := h.OnPosition(sos, nil)
	require.Len(t, events, 1)
	assert.Equal(t, models.TypeAlarm, events[0].Type)
	assert.Equal(t, models.AlarmSOS, events[0].GetString(models.KeyAlarm))
}

type staticFences struct{ fences []*models.Geofence }

func (s *staticFences) ListByDevice(deviceID int64) ([]*models.Geofence, error) {
	return s.fences, nil
}

func TestGeofenceHandler(t *testing.T) {
	fence := &models.Geofence{ID: 5, Latitude: 48.8584, Longitude: 2.2945, Radius: 500}
	h := NewGeofenceHandler(&staticFences{fences: []*models.Geofence{fence}}, zap.NewNop())

	outside := position(1, 10, nil)
	outside.Latitude, outside.Longitude = 48.9, 2.4

	inside := position(1, 10, nil)
	inside.Latitude, inside.Longitude = 48.8585, 2.2946

	events := h.OnPosition(inside, outside)
	require.Len(t, events, 1)
	assert.Equal(t, models.TypeGeofenceEnter, events[0].Type)
	assert.Equal(t, int64(5), events[0].Attributes[models.KeyGeofenceID])

	events = h.OnPosition(outside, inside)
	require.Len(t, events, 1)
	assert.Equal(t, models.TypeGeofenceExit, events[0].Type)

	assert.Nil(t, h.OnPosition(inside, inside))
}

// The chain is deterministic: the same (previous, current) pair always
// produces the same events, regardless of how often it is replayed.
func TestChain_Deterministic(t *testing.T) {
	run := func() []string {
		chain := NewChain(zap.NewNop(), NewIgnitionHandler(), NewMotionHandler(), NewAlarmHandler())

		first := position(1, 0, map[string]interface{}{models.KeyIgnition: false})
		second := position(1, 20, map[string]interface{}{
			models.KeyIgnition: true,
			models.KeyAlarm:    models.AlarmVibration,
		})

		var produced []string
		for _, e := range chain.Process(first) {
			produced = append(produced, e.Type)
		}
		for _, e := range chain.Process(second) {
			produced = append(produced, e.Type)
		}
		return produced
	}

	expected := []string{models.TypeIgnitionOn, models.TypeDeviceMoving, models.TypeAlarm}
	for i := 0; i < 5; i++ {
		assert.Equal(t, expected, run())
	}
}

func TestChain_PerDeviceMemoryIsolated(t *testing.T) {
	chain := NewChain(zap.NewNop(), NewIgnitionHandler())

	deviceOneOff := position(1, 0, map[string]interface{}{models.KeyIgnition: false})
	deviceTwoOn := position(2, 0, map[string]interface{}{models.KeyIgnition: true})

	assert.Empty(t, chain.Process(deviceOneOff))
	assert.Empty(t, chain.Process(deviceTwoOn))

	// Device 1 flips on; device 2's state must not interfere.
	deviceOneOn := position(1, 0, map[string]interface{}{models.KeyIgnition: true})
	events := chain.Process(deviceOneOn)
	require.Len(t, events, 1)
	assert.Equal(t, models.TypeIgnitionOn, events[0].Type)
	assert.Equal(t, int64(1), events[0].DeviceID)
}

func TestChain_Warm(t *testing.T) {
	chain := NewChain(zap.NewNop(), NewIgnitionHandler())

	cached := position(1, 0, map[string]interface{}{models.KeyIgnition: false})
	chain.Warm(cached)

	on := position(1, 0, map[string]interface{}{models.KeyIgnition: true})
	events := chain.Process(on)
	require.Len(t, events, 1)
	assert.Equal(t, models.TypeIgnitionOn, events[0].Type)
}
