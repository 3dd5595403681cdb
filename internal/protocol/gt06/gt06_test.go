package gt06

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleettrack/internal/models"
	"fleettrack/internal/protocol"
	"fleettrack/internal/session"
)

type testChannel struct{ writes [][]byte }

func (c *testChannel) Write(data []byte) error { c.writes = append(c.writes, data); return nil }
func (c *testChannel) RemoteAddr() string      { return "192.0.2.10:50000" }
func (c *testChannel) Close() error            { return nil }

type testLookup struct{}

func (l *testLookup) GetByUniqueID(ctx context.Context, uniqueID string) (*models.Device, error) {
	if uniqueID == "123456789012345" {
		return &models.Device{ID: 7, UniqueID: uniqueID}, nil
	}
	return nil, fmt.Errorf("device not found: %s", uniqueID)
}

func newTestResolver() *session.Registry {
	return session.NewRegistry(&testLookup{}, time.Minute, zap.NewNop())
}

// buildFrame assembles a gt06 frame with a valid checksum.
func buildFrame(msgType byte, info []byte, serial uint16) []byte {
	length := byte(len(info) + 5)
	frame := []byte{startByte, startByte, length, msgType}
	frame = append(frame, info...)
	frame = append(frame, byte(serial>>8), byte(serial))
	crc := crc16X25(frame[2:])
	frame = append(frame, byte(crc>>8), byte(crc), stopByte1, stopByte2)
	return frame
}

// IMEI 123456789012345 as 8 bytes of padded BCD.
var loginInfo = []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0x01, 0x23, 0x45}

func login(t *testing.T, decoder *Decoder, resolver *session.Registry, ch session.Channel) {
	t.Helper()
	result, err := decoder.Decode(context.Background(), resolver, ch, buildFrame(msgLogin, loginInfo, 1))
	require.NoError(t, err)
	require.NotNil(t, result.Response)
}

func TestFrameDecoder(t *testing.T) {
	decoder := &FrameDecoder{}
	frame := buildFrame(msgLogin, loginInfo, 1)

	// Partial data stays buffered.
	_, rest, err := decoder.Decode(frame[:4])
	assert.ErrorIs(t, err, protocol.ErrFrameIncomplete)
	assert.Equal(t, frame[:4], rest)

	decoded, rest, err := decoder.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, frame, decoded)
	assert.Empty(t, rest)

	// A buffer not starting with 0x78 0x78 means the stream is lost.
	_, _, err = decoder.Decode([]byte{0x00, 0x78, 0x78})
	assert.ErrorIs(t, err, protocol.ErrStreamDesynchronized)
}

func TestDecodeLogin(t *testing.T) {
	decoder := &Decoder{}
	resolver := newTestResolver()
	ch := &testChannel{}

	result, err := decoder.Decode(context.Background(), resolver, ch, buildFrame(msgLogin, loginInfo, 0x0042))
	require.NoError(t, err)
	assert.Empty(t, result.Positions)

	// Ack echoes message type and serial.
	require.Len(t, result.Response, 10)
	assert.Equal(t, byte(msgLogin), result.Response[3])
	assert.Equal(t, uint16(0x0042), protocol.ReadUint16(result.Response[4:6]))

	// Session is bound; a follow-up frame resolves without the IMEI.
	s, err := resolver.Resolve(context.Background(), ProtocolName, ch)
	require.NoError(t, err)
	assert.Equal(t, int64(7), s.DeviceID())
}

func TestDecodeLogin_UnknownDevice(t *testing.T) {
	decoder := &Decoder{}
	resolver := newTestResolver()
	ch := &testChannel{}

	unknown := []byte{0x09, 0x99, 0x99, 0x99, 0x99, 0x99, 0x99, 0x99}
	_, err := decoder.Decode(context.Background(), resolver, ch, buildFrame(msgLogin, unknown, 1))
	assert.ErrorIs(t, err, session.ErrDeviceUnknown)
}

func TestDecodeLocation(t *testing.T) {
	decoder := &Decoder{}
	resolver := newTestResolver()
	ch := &testChannel{}
	login(t, decoder, resolver, ch)

	info := []byte{
		24, 3, 6, 10, 30, 0, // 2024-03-06 10:30:00
		0xC9,                   // gps info, 9 satellites
		0x02, 0x7B, 0x17, 0x98, // 23.123 deg * 1800000
		0x0C, 0x4A, 0xAD, 0x38, // 114.567 deg * 1800000
		60,         // 60 km/h
		0x15, 0x4C, // valid, north, east, course 332
	}
	result, err := decoder.Decode(context.Background(), resolver, ch, buildFrame(msgLocation, info, 2))
	require.NoError(t, err)
	require.Len(t, result.Positions, 1)

	p := result.Positions[0]
	assert.Equal(t, int64(7), p.DeviceID)
	assert.Equal(t, ProtocolName, p.Protocol)
	assert.True(t, p.Valid)
	assert.InDelta(t, 23.123, p.Latitude, 0.0001)
	assert.InDelta(t, 114.567, p.Longitude, 0.0001)
	assert.InDelta(t, 60*knotsPerKmh, p.Speed, 0.001)
	assert.InDelta(t, 332, p.Course, 0.001)
	assert.Equal(t, time.Date(2024, 3, 6, 10, 30, 0, 0, time.UTC), p.FixTime)

	sat, ok := p.GetFloat(models.KeySatellites)
	require.True(t, ok)
	assert.Equal(t, float64(9), sat)
}

func TestDecodeLocation_WithoutSession(t *testing.T) {
	decoder := &Decoder{}
	resolver := newTestResolver()
	ch := &testChannel{}

	info := make([]byte, 18)
	info[1] = 3
	info[2] = 6
	_, err := decoder.Decode(context.Background(), resolver, ch, buildFrame(msgLocation, info, 2))
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestDecodeHeartbeat(t *testing.T) {
	decoder := &Decoder{}
	resolver := newTestResolver()
	ch := &testChannel{}
	login(t, decoder, resolver, ch)

	info := []byte{0x42, 0x05, 0x12, 0x00, 0x01} // ACC on, battery 5, gsm 18
	result, err := decoder.Decode(context.Background(), resolver, ch, buildFrame(msgHeartbeat, info, 3))
	require.NoError(t, err)
	require.Len(t, result.Positions, 1)
	require.NotNil(t, result.Response)

	p := result.Positions[0]
	assert.False(t, p.Valid)
	ignition, ok := p.GetBool(models.KeyIgnition)
	require.True(t, ok)
	assert.True(t, ignition)
}

func TestDecodeAlarm(t *testing.T) {
	decoder := &Decoder{}
	resolver := newTestResolver()
	ch := &testChannel{}
	login(t, decoder, resolver, ch)

	info := []byte{
		24, 3, 6, 10, 30, 0,
		0xC9,
		0x02, 0x7B, 0x17, 0x98,
		0x0C, 0x4A, 0xAD, 0x38,
		0,
		0x14, 0x00, // valid, stationary
	}
	info = append(info, make([]byte, 9)...)            // LBS block
	info = append(info, 0x42, 0x04, 0x10, 0x01, 0x00) // terminal, voltage, gsm, alarm=SOS, lang
	result, err := decoder.Decode(context.Background(), resolver, ch, buildFrame(msgAlarm, info, 4))
	require.NoError(t, err)
	require.Len(t, result.Positions, 1)

	assert.Equal(t, models.AlarmSOS, result.Positions[0].GetString(models.KeyAlarm))
}

func TestDecode_BadChecksum(t *testing.T) {
	decoder := &Decoder{}
	resolver := newTestResolver()
	ch := &testChannel{}

	frame := buildFrame(msgLogin, loginInfo, 1)
	frame[len(frame)-3] ^= 0xFF
	_, err := decoder.Decode(context.Background(), resolver, ch, frame)
	assert.ErrorIs(t, err, protocol.ErrFrameMalformed)
}
