package t800x

import (
	"context"
	"encoding/binary"
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
func (c *testChannel) RemoteAddr() string      { return "192.0.2.20:51000" }
func (c *testChannel) Close() error            { return nil }

type testLookup struct{}

func (l *testLookup) GetByUniqueID(ctx context.Context, uniqueID string) (*models.Device, error) {
	if uniqueID == "123456789012345" {
		return &models.Device{ID: 9, UniqueID: uniqueID}, nil
	}
	return nil, fmt.Errorf("device not found: %s", uniqueID)
}

func newTestResolver() *session.Registry {
	return session.NewRegistry(&testLookup{}, time.Minute, zap.NewNop())
}

var loginPayload = []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0x01, 0x23, 0x45}

func buildFrame(msgType byte, serial uint16, payload []byte) []byte {
	return response(msgType, serial, payload)
}

func buildRecord(lat, lon float64, speedKnots float64, valid, ignition bool) []byte {
	record := []byte{24, 3, 6, 10, 30, 0}
	record = binary.BigEndian.AppendUint32(record, uint32(int32(lat*1e6)))
	record = binary.BigEndian.AppendUint32(record, uint32(int32(lon*1e6)))
	record = binary.BigEndian.AppendUint16(record, uint16(speedKnots*10))
	record = binary.BigEndian.AppendUint16(record, 90)  // course
	record = binary.BigEndian.AppendUint16(record, 120) // altitude
	var flags byte
	if valid {
		flags |= 0x01
	}
	if ignition {
		flags |= 0x02
	}
	return append(record, flags)
}

func login(t *testing.T, decoder *Decoder, resolver *session.Registry, ch session.Channel) {
	t.Helper()
	_, err := decoder.Decode(context.Background(), resolver, ch, buildFrame(msgLogin, 1, loginPayload))
	require.NoError(t, err)
}

func TestFraming_LengthCoversWholeFrame(t *testing.T) {
	frameDecoder := Protocol().NewFrameDecoder()
	frame := buildFrame(msgLogin, 1, loginPayload)

	_, _, err := frameDecoder.Decode(frame[:6])
	assert.ErrorIs(t, err, protocol.ErrFrameIncomplete)

	decoded, rest, err := frameDecoder.Decode(append(frame, 0x23))
	require.NoError(t, err)
	assert.Equal(t, frame, decoded)
	assert.Equal(t, []byte{0x23}, rest)
}

func TestDecodeLogin_AckEchoesIdentifier(t *testing.T) {
	decoder := &Decoder{}
	resolver := newTestResolver()
	ch := &testChannel{}

	result, err := decoder.Decode(context.Background(), resolver, ch, buildFrame(msgLogin, 0x0007, loginPayload))
	require.NoError(t, err)
	require.NotNil(t, result.Response)
	assert.Equal(t, byte(msgLogin), result.Response[2])
	assert.Equal(t, uint16(0x0007), protocol.ReadUint16(result.Response[5:7]))
	assert.Equal(t, loginPayload, result.Response[7:])

	s, err := resolver.Resolve(context.Background(), ProtocolName, ch)
	require.NoError(t, err)
	assert.Equal(t, int64(9), s.DeviceID())
}

func TestDecodeLocation_BatchedRecords(t *testing.T) {
	decoder := &Decoder{}
	resolver := newTestResolver()
	ch := &testChannel{}
	login(t, decoder, resolver, ch)

	payload := []byte{2}
	payload = append(payload, buildRecord(48.85, 2.35, 12.5, true, true)...)
	payload = append(payload, buildRecord(48.86, 2.36, 0, true, false)...)

	result, err := decoder.Decode(context.Background(), resolver, ch, buildFrame(msgLocation, 2, payload))
	require.NoError(t, err)
	require.Len(t, result.Positions, 2)

	first := result.Positions[0]
	assert.Equal(t, int64(9), first.DeviceID)
	assert.InDelta(t, 48.85, first.Latitude, 1e-6)
	assert.InDelta(t, 2.35, first.Longitude, 1e-6)
	assert.InDelta(t, 12.5, first.Speed, 1e-6)
	assert.True(t, first.Valid)
	assert.Equal(t, time.Date(2024, 3, 6, 10, 30, 0, 0, time.UTC), first.FixTime)

	ignition, ok := first.GetBool(models.KeyIgnition)
	require.True(t, ok)
	assert.True(t, ignition)

	second := result.Positions[1]
	assert.InDelta(t, 48.86, second.Latitude, 1e-6)
	ignition, _ = second.GetBool(models.KeyIgnition)
	assert.False(t, ignition)
}

func TestDecodeLocation_TruncatedBatch(t *testing.T) {
	decoder := &Decoder{}
	resolver := newTestResolver()
	ch := &testChannel{}
	login(t, decoder, resolver, ch)

	payload := append([]byte{2}, buildRecord(48.85, 2.35, 0, true, false)...)
	_, err := decoder.Decode(context.Background(), resolver, ch, buildFrame(msgLocation, 2, payload))
	assert.ErrorIs(t, err, protocol.ErrFrameMalformed)
}

func TestDecodeAlarm(t *testing.T) {
	decoder := &Decoder{}
	resolver := newTestResolver()
	ch := &testChannel{}
	login(t, decoder, resolver, ch)

	payload := append([]byte{0x03}, buildRecord(48.85, 2.35, 30, true, true)...)
	result, err := decoder.Decode(context.Background(), resolver, ch, buildFrame(msgAlarm, 3, payload))
	require.NoError(t, err)
	require.Len(t, result.Positions, 1)
	assert.Equal(t, models.AlarmPowerCut, result.Positions[0].GetString(models.KeyAlarm))
}

func TestDecode_WrongHeaderIsDesync(t *testing.T) {
	decoder := &Decoder{}
	resolver := newTestResolver()
	ch := &testChannel{}

	frame := buildFrame(msgHeartbeat, 1, nil)
	frame[0] = 0x55
	_, err := decoder.Decode(context.Background(), resolver, ch, frame)
	assert.ErrorIs(t, err, protocol.ErrStreamDesynchronized)
}

func TestDecodeHeartbeat_RequiresSession(t *testing.T) {
	decoder := &Decoder{}
	resolver := newTestResolver()
	ch := &testChannel{}

	_, err := decoder.Decode(context.Background(), resolver, ch, buildFrame(msgHeartbeat, 5, nil))
	assert.ErrorIs(t, err, session.ErrNoSession)

	login(t, decoder, resolver, ch)
	result, err := decoder.Decode(context.Background(), resolver, ch, buildFrame(msgHeartbeat, 5, nil))
	require.NoError(t, err)
	assert.NotNil(t, result.Response)
	assert.Empty(t, result.Positions)
}

func TestEncode_CustomCommand(t *testing.T) {
	encoder := &Encoder{}

	command := &models.Command{
		DeviceID:   9,
		Type:       models.CommandCustom,
		Attributes: map[string]interface{}{models.KeyData: "RESET#"},
	}
	frame, err := encoder.Encode(nil, command)
	require.NoError(t, err)
	assert.Equal(t, byte(msgCommand), frame[2])
	assert.Equal(t, []byte("RESET#"), frame[7:])
	assert.Equal(t, len(frame), int(protocol.ReadUint16(frame[3:5])))
}

func TestEncode_UnsupportedCommand(t *testing.T) {
	encoder := &Encoder{}

	_, err := encoder.Encode(nil, &models.Command{Type: models.CommandEngineStop})
	assert.ErrorIs(t, err, protocol.ErrCommandUnsupported)

	_, err = encoder.Encode(nil, &models.Command{Type: models.CommandCustom})
	assert.ErrorIs(t, err, protocol.ErrCommandUnsupported)
}
