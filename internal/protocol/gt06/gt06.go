// Package gt06 implements the GT06 tracker protocol: 0x78 0x78 framed
// binary messages with an ITU CRC-16 checksum. Devices identify with a
// BCD-coded IMEI in the login message and expect every login and
// heartbeat to be acknowledged with the echoed serial number.
package gt06

import (
	"context"
	"fmt"
	"time"

	"fleettrack/internal/models"
	"fleettrack/internal/protocol"
	"fleettrack/internal/session"
)

const ProtocolName = "gt06"

const (
	startByte = 0x78
	stopByte1 = 0x0D
	stopByte2 = 0x0A

	msgLogin     = 0x01
	msgLocation  = 0x12
	msgHeartbeat = 0x13
	msgAlarm     = 0x16
)

// Alarm byte values from the GT06 terminal manual.
var alarmTypes = map[byte]string{
	0x01: models.AlarmSOS,
	0x02: models.AlarmPowerCut,
	0x03: models.AlarmVibration,
	0x04: models.AlarmGeofenceIn,
	0x05: models.AlarmGeofenceOut,
	0x06: models.AlarmLowBattery,
	0x07: models.AlarmOverspeed,
}

const knotsPerKmh = 0.539957

// Protocol 构建 gt06 协议描述
func Protocol() *protocol.Protocol {
	return &protocol.Protocol{
		Name:            ProtocolName,
		NewFrameDecoder: func() protocol.FrameDecoder { return &FrameDecoder{} },
		Decoder:         &Decoder{},
	}
}

// FrameDecoder gt06 帧解码器
// Frame layout: 0x78 0x78, length(1), content(length), 0x0D 0x0A where
// length counts message type through checksum.
type FrameDecoder struct{}

// Decode implements protocol.FrameDecoder.
func (d *FrameDecoder) Decode(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 3 {
		return nil, buf, protocol.ErrFrameIncomplete
	}
	if buf[0] != startByte || buf[1] != startByte {
		return nil, buf, protocol.ErrStreamDesynchronized
	}
	total := int(buf[2]) + 5
	if len(buf) < total {
		return nil, buf, protocol.ErrFrameIncomplete
	}
	if buf[total-2] != stopByte1 || buf[total-1] != stopByte2 {
		return nil, buf, protocol.ErrStreamDesynchronized
	}
	return buf[:total], buf[total:], nil
}

// Decoder gt06 协议解码器
type Decoder struct{}

// Decode implements protocol.Decoder.
func (d *Decoder) Decode(ctx context.Context, resolver protocol.SessionResolver, ch session.Channel, frame []byte) (*protocol.DecodeResult, error) {
	// content = type(1) info(n) serial(2) crc(2)
	content := frame[2 : len(frame)-2]
	if len(content) < 6 {
		return nil, protocol.ErrFrameMalformed
	}
	if crc16X25(content[:len(content)-2]) != protocol.ReadUint16(content[len(content)-2:]) {
		return nil, protocol.ErrFrameMalformed
	}

	msgType := content[1]
	info := content[2 : len(content)-4]
	serial := protocol.ReadUint16(content[len(content)-4 : len(content)-2])

	switch msgType {
	case msgLogin:
		return d.decodeLogin(ctx, resolver, ch, info, serial)
	case msgHeartbeat:
		return d.decodeHeartbeat(ctx, resolver, ch, info, serial)
	case msgLocation, msgAlarm:
		return d.decodeLocation(ctx, resolver, ch, msgType, info)
	default:
		// Unhandled message types are not an error; ack and move on.
		return &protocol.DecodeResult{Response: ack(msgType, serial)}, nil
	}
}

func (d *Decoder) decodeLogin(ctx context.Context, resolver protocol.SessionResolver, ch session.Channel, info []byte, serial uint16) (*protocol.DecodeResult, error) {
	if len(info) < 8 {
		return nil, protocol.ErrFrameMalformed
	}
	imei := decodeBCD(info[:8])
	if len(imei) == 16 {
		imei = imei[1:] // leading pad nibble
	}
	if _, err := resolver.Resolve(ctx, ProtocolName, ch, imei); err != nil {
		// No ack for unknown devices; the terminal will retry.
		return nil, err
	}
	return &protocol.DecodeResult{Response: ack(msgLogin, serial)}, nil
}

func (d *Decoder) decodeHeartbeat(ctx context.Context, resolver protocol.SessionResolver, ch session.Channel, info []byte, serial uint16) (*protocol.DecodeResult, error) {
	s, err := resolver.Resolve(ctx, ProtocolName, ch)
	if err != nil {
		return nil, err
	}
	if len(info) < 3 {
		return nil, protocol.ErrFrameMalformed
	}

	// Status-only sample: no fix, carries terminal state for the
	// ignition and battery handlers.
	position := &models.Position{
		DeviceID:   s.DeviceID(),
		Protocol:   ProtocolName,
		FixTime:    time.Now(),
		ServerTime: time.Now(),
		Valid:      false,
	}
	terminalInfo := info[0]
	position.Set(models.KeyIgnition, terminalInfo&0x02 != 0)
	position.Set(models.KeyBattery, int(info[1]))
	position.Set(models.KeyRSSI, int(info[2]))

	return &protocol.DecodeResult{
		Positions: []*models.Position{position},
		Response:  ack(msgHeartbeat, serial),
	}, nil
}

func (d *Decoder) decodeLocation(ctx context.Context, resolver protocol.SessionResolver, ch session.Channel, msgType byte, info []byte) (*protocol.DecodeResult, error) {
	s, err := resolver.Resolve(ctx, ProtocolName, ch)
	if err != nil {
		return nil, err
	}
	if len(info) < 18 {
		return nil, protocol.ErrFrameMalformed
	}

	fixTime, err := decodeTime(info[:6])
	if err != nil {
		return nil, protocol.ErrFrameMalformed
	}

	position := &models.Position{
		DeviceID:   s.DeviceID(),
		Protocol:   ProtocolName,
		FixTime:    fixTime,
		ServerTime: time.Now(),
	}
	position.Set(models.KeySatellites, int(info[6]&0x0F))

	latitude := float64(protocol.ReadUint32(info[7:11])) / 1800000
	longitude := float64(protocol.ReadUint32(info[11:15])) / 1800000
	position.Speed = float64(info[15]) * knotsPerKmh

	flags := protocol.ReadUint16(info[16:18])
	position.Valid = flags&0x1000 != 0
	position.Course = float64(flags & 0x03FF)
	if flags&0x0400 == 0 {
		latitude = -latitude
	}
	if flags&0x0800 != 0 {
		longitude = -longitude
	}
	position.Latitude = latitude
	position.Longitude = longitude

	if msgType == msgAlarm {
		// Skip the 9-byte LBS block, then terminal info, voltage, gsm,
		// alarm, language.
		if len(info) >= 18+9+4 {
			extra := info[18+9:]
			position.Set(models.KeyIgnition, extra[0]&0x02 != 0)
			position.Set(models.KeyBattery, int(extra[1]))
			position.Set(models.KeyRSSI, int(extra[2]))
			if alarm, ok := alarmTypes[extra[3]]; ok {
				position.Set(models.KeyAlarm, alarm)
			}
		}
	}

	return &protocol.DecodeResult{Positions: []*models.Position{position}}, nil
}

// ack builds the standard response frame echoing type and serial.
func ack(msgType byte, serial uint16) []byte {
	frame := []byte{
		startByte, startByte,
		0x05, msgType,
		byte(serial >> 8), byte(serial),
		0x00, 0x00, // checksum placeholder
		stopByte1, stopByte2,
	}
	crc := crc16X25(frame[2:6])
	frame[6] = byte(crc >> 8)
	frame[7] = byte(crc)
	return frame
}

// decodeBCD expands packed BCD digits into their decimal string.
func decodeBCD(data []byte) string {
	digits := make([]byte, 0, len(data)*2)
	for _, b := range data {
		digits = append(digits, '0'+(b>>4), '0'+(b&0x0F))
	}
	return string(digits)
}

func decodeTime(data []byte) (time.Time, error) {
	year, month, day := int(data[0]), int(data[1]), int(data[2])
	hour, minute, second := int(data[3]), int(data[4]), int(data[5])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, fmt.Errorf("invalid timestamp")
	}
	return time.Date(2000+year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
}

// crc16X25 is the ITU CRC-16 (X.25 variant) the GT06 family uses.
func crc16X25(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return ^crc
}
