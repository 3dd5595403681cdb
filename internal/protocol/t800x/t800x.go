// Package t800x implements the T800X tracker protocol: 0x23 0x23
// framed binary messages whose length field covers the whole frame.
// Location messages may batch several records; the protocol supports
// free-form outbound commands, which maps to the "custom" command type.
package t800x

import (
	"context"
	"time"

	"fleettrack/internal/models"
	"fleettrack/internal/protocol"
	"fleettrack/internal/session"
)

const ProtocolName = "t800x"

const (
	headerByte = 0x23

	msgLogin     = 0x01
	msgLocation  = 0x02
	msgHeartbeat = 0x03
	msgAlarm     = 0x04
	msgCommand   = 0x81

	headerLength = 7
	recordLength = 21
)

var alarmTypes = map[byte]string{
	0x01: models.AlarmSOS,
	0x02: models.AlarmLowBattery,
	0x03: models.AlarmPowerCut,
	0x04: models.AlarmVibration,
	0x05: models.AlarmOverspeed,
}

// Protocol 构建 t800x 协议描述
func Protocol() *protocol.Protocol {
	return &protocol.Protocol{
		Name: ProtocolName,
		NewFrameDecoder: func() protocol.FrameDecoder {
			return &protocol.LengthFieldFrameDecoder{
				MaxLength:   1024,
				FieldOffset: 3,
				FieldSize:   2,
				Adjustment:  -5,
			}
		},
		Decoder:           &Decoder{},
		Encoder:           &Encoder{},
		SupportedCommands: []string{models.CommandCustom},
	}
}

// Decoder t800x 协议解码器
type Decoder struct{}

// Decode implements protocol.Decoder.
func (d *Decoder) Decode(ctx context.Context, resolver protocol.SessionResolver, ch session.Channel, frame []byte) (*protocol.DecodeResult, error) {
	if len(frame) < headerLength {
		return nil, protocol.ErrFrameMalformed
	}
	// The length framing never validates the header, so a wrong header
	// means the stream itself is misaligned, not just this frame.
	if frame[0] != headerByte || frame[1] != headerByte {
		return nil, protocol.ErrStreamDesynchronized
	}
	msgType := frame[2]
	serial := protocol.ReadUint16(frame[5:7])
	payload := frame[headerLength:]

	switch msgType {
	case msgLogin:
		return d.decodeLogin(ctx, resolver, ch, payload, serial)
	case msgHeartbeat:
		if _, err := resolver.Resolve(ctx, ProtocolName, ch); err != nil {
			return nil, err
		}
		return &protocol.DecodeResult{Response: response(msgHeartbeat, serial, nil)}, nil
	case msgLocation:
		return d.decodeLocation(ctx, resolver, ch, payload)
	case msgAlarm:
		return d.decodeAlarm(ctx, resolver, ch, payload)
	default:
		return &protocol.DecodeResult{}, nil
	}
}

func (d *Decoder) decodeLogin(ctx context.Context, resolver protocol.SessionResolver, ch session.Channel, payload []byte, serial uint16) (*protocol.DecodeResult, error) {
	if len(payload) < 8 {
		return nil, protocol.ErrFrameMalformed
	}
	imei := decodeBCD(payload[:8])
	if len(imei) == 16 {
		imei = imei[1:]
	}
	if _, err := resolver.Resolve(ctx, ProtocolName, ch, imei); err != nil {
		return nil, err
	}
	// Login ack echoes the identifier back to the terminal.
	return &protocol.DecodeResult{Response: response(msgLogin, serial, payload[:8])}, nil
}

func (d *Decoder) decodeLocation(ctx context.Context, resolver protocol.SessionResolver, ch session.Channel, payload []byte) (*protocol.DecodeResult, error) {
	s, err := resolver.Resolve(ctx, ProtocolName, ch)
	if err != nil {
		return nil, err
	}
	if len(payload) < 1 {
		return nil, protocol.ErrFrameMalformed
	}
	count := int(payload[0])
	records := payload[1:]
	if count == 0 || len(records) < count*recordLength {
		return nil, protocol.ErrFrameMalformed
	}

	positions := make([]*models.Position, 0, count)
	for i := 0; i < count; i++ {
		record := records[i*recordLength : (i+1)*recordLength]
		position, err := decodeRecord(s.DeviceID(), record)
		if err != nil {
			return nil, err
		}
		positions = append(positions, position)
	}
	return &protocol.DecodeResult{Positions: positions}, nil
}

func (d *Decoder) decodeAlarm(ctx context.Context, resolver protocol.SessionResolver, ch session.Channel, payload []byte) (*protocol.DecodeResult, error) {
	s, err := resolver.Resolve(ctx, ProtocolName, ch)
	if err != nil {
		return nil, err
	}
	if len(payload) < 1+recordLength {
		return nil, protocol.ErrFrameMalformed
	}
	position, err := decodeRecord(s.DeviceID(), payload[1:1+recordLength])
	if err != nil {
		return nil, err
	}
	if alarm, ok := alarmTypes[payload[0]]; ok {
		position.Set(models.KeyAlarm, alarm)
	}
	return &protocol.DecodeResult{Positions: []*models.Position{position}}, nil
}

// decodeRecord parses one 21-byte location record: time(6), lat(4),
// lon(4), speed(2, 0.1 kn), course(2), altitude(2), flags(1).
func decodeRecord(deviceID int64, record []byte) (*models.Position, error) {
	year, month, day := int(record[0]), int(record[1]), int(record[2])
	hour, minute, second := int(record[3]), int(record[4]), int(record[5])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return nil, protocol.ErrFrameMalformed
	}

	position := &models.Position{
		DeviceID:   deviceID,
		Protocol:   ProtocolName,
		FixTime:    time.Date(2000+year, time.Month(month), day, hour, minute, second, 0, time.UTC),
		ServerTime: time.Now(),
		Latitude:   float64(int32(protocol.ReadUint32(record[6:10]))) / 1e6,
		Longitude:  float64(int32(protocol.ReadUint32(record[10:14]))) / 1e6,
		Speed:      float64(protocol.ReadUint16(record[14:16])) / 10,
		Course:     float64(protocol.ReadUint16(record[16:18])),
		Altitude:   float64(int16(protocol.ReadUint16(record[18:20]))),
	}
	flags := record[20]
	position.Valid = flags&0x01 != 0
	position.Set(models.KeyIgnition, flags&0x02 != 0)
	return position, nil
}

// Encoder t800x 协议编码器（仅支持自定义指令透传）
type Encoder struct{}

// Encode implements protocol.Encoder.
func (e *Encoder) Encode(s *session.DeviceSession, command *models.Command) ([]byte, error) {
	switch command.Type {
	case models.CommandCustom:
		data := command.GetString(models.KeyData)
		if data == "" {
			return nil, protocol.ErrCommandUnsupported
		}
		return response(msgCommand, 1, []byte(data)), nil
	default:
		return nil, protocol.ErrCommandUnsupported
	}
}

// response assembles a downlink frame; the length field counts the
// whole frame, header included.
func response(msgType byte, serial uint16, payload []byte) []byte {
	total := headerLength + len(payload)
	frame := make([]byte, 0, total)
	frame = append(frame,
		headerByte, headerByte,
		msgType,
		byte(total>>8), byte(total),
		byte(serial>>8), byte(serial),
	)
	return append(frame, payload...)
}

func decodeBCD(data []byte) string {
	digits := make([]byte, 0, len(data)*2)
	for _, b := range data {
		digits = append(digits, '0'+(b>>4), '0'+(b&0x0F))
	}
	return string(digits)
}
