package protocol

import (
	"bytes"
	"encoding/binary"
)

// LengthFieldFrameDecoder 长度前缀帧解码器
// The frame length is read as a big-endian unsigned integer of
// FieldSize bytes at FieldOffset; the total frame length is
// FieldOffset + FieldSize + value + Adjustment. A negative Adjustment
// covers protocols whose length field already counts the header.
type LengthFieldFrameDecoder struct {
	MaxLength   int
	FieldOffset int
	FieldSize   int
	Adjustment  int
}

// Decode implements FrameDecoder.
func (d *LengthFieldFrameDecoder) Decode(buf []byte) ([]byte, []byte, error) {
	if len(buf) < d.FieldOffset+d.FieldSize {
		return nil, buf, ErrFrameIncomplete
	}

	var value int
	for i := 0; i < d.FieldSize; i++ {
		value = value<<8 | int(buf[d.FieldOffset+i])
	}

	total := d.FieldOffset + d.FieldSize + value + d.Adjustment
	if total <= 0 || total > d.MaxLength {
		return nil, buf, ErrStreamDesynchronized
	}
	if len(buf) < total {
		return nil, buf, ErrFrameIncomplete
	}
	return buf[:total], buf[total:], nil
}

// DelimiterFrameDecoder 分隔符结尾帧解码器（分隔符不包含在帧内）
type DelimiterFrameDecoder struct {
	MaxLength int
	Delimiter []byte
}

// Decode implements FrameDecoder.
func (d *DelimiterFrameDecoder) Decode(buf []byte) ([]byte, []byte, error) {
	index := bytes.Index(buf, d.Delimiter)
	if index < 0 {
		if len(buf) > d.MaxLength {
			return nil, buf, ErrStreamDesynchronized
		}
		return nil, buf, ErrFrameIncomplete
	}
	return buf[:index], buf[index+len(d.Delimiter):], nil
}

// FixedLengthFrameDecoder 定长帧解码器
type FixedLengthFrameDecoder struct {
	Length int
}

// Decode implements FrameDecoder.
func (d *FixedLengthFrameDecoder) Decode(buf []byte) ([]byte, []byte, error) {
	if len(buf) < d.Length {
		return nil, buf, ErrFrameIncomplete
	}
	return buf[:d.Length], buf[d.Length:], nil
}

// ReadUint16 big-endian helper shared by binary codecs.
func ReadUint16(buf []byte) uint16 {
	return binary.BigEndian.Uint16(buf)
}

// ReadUint32 big-endian helper shared by binary codecs.
func ReadUint32(buf []byte) uint32 {
	return binary.BigEndian.Uint32(buf)
}
