package session

import (
	"sync"
	"time"
)

// Channel 传输层连接句柄（TCP 连接或 MQTT 下行主题的写端）
type Channel interface {
	Write(data []byte) error
	RemoteAddr() string
	Close() error
}

// DeviceSession 设备逻辑会话（跨重连保持，见 Registry）
// The attribute map lets codecs stash cross-frame state such as
// partially assembled multi-frame commands.
type DeviceSession struct {
	deviceID int64
	uniqueID string
	protocol string

	mu         sync.RWMutex
	channel    Channel
	remoteAddr string
	attributes map[string]interface{}
	lastFrame  time.Time
}

func newDeviceSession(deviceID int64, uniqueID, protocol string, ch Channel) *DeviceSession {
	s := &DeviceSession{
		deviceID:   deviceID,
		uniqueID:   uniqueID,
		protocol:   protocol,
		attributes: make(map[string]interface{}),
		lastFrame:  time.Now(),
	}
	s.bind(ch)
	return s
}

func (s *DeviceSession) bind(ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = ch
	if ch != nil {
		s.remoteAddr = ch.RemoteAddr()
	}
	s.lastFrame = time.Now()
}

// DeviceID returns the numeric device id.
func (s *DeviceSession) DeviceID() int64 { return s.deviceID }

// UniqueID returns the hardware identifier the device logged in with.
func (s *DeviceSession) UniqueID() string { return s.uniqueID }

// Protocol returns the protocol name the session was created under.
func (s *DeviceSession) Protocol() string { return s.protocol }

// Channel returns the currently bound transport channel, nil after close.
func (s *DeviceSession) Channel() Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channel
}

// RemoteAddr returns the last known remote address.
func (s *DeviceSession) RemoteAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteAddr
}

// Touch 更新最近一次报文时间
func (s *DeviceSession) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFrame = time.Now()
}

// LastFrame reports when the session last saw a frame.
func (s *DeviceSession) LastFrame() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFrame
}

// Set stores per-device transient state for codecs.
func (s *DeviceSession) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attributes[key] = value
}

// Get reads per-device transient state; second result is presence.
func (s *DeviceSession) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.attributes[key]
	return v, ok
}

// Delete removes per-device transient state.
func (s *DeviceSession) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attributes, key)
}
