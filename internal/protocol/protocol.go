// Package protocol defines the plug-in contract every device protocol
// implements: a frame decoder that splits the byte stream into frames,
// a decoder that turns frames into canonical records, and an optional
// encoder for outbound commands. Implementations register themselves
// into a Registry keyed by protocol name at startup.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"fleettrack/internal/models"
	"fleettrack/internal/session"
)

var (
	// ErrFrameIncomplete 数据不足，等待下一次读取（不是错误状态）
	ErrFrameIncomplete = errors.New("frame incomplete")
	// ErrFrameMalformed 单帧格式错误（丢弃该帧，连接保留）
	ErrFrameMalformed = errors.New("frame malformed")
	// ErrStreamDesynchronized 字节流失步（关闭连接）
	ErrStreamDesynchronized = errors.New("stream desynchronized")
	// ErrCommandUnsupported 协议不支持该指令
	ErrCommandUnsupported = errors.New("command unsupported")
)

// FrameDecoder 帧解码器
// Decode consumes the append-only buffer of everything received so far
// and returns one complete frame plus the residual bytes. It never
// blocks; ErrFrameIncomplete means wait for more data with the buffer
// retained. ErrStreamDesynchronized means the connection must close.
type FrameDecoder interface {
	Decode(buf []byte) (frame []byte, rest []byte, err error)
}

// SessionResolver is implemented by session.Registry.
type SessionResolver interface {
	Resolve(ctx context.Context, protocol string, ch session.Channel, uniqueIDs ...string) (*session.DeviceSession, error)
}

// DecodeResult carries everything a decoder produced from one frame.
// A keep-alive frame legitimately produces no records; a batched
// report produces several positions.
type DecodeResult struct {
	Positions []*models.Position
	Events    []*models.Event
	Response  []byte
}

// Decoder 协议解码器（帧 → 规范化记录）
type Decoder interface {
	Decode(ctx context.Context, resolver SessionResolver, ch session.Channel, frame []byte) (*DecodeResult, error)
}

// Encoder 协议编码器（指令 → 协议字节）
type Encoder interface {
	Encode(s *session.DeviceSession, command *models.Command) ([]byte, error)
}

// Protocol 一个受支持的设备协议族
// NewFrameDecoder is called once per connection so that framing state
// never leaks between connections.
type Protocol struct {
	Name              string
	NewFrameDecoder   func() FrameDecoder
	Decoder           Decoder
	Encoder           Encoder // nil when the protocol has no downlink
	SupportedCommands []string
}

// Registry 协议注册表（启动时注册，运行期只读）
type Registry struct {
	mu        sync.RWMutex
	protocols map[string]*Protocol
}

// NewProtocolRegistry 创建协议注册表
func NewProtocolRegistry() *Registry {
	return &Registry{protocols: make(map[string]*Protocol)}
}

// Register adds a protocol; a duplicate name is a configuration error.
func (r *Registry) Register(p *Protocol) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.protocols[p.Name]; exists {
		return fmt.Errorf("protocol already registered: %s", p.Name)
	}
	r.protocols[p.Name] = p
	return nil
}

// Get returns a protocol by name.
func (r *Registry) Get(name string) (*Protocol, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.protocols[name]
	if !ok {
		return nil, fmt.Errorf("unknown protocol: %s", name)
	}
	return p, nil
}

// Names returns the registered protocol names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.protocols))
	for name := range r.protocols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
