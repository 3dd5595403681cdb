package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"fleettrack/internal/models"
)

// ErrDeviceUnknown 未注册设备（报文丢弃，连接保留，等待后续补录）
var ErrDeviceUnknown = errors.New("device not registered")

// ErrNoSession is returned when a frame arrives on a connection that
// has not identified itself yet and carries no unique id.
var ErrNoSession = errors.New("connection not identified")

// DeviceLookup 设备查询接口（由 repository.DeviceRepository 实现）
type DeviceLookup interface {
	GetByUniqueID(ctx context.Context, uniqueID string) (*models.Device, error)
}

// Registry 设备会话注册表（进程级共享，多连接并发访问）
// Sessions are indexed both by device id and by live channel. On
// connection close a session is not removed immediately: it is marked
// with an expiry timestamp and swept later, so a device reconnecting
// within the grace window reclaims its session and any pending
// per-device state.
type Registry struct {
	lookup DeviceLookup
	grace  time.Duration
	logger *zap.Logger

	mu        sync.RWMutex
	byDevice  map[int64]*DeviceSession
	byChannel map[Channel]*DeviceSession
	expiry    map[int64]time.Time

	// onOpen/onClose run outside the registry lock.
	onOpen  func(session *DeviceSession)
	onClose func(session *DeviceSession)
}

// NewRegistry 创建会话注册表
func NewRegistry(lookup DeviceLookup, grace time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		lookup:    lookup,
		grace:     grace,
		logger:    logger,
		byDevice:  make(map[int64]*DeviceSession),
		byChannel: make(map[Channel]*DeviceSession),
		expiry:    make(map[int64]time.Time),
	}
}

// OnSessionOpen registers a callback fired when a new session is allocated.
func (r *Registry) OnSessionOpen(fn func(session *DeviceSession)) { r.onOpen = fn }

// OnSessionClose registers a callback fired when an expired session is swept.
func (r *Registry) OnSessionClose(fn func(session *DeviceSession)) { r.onClose = fn }

// Resolve 解析设备会话
// First identified frame on a channel allocates (or reclaims) the
// session; later frames on the same channel resolve without unique ids.
// Resolving twice in quick succession returns the identical session.
func (r *Registry) Resolve(ctx context.Context, protocol string, ch Channel, uniqueIDs ...string) (*DeviceSession, error) {
	r.mu.RLock()
	existing := r.byChannel[ch]
	r.mu.RUnlock()
	if existing != nil {
		existing.Touch()
		return existing, nil
	}

	if len(uniqueIDs) == 0 {
		return nil, ErrNoSession
	}

	var device *models.Device
	var uniqueID string
	for _, id := range uniqueIDs {
		if id == "" {
			continue
		}
		found, err := r.lookup.GetByUniqueID(ctx, id)
		if err != nil {
			continue
		}
		if found != nil && !found.Disabled {
			device, uniqueID = found, id
			break
		}
	}
	if device == nil {
		r.logger.Warn("Unknown device",
			zap.String("protocol", protocol),
			zap.Strings("unique_ids", uniqueIDs),
		)
		return nil, ErrDeviceUnknown
	}

	r.mu.Lock()
	// Bind may race with another frame from the same connection.
	if existing := r.byChannel[ch]; existing != nil {
		r.mu.Unlock()
		existing.Touch()
		return existing, nil
	}

	session := r.byDevice[device.ID]
	created := false
	if session != nil {
		// Reconnect inside the grace window: reclaim the session and
		// detach it from the old channel if one is still bound.
		if old := session.Channel(); old != nil && old != ch {
			delete(r.byChannel, old)
		}
		delete(r.expiry, device.ID)
		session.bind(ch)
	} else {
		session = newDeviceSession(device.ID, uniqueID, protocol, ch)
		r.byDevice[device.ID] = session
		created = true
	}
	r.byChannel[ch] = session
	r.mu.Unlock()

	if created {
		r.logger.Info("Device session created",
			zap.Int64("device_id", device.ID),
			zap.String("protocol", protocol),
			zap.String("remote", session.RemoteAddr()),
		)
		if r.onOpen != nil {
			r.onOpen(session)
		}
	}
	return session, nil
}

// Session returns the live session for a device id, nil when absent.
func (r *Registry) Session(deviceID int64) *DeviceSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byDevice[deviceID]
}

// RemoveChannel 连接关闭时调用：解除通道绑定并安排宽限期清理
func (r *Registry) RemoveChannel(ch Channel) {
	r.mu.Lock()
	session := r.byChannel[ch]
	if session == nil {
		r.mu.Unlock()
		return
	}
	delete(r.byChannel, ch)
	// Only schedule expiry if the session has not already re-bound to a
	// newer channel.
	if session.Channel() == ch {
		session.bind(nil)
		r.expiry[session.DeviceID()] = time.Now().Add(r.grace)
	}
	r.mu.Unlock()
}

// Run 周期性清扫过期会话（避免在热路径上逐事件加锁清理）
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(time.Now())
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	var closed []*DeviceSession
	r.mu.Lock()
	for deviceID, deadline := range r.expiry {
		if now.Before(deadline) {
			continue
		}
		session := r.byDevice[deviceID]
		delete(r.expiry, deviceID)
		if session == nil {
			continue
		}
		if session.Channel() != nil {
			// Reconnected while the sweep entry was pending.
			continue
		}
		delete(r.byDevice, deviceID)
		closed = append(closed, session)
	}
	r.mu.Unlock()

	for _, session := range closed {
		r.logger.Info("Device session removed",
			zap.Int64("device_id", session.DeviceID()),
			zap.String("protocol", session.Protocol()),
		)
		if r.onClose != nil {
			r.onClose(session)
		}
	}
}
