package notification

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"fleettrack/internal/models"
)

// “alarms” 通知属性：报警白名单 CSV，如 "sos,powerCut"
const keyAlarms = "alarms"

// EventStore 事件持久化接口（由 repository.EventRepository 实现）
type EventStore interface {
	Insert(ctx context.Context, event *models.Event) error
}

// PermissionSource 设备可见用户查询接口
type PermissionSource interface {
	UsersOfDevice(ctx context.Context, deviceID int64) ([]*models.User, error)
}

// NotificationSource 通知配置查询接口
type NotificationSource interface {
	UserNotifications(ctx context.Context, userID int64) ([]*models.Notification, error)
	DeviceNotificationIDs(ctx context.Context, deviceID int64) (map[int64]bool, error)
	GetCalendar(ctx context.Context, id int64) (*models.Calendar, error)
}

// Geocoder 反向地理编码接口
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// Forwarder 事件转发接口
type Forwarder interface {
	Forward(ctx context.Context, event *models.Event, position *models.Position, userIDs []int64) error
}

// Manager 通知派发引擎
// Dispatch 阻塞部分只做过滤和持久化；发送在有界的 worker 池上异步执行，
// 慢渠道不会反压接入侧。
type Manager struct {
	events        EventStore
	permissions   PermissionSource
	notifications NotificationSource
	registry      *Registry
	geocoder      Geocoder // nil 表示禁用
	forwarder     Forwarder
	sendTimeout   time.Duration
	logger        *zap.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	onResult func(channel string, ok bool) // optional send-result hook
}

// OnSendResult 注册发送结果回调（指标上报用）
func (m *Manager) OnSendResult(fn func(channel string, ok bool)) {
	m.onResult = fn
}

// NewManager 创建通知派发引擎
func NewManager(
	events EventStore,
	permissions PermissionSource,
	notifications NotificationSource,
	registry *Registry,
	geocoder Geocoder,
	forwarder Forwarder,
	workers int,
	sendTimeout time.Duration,
	logger *zap.Logger,
) *Manager {
	if workers <= 0 {
		workers = 8
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &Manager{
		events:        events,
		permissions:   permissions,
		notifications: notifications,
		registry:      registry,
		geocoder:      geocoder,
		forwarder:     forwarder,
		sendTimeout:   sendTimeout,
		logger:        logger,
		sem:           make(chan struct{}, workers),
	}
}

// Dispatch 派发事件
// 持久化失败记录日志后继续用内存事件派发；每个 (user, channel) 的发送相互隔离。
func (m *Manager) Dispatch(ctx context.Context, event *models.Event, position *models.Position) {
	if err := m.events.Insert(ctx, event); err != nil {
		m.logger.Error("Failed to persist event, dispatching anyway",
			zap.String("type", event.Type),
			zap.Int64("device_id", event.DeviceID),
			zap.Error(err),
		)
	}

	users, err := m.permissions.UsersOfDevice(ctx, event.DeviceID)
	if err != nil {
		m.logger.Error("Failed to resolve event recipients",
			zap.Int64("device_id", event.DeviceID),
			zap.Error(err),
		)
		return
	}
	if len(users) == 0 {
		return
	}

	deviceLinks, err := m.notifications.DeviceNotificationIDs(ctx, event.DeviceID)
	if err != nil {
		m.logger.Error("Failed to load device notification links",
			zap.Int64("device_id", event.DeviceID),
			zap.Error(err),
		)
		return
	}

	// Forwarding targets every permitted user, whether or not any of
	// their notification rules matched.
	recipients := make([]int64, 0, len(users))
	for _, user := range users {
		recipients = append(recipients, user.ID)
	}

	geocoded := false
	for _, user := range users {
		channels := m.effectiveChannels(ctx, user, event, deviceLinks)
		if len(channels) == 0 {
			continue
		}

		// Resolve the address once per event, only when someone will
		// actually hear about it.
		if !geocoded && m.geocoder != nil && position != nil && position.Address == "" {
			geocoded = true
			if address, err := m.geocoder.Reverse(ctx, position.Latitude, position.Longitude); err != nil {
				m.logger.Warn("Reverse geocoding failed", zap.Error(err))
			} else {
				position.Address = address
			}
		}

		for _, channel := range channels {
			notificator, err := m.registry.Get(channel)
			if err != nil {
				m.logger.Warn("Skipping unknown notification channel",
					zap.String("channel", channel),
					zap.Int64("user_id", user.ID),
				)
				continue
			}
			m.send(notificator, user, event, position)
		}
	}

	if m.forwarder != nil {
		if err := m.forwarder.Forward(ctx, event, position, recipients); err != nil {
			m.logger.Warn("Event forwarding failed",
				zap.String("type", event.Type),
				zap.Error(err),
			)
		}
	}
}

// effectiveChannels 计算用户对该事件生效的通知渠道并集
func (m *Manager) effectiveChannels(ctx context.Context, user *models.User, event *models.Event, deviceLinks map[int64]bool) []string {
	notifications, err := m.notifications.UserNotifications(ctx, user.ID)
	if err != nil {
		m.logger.Error("Failed to load user notifications",
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
		return nil
	}

	channelSet := make(map[string]bool)
	var channels []string
	for _, notification := range notifications {
		if !notification.Always && !deviceLinks[notification.ID] {
			continue
		}
		if notification.Type != event.Type {
			continue
		}
		if !m.calendarActive(ctx, notification, event.EventTime) {
			continue
		}
		if event.Type == models.TypeAlarm && !alarmMatches(notification, event) {
			continue
		}
		for _, channel := range notification.NotificatorTypes() {
			if !channelSet[channel] {
				channelSet[channel] = true
				channels = append(channels, channel)
			}
		}
	}
	return channels
}

// calendarActive 日历为空表示不限时；查不到日历按不生效处理
func (m *Manager) calendarActive(ctx context.Context, notification *models.Notification, at time.Time) bool {
	if notification.CalendarID == 0 {
		return true
	}
	calendar, err := m.notifications.GetCalendar(ctx, notification.CalendarID)
	if err != nil {
		m.logger.Error("Failed to load notification calendar",
			zap.Int64("calendar_id", notification.CalendarID),
			zap.Error(err),
		)
		return false
	}
	if calendar == nil {
		return false
	}
	return calendar.CheckMoment(at)
}

// alarmMatches 报警白名单过滤：未配置白名单的报警通知不匹配任何报警
func alarmMatches(notification *models.Notification, event *models.Event) bool {
	whitelist := notification.GetString(keyAlarms)
	if whitelist == "" {
		return false
	}
	alarm := event.GetString(models.KeyAlarm)
	if alarm == "" {
		return false
	}
	for _, entry := range strings.Split(whitelist, ",") {
		if strings.TrimSpace(entry) == alarm {
			return true
		}
	}
	return false
}

// send 在有界 worker 池上异步发送，单渠道失败只记录日志
// The semaphore is taken on the worker goroutine so saturated workers
// queue sends instead of stalling the dispatching (ingestion) path.
func (m *Manager) send(notificator Notificator, user *models.User, event *models.Event, position *models.Position) {
	m.wg.Add(1)
	go func() {
		m.sem <- struct{}{}
		defer func() {
			<-m.sem
			m.wg.Done()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
		defer cancel()

		err := notificator.Send(ctx, user, event, position)
		if m.onResult != nil {
			m.onResult(notificator.Type(), err == nil)
		}
		if err != nil {
			m.logger.Warn("Notification delivery failed",
				zap.String("channel", notificator.Type()),
				zap.Int64("user_id", user.ID),
				zap.String("type", event.Type),
				zap.Error(err),
			)
			return
		}
		m.logger.Debug("Notification delivered",
			zap.String("channel", notificator.Type()),
			zap.Int64("user_id", user.ID),
			zap.String("type", event.Type),
		)
	}()
}

// Wait 等待所有在途发送结束（停机和测试用）
func (m *Manager) Wait() {
	m.wg.Wait()
}
