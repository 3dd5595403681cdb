// Package service wires the ingestion pipeline together.
package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fleettrack/internal/api"
	"fleettrack/internal/cache"
	"fleettrack/internal/config"
	"fleettrack/internal/forwarder"
	"fleettrack/internal/geocoder"
	"fleettrack/internal/handler"
	"fleettrack/internal/metrics"
	"fleettrack/internal/models"
	"fleettrack/internal/mqtt"
	"fleettrack/internal/notification"
	"fleettrack/internal/notificator"
	"fleettrack/internal/protocol"
	"fleettrack/internal/protocol/gt06"
	"fleettrack/internal/protocol/t800x"
	"fleettrack/internal/repository"
	"fleettrack/internal/server"
	"fleettrack/internal/session"
)

// TrackerService 车载终端接入服务（整合各层）
type TrackerService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger

	// 各层组件
	sessions  *session.Registry
	protocols *protocol.Registry
	pipeline  *server.Pipeline
	manager   *notification.Manager
	servers   []*server.TrackerServer
	consumer  *server.MQTTConsumer
	apiServer *api.Server
	sender    *server.CommandSender
}

// NewTrackerService 创建接入服务
func NewTrackerService(cfg *config.Config, logger *zap.Logger) (*TrackerService, error) {
	// 1. 连接数据库
	db, err := repository.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, err
	}

	// 2. 连接 Redis
	redisClient := cache.NewRedisClient(&cfg.Redis)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 创建 Repository 层
	deviceRepo := repository.NewDeviceRepository(db, logger)
	positionRepo := repository.NewPositionRepository(db, logger)
	eventRepo := repository.NewEventRepository(db, logger)
	notificationRepo := repository.NewNotificationRepository(db, logger)
	permissionRepo := repository.NewPermissionRepository(db, logger)
	geofenceRepo := repository.NewGeofenceRepository(db, logger)
	userRepo := repository.NewUserRepository(db, logger)

	// 4. 会话注册表
	sessions := session.NewRegistry(deviceRepo, cfg.Session.Grace, logger)

	// 5. 协议注册表
	protocols := protocol.NewProtocolRegistry()
	if err := protocols.Register(gt06.Protocol()); err != nil {
		return nil, err
	}
	if err := protocols.Register(t800x.Protocol()); err != nil {
		return nil, err
	}

	// 6. 事件处理链
	handlers := []handler.Handler{
		handler.NewIgnitionHandler(),
		handler.NewMotionHandler(),
		handler.NewGeofenceHandler(geofenceRepo, logger),
		handler.NewAlarmHandler(),
	}
	if cfg.Handler.SpeedLimitKnots > 0 {
		handlers = append(handlers, handler.NewOverspeedHandler(cfg.Handler.SpeedLimitKnots))
	}
	chain := handler.NewChain(logger, handlers...)

	// 7. MQTT（可选：接入网关 + 通知渠道）
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.NewClient(&cfg.MQTT, logger)
		if err != nil {
			return nil, err
		}
	}

	// 8. 通知渠道
	webNotificator := notificator.NewWeb(logger)
	channels := []notification.Notificator{
		notificator.NewWebhook(cfg.Notification.Timeout, logger),
		webNotificator,
	}
	if mqttClient != nil {
		channels = append(channels, notificator.NewMQTT(mqttClient, cfg.MQTT.QoS, logger))
	}
	registry := notification.NewRegistry(channels...)

	// 9. 地理编码与事件转发（均可选）
	var geo notification.Geocoder
	if cfg.Geocoder.Enabled {
		geo = geocoder.NewNominatim(cfg.Geocoder.URL, cfg.Geocoder.Timeout, logger)
	}
	var fwd notification.Forwarder
	if cfg.Forwarder.Enabled {
		fwd = forwarder.NewEventForwarder(redisClient, cfg.Forwarder.Stream, cfg.Forwarder.MaxLen, logger)
	}

	// 10. 通知派发引擎
	manager := notification.NewManager(
		eventRepo,
		permissionRepo,
		notificationRepo,
		registry,
		geo,
		fwd,
		cfg.Notification.Workers,
		cfg.Notification.Timeout,
		logger,
	)

	// 11. 指标
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(prometheus.NewGoCollector())
	m := metrics.New(promRegistry)
	manager.OnSendResult(func(channel string, ok bool) {
		result := "ok"
		if !ok {
			result = "error"
		}
		m.NotificationSends.WithLabelValues(channel, result).Inc()
	})

	// 12. 处理链与接入服务器
	positionCache := cache.NewPositionCache(redisClient, logger)
	pipeline := server.NewPipeline(sessions, chain, manager, positionRepo, positionCache, m, logger)

	// 上线/离线事件由会话生命周期驱动
	sessions.OnSessionOpen(func(s *session.DeviceSession) {
		event := models.NewEvent(models.TypeDeviceOnline, s.DeviceID())
		manager.Dispatch(context.Background(), event, nil)
	})
	sessions.OnSessionClose(func(s *session.DeviceSession) {
		event := models.NewEvent(models.TypeDeviceOffline, s.DeviceID())
		manager.Dispatch(context.Background(), event, nil)
	})

	var servers []*server.TrackerServer
	for name, port := range cfg.Server.ProtocolPorts {
		proto, err := protocols.Get(name)
		if err != nil {
			return nil, fmt.Errorf("configured protocol %q is not registered: %w", name, err)
		}
		servers = append(servers, server.NewTrackerServer(
			proto,
			fmt.Sprintf(":%d", port),
			pipeline,
			sessions,
			cfg.Server.ReadTimeout,
			cfg.Server.WriteTimeout,
			m,
			logger,
		))
	}

	var consumer *server.MQTTConsumer
	if mqttClient != nil {
		consumer = server.NewMQTTConsumer(mqttClient, &cfg.MQTT, protocols, pipeline, logger)
	}

	// 13. 管理接口
	apiServer := api.NewServer(cfg.API.Addr, userRepo, registry, webNotificator, promRegistry, logger)

	return &TrackerService{
		config:      cfg,
		db:          db,
		redisClient: redisClient,
		mqttClient:  mqttClient,
		logger:      logger,
		sessions:    sessions,
		protocols:   protocols,
		pipeline:    pipeline,
		manager:     manager,
		servers:     servers,
		consumer:    consumer,
		apiServer:   apiServer,
		sender:      server.NewCommandSender(sessions, protocols, logger),
	}, nil
}

// CommandSender 下行指令发送器
func (s *TrackerService) CommandSender() *server.CommandSender {
	return s.sender
}

// Start 启动服务，阻塞直到 ctx 取消或某个组件失败
func (s *TrackerService) Start(ctx context.Context) error {
	s.logger.Info("Starting tracker service",
		zap.Strings("protocols", s.protocols.Names()),
	)

	group, groupCtx := errgroup.WithContext(ctx)

	for _, srv := range s.servers {
		srv := srv
		group.Go(func() error {
			return srv.Run(groupCtx)
		})
	}

	group.Go(func() error {
		return s.apiServer.Run(groupCtx)
	})

	// 会话过期扫描
	group.Go(func() error {
		s.sessions.Run(groupCtx, s.config.Session.SweepInterval)
		return nil
	})

	if s.consumer != nil {
		if err := s.consumer.Start(groupCtx); err != nil {
			return err
		}
	}

	return group.Wait()
}

// Stop 释放资源
func (s *TrackerService) Stop() {
	// Let in-flight notification sends finish before dropping clients.
	s.manager.Wait()

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.redisClient != nil {
		s.redisClient.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	s.logger.Info("Tracker service stopped")
}
