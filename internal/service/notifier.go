package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Cloudtempmonitor/templogger/internal/config"
	"github.com/Cloudtempmonitor/templogger/internal/consumer"
	"github.com/Cloudtempmonitor/templogger/internal/detector"
	"github.com/Cloudtempmonitor/templogger/internal/dispatch"
	"github.com/Cloudtempmonitor/templogger/internal/idempotency"
	"github.com/Cloudtempmonitor/templogger/internal/metrics"
	"github.com/Cloudtempmonitor/templogger/internal/presence"
	"github.com/Cloudtempmonitor/templogger/internal/recipient"
	"github.com/Cloudtempmonitor/templogger/internal/repository"
	"github.com/Cloudtempmonitor/templogger/internal/timezone"

	"github.com/Cloudtempmonitor/templogger/common/database"
	mqttcommon "github.com/Cloudtempmonitor/templogger/common/mqtt"
	rediscommon "github.com/Cloudtempmonitor/templogger/common/redis"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// changeConsumer 变更事件消费者（Redis Streams 或 MQTT）
type changeConsumer interface {
	Start(ctx context.Context) error
}

// NotifierService 告警通知服务（整合各层）
type NotifierService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
	logger      *zap.Logger

	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	detector  *detector.Detector
	recovery  *presence.Recovery
	sweeper   *presence.Sweeper
	scheduler *presence.Scheduler
	router    *consumer.Router
	consumer  changeConsumer
}

// NewNotifierService 创建通知服务：建立连接并组装各层组件
func NewNotifierService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*NotifierService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	// 2. 连接 Redis（Streams 触发源和幂等保护都需要）
	var redisClient *redis.Client
	if cfg.Trigger.Source == config.TriggerSourceRedis || cfg.Idempotency.Enabled {
		redisClient = rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(ctx, redisClient); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
	}

	// 3. 连接 MQTT
	var mqttClient *mqttcommon.Client
	if cfg.Trigger.Source == config.TriggerSourceMQTT {
		mqttClient, err = mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			db.Close()
			if redisClient != nil {
				redisClient.Close()
			}
			return nil, err
		}
	}

	return newNotifierService(cfg, db, redisClient, mqttClient, logger)
}

// newNotifierService 在已建立的连接上组装组件
func newNotifierService(cfg *config.Config, db *sql.DB, redisClient *redis.Client, mqttClient *mqttcommon.Client, logger *zap.Logger) (*NotifierService, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Repository 层
	deviceRepo := repository.NewDeviceRepository(db, logger)
	unitRepo := repository.NewUnitRepository(db, logger)
	userRepo := repository.NewUserRepository(db, logger)
	alarmEventsRepo := repository.NewAlarmEventsRepository(db, logger)

	// 解析与分发
	recipients := recipient.NewResolver(userRepo, logger)
	timezones := timezone.NewResolver(cfg.Notify.DefaultTimezone, logger)
	pushDispatcher := dispatch.NewPushDispatcher(dispatch.NewHTTPPushSender(&cfg.Push, logger), logger)
	emailDispatcher := dispatch.NewEmailDispatcher(dispatch.NewSMTPMailer(cfg.SMTP, logger), logger)

	var guard idempotency.Guard = idempotency.NoopGuard{}
	if cfg.Idempotency.Enabled {
		if redisClient == nil {
			return nil, fmt.Errorf("idempotency guard requires redis")
		}
		guard = idempotency.NewRedisGuard(redisClient, cfg.Idempotency.KeyPrefix, cfg.Idempotency.TTL)
	}

	det := detector.New(detector.Dependencies{
		Devices:    deviceRepo,
		Units:      unitRepo,
		Events:     alarmEventsRepo,
		Recipients: recipients,
		Timezones:  timezones,
		Push:       pushDispatcher,
		Email:      emailDispatcher,
		Guard:      guard,
		Metrics:    m,
		LinkPath:   cfg.Notify.DeviceLinkPath,
	}, logger)

	s := &NotifierService{
		config:      cfg,
		db:          db,
		redisClient: redisClient,
		mqttClient:  mqttClient,
		logger:      logger,
		registry:    registry,
		metrics:     m,
		detector:    det,
	}

	// 在线/离线对账
	var deviceHandler consumer.DeviceHandler
	if cfg.Presence.Enabled {
		s.recovery = presence.NewRecovery(deviceRepo, recipients, pushDispatcher, m, cfg.Notify.DeviceLinkPath, logger)
		s.sweeper = presence.NewSweeper(deviceRepo, cfg.Presence.OfflineThreshold, recipients, pushDispatcher, m, cfg.Notify.DeviceLinkPath, logger)
		scheduler, err := presence.NewScheduler(cfg.Presence.SweepSpec, s.sweeper, logger)
		if err != nil {
			return nil, err
		}
		s.scheduler = scheduler
		deviceHandler = s.recovery
	}

	s.router = consumer.NewRouter(det, deviceHandler, m, logger)

	switch cfg.Trigger.Source {
	case config.TriggerSourceMQTT:
		if mqttClient == nil {
			return nil, fmt.Errorf("mqtt trigger source requires an mqtt client")
		}
		s.consumer = consumer.NewMQTTConsumer(cfg, mqttClient, s.router, logger)
	default:
		if redisClient == nil {
			return nil, fmt.Errorf("redis trigger source requires a redis client")
		}
		s.consumer = consumer.NewStreamConsumer(cfg, redisClient, s.router, logger)
	}

	return s, nil
}

// Start 启动服务，阻塞直到 ctx 结束或某个组件出错
func (s *NotifierService) Start(ctx context.Context) error {
	s.logger.Info("Starting notifier service",
		zap.String("trigger_source", s.config.Trigger.Source),
		zap.Bool("presence_enabled", s.config.Presence.Enabled),
		zap.Bool("idempotency_enabled", s.config.Idempotency.Enabled),
		zap.Duration("offline_threshold", s.config.Presence.OfflineThreshold),
	)

	g, gctx := errgroup.WithContext(ctx)

	if s.scheduler != nil {
		s.scheduler.Start(gctx)
		defer s.scheduler.Stop()
	}

	if s.config.Metrics.Addr != "" {
		server := &http.Server{
			Addr:              s.config.Metrics.Addr,
			Handler:           s.metricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			s.logger.Info("Metrics server listening", zap.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		if err := s.consumer.Start(gctx); err != nil {
			return fmt.Errorf("failed to start change consumer: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func (s *NotifierService) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Stop 停止服务
func (s *NotifierService) Stop() error {
	s.logger.Info("Stopping notifier service")

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	// 关闭数据库连接
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	// 关闭 Redis 连接
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Failed to close redis",
				zap.Error(err),
			)
		}
	}

	return nil
}
