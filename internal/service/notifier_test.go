package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Cloudtempmonitor/templogger/internal/config"
	"github.com/Cloudtempmonitor/templogger/internal/consumer"
	"github.com/Cloudtempmonitor/templogger/internal/idempotency"
	"github.com/Cloudtempmonitor/templogger/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Trigger.Source = config.TriggerSourceRedis
	cfg.Trigger.Stream = "test:changes"
	cfg.Trigger.Group = "alarm-notifier"
	cfg.Trigger.Consumer = "worker-1"
	cfg.Trigger.BatchSize = 10
	cfg.Trigger.Block = 10 * time.Millisecond
	cfg.Presence.Enabled = true
	cfg.Presence.OfflineThreshold = 200 * time.Second
	cfg.Presence.SweepSpec = "@every 1m"
	cfg.Idempotency.KeyPrefix = "test:notified:"
	cfg.Idempotency.TTL = time.Hour
	cfg.Notify.DeviceLinkPath = "/device-details.html?mac="
	cfg.Push.BaseURL = "http://localhost:0"
	cfg.Push.Timeout = time.Second
	return cfg
}

func TestNewNotifierService_Wiring(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s, err := newNotifierService(testConfig(), db, client, nil, zap.NewNop())
	require.NoError(t, err)

	assert.NotNil(t, s.detector)
	assert.NotNil(t, s.recovery)
	assert.NotNil(t, s.scheduler)
	assert.IsType(t, &consumer.StreamConsumer{}, s.consumer)
}

func TestNewNotifierService_Validation(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := testConfig()
	cfg.Idempotency.Enabled = true
	_, err = newNotifierService(cfg, db, nil, nil, zap.NewNop())
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Trigger.Source = config.TriggerSourceMQTT
	_, err = newNotifierService(cfg, db, nil, nil, zap.NewNop())
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Presence.SweepSpec = "every now and then"
	_, err = newNotifierService(cfg, db, nil, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestNewNotifierService_PresenceDisabled(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := testConfig()
	cfg.Presence.Enabled = false
	cfg.Idempotency.Enabled = true

	s, err := newNotifierService(cfg, db, client, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, s.scheduler)
	assert.Nil(t, s.recovery)

	// 设备文档变更在关闭对账时被忽略
	require.NoError(t, s.router.Dispatch(context.Background(), models.DocumentChange{Path: "devices/AA:BB:CC"}))

	ok, err := idempotency.NewRedisGuard(client, cfg.Idempotency.KeyPrefix, time.Minute).Acquire(context.Background(), "probe")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNotifierService_NoTransitionEndToEnd(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := testConfig()
	cfg.Presence.Enabled = false
	s, err := newNotifierService(cfg, db, client, nil, zap.NewNop())
	require.NoError(t, err)

	payload, err := json.Marshal(map[string]any{
		"path":   "devices/AA:BB:CC/events/currentAlarmState",
		"before": map[string]any{"active": true},
		"after":  map[string]any{"estadoAlarmeAtual": map[string]any{"active": true}},
	})
	require.NoError(t, err)
	change, err := consumer.DecodeChange(payload, "")
	require.NoError(t, err)

	// 标志没有变化：不访问数据库
	require.NoError(t, s.router.Dispatch(context.Background(), change))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifierService_MetricsHandler(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s, err := newNotifierService(testConfig(), db, client, nil, zap.NewNop())
	require.NoError(t, err)
	s.metrics.Change("alarm_state", "ok")

	rec := httptest.NewRecorder()
	s.metricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "templogger_document_changes_total")

	rec = httptest.NewRecorder()
	s.metricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok", rec.Body.String())
}

func TestNotifierService_StartStop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	cfg.Presence.Enabled = false
	s, err := newNotifierService(cfg, db, client, nil, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("service did not stop")
	}

	require.NoError(t, s.Stop())
	require.NoError(t, mock.ExpectationsWereMet())
}
