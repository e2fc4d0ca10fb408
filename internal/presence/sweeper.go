package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/Cloudtempmonitor/templogger/internal/dispatch"
	"github.com/Cloudtempmonitor/templogger/internal/metrics"
	"github.com/Cloudtempmonitor/templogger/internal/models"
	"github.com/Cloudtempmonitor/templogger/internal/recipient"

	"go.uber.org/zap"
)

// SweepResult 一次离线扫描的结果
type SweepResult struct {
	Stale   int // 超过阈值的设备数
	Flipped int // 本进程完成翻转（并发送通知）的设备数
	Errors  int
}

// Sweeper 周期性离线扫描
type Sweeper struct {
	store     DeviceStatusStore
	threshold time.Duration
	notifier  *notifier
	logger    *zap.Logger
	now       func() time.Time
}

// NewSweeper 创建离线扫描器
func NewSweeper(
	store DeviceStatusStore,
	threshold time.Duration,
	recipients *recipient.Resolver,
	push *dispatch.PushDispatcher,
	m *metrics.Metrics,
	linkPath string,
	logger *zap.Logger,
) *Sweeper {
	return &Sweeper{
		store:     store,
		threshold: threshold,
		notifier: &notifier{
			recipients: recipients,
			push:       push,
			metrics:    m,
			linkPath:   linkPath,
		},
		logger: logger,
		now:    time.Now,
	}
}

// Sweep 标记超时设备为离线；只有赢得条件更新的设备才发送通知
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	begin := time.Now()
	defer func() {
		s.notifier.metrics.ObserveSweep(time.Since(begin).Seconds())
	}()

	started := s.now()

	cutoff := started.Add(-s.threshold)
	devices, err := s.store.ListStaleDevices(ctx, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to list stale devices: %w", err)
	}
	result.Stale = len(devices)

	for i := range devices {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		device := &devices[i]
		flipped, err := s.store.MarkOffline(ctx, device.DeviceID, cutoff)
		if err != nil {
			result.Errors++
			s.logger.Error("Failed to mark device offline",
				zap.String("device_id", device.DeviceID),
				zap.Error(err),
			)
			continue
		}
		if !flipped {
			// 其他实例已翻转，或设备在列表之后又上报过
			continue
		}

		result.Flipped++
		s.logger.Warn("Device went offline",
			zap.String("device_id", device.DeviceID),
			zap.Timep("status_timestamp", device.StatusTimestamp),
			zap.Duration("threshold", s.threshold),
		)
		s.notifier.notify(ctx, s.logger, device, models.NotificationOffline, started)
	}

	if result.Stale > 0 {
		s.logger.Info("Offline sweep completed",
			zap.Int("stale_count", result.Stale),
			zap.Int("flipped_count", result.Flipped),
			zap.Int("error_count", result.Errors),
		)
	}
	return result, nil
}
