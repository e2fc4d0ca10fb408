package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Cloudtempmonitor/templogger/internal/dispatch"
	"github.com/Cloudtempmonitor/templogger/internal/metrics"
	"github.com/Cloudtempmonitor/templogger/internal/models"
	"github.com/Cloudtempmonitor/templogger/internal/recipient"
	"github.com/Cloudtempmonitor/templogger/internal/repository"

	"go.uber.org/zap"
)

// deviceImage 设备文档中与在线状态相关的字段
type deviceImage struct {
	StatusTimestamp models.Timestamp `json:"statusTimestamp"`
	IsOffline       *bool            `json:"isOffline"`
}

func decodeDeviceImage(raw json.RawMessage) deviceImage {
	var img deviceImage
	if len(raw) == 0 {
		return img
	}
	_ = json.Unmarshal(raw, &img)
	return img
}

// Recovery 设备文档更新时检测离线→在线
type Recovery struct {
	store    DeviceStatusStore
	notifier *notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewRecovery 创建恢复处理器
func NewRecovery(
	store DeviceStatusStore,
	recipients *recipient.Resolver,
	push *dispatch.PushDispatcher,
	m *metrics.Metrics,
	linkPath string,
	logger *zap.Logger,
) *Recovery {
	return &Recovery{
		store: store,
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

// Handle 处理 devices/{deviceId} 的一次写入；返回 true 表示设备被翻转为在线并已通知
func (r *Recovery) Handle(ctx context.Context, deviceID string, change models.DocumentChange) (bool, error) {
	if !change.HasAfter() {
		return false, nil
	}
	before := decodeDeviceImage(change.Before)
	after := decodeDeviceImage(change.After)

	if !after.StatusTimestamp.Valid() {
		return false, nil
	}
	if before.StatusTimestamp.Valid() && !after.StatusTimestamp.After(before.StatusTimestamp.Time) {
		return false, nil
	}
	// 文档里明确写着在线且之前也在线时，不需要访问存储
	if before.IsOffline != nil && !*before.IsOffline && after.IsOffline != nil && !*after.IsOffline {
		return false, nil
	}

	flipped, err := r.store.MarkOnline(ctx, deviceID)
	if err != nil {
		return false, fmt.Errorf("failed to mark device online: %w", err)
	}
	if !flipped {
		return false, nil
	}

	device, err := r.store.GetDevice(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			r.logger.Error("Failed to load device after recovery",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
		}
		device = &models.Device{DeviceID: deviceID}
	}

	r.logger.Info("Device back online",
		zap.String("device_id", deviceID),
		zap.Time("status_timestamp", after.StatusTimestamp.Time),
	)
	r.notifier.notify(ctx, r.logger, device, models.NotificationOnline, r.now())
	return true, nil
}
