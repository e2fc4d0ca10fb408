package presence

import (
	"context"
	"time"

	"github.com/Cloudtempmonitor/templogger/internal/dispatch"
	"github.com/Cloudtempmonitor/templogger/internal/formatter"
	"github.com/Cloudtempmonitor/templogger/internal/metrics"
	"github.com/Cloudtempmonitor/templogger/internal/models"
	"github.com/Cloudtempmonitor/templogger/internal/recipient"

	"go.uber.org/zap"
)

// DeviceStatusStore 设备在线状态存储（由 repository.DeviceRepository 实现）
type DeviceStatusStore interface {
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
	ListStaleDevices(ctx context.Context, cutoff time.Time) ([]models.Device, error)
	MarkOffline(ctx context.Context, deviceID string, cutoff time.Time) (bool, error)
	MarkOnline(ctx context.Context, deviceID string) (bool, error)
}

// notifier 在线/离线只走推送渠道
type notifier struct {
	recipients *recipient.Resolver
	push       *dispatch.PushDispatcher
	metrics    *metrics.Metrics
	linkPath   string
}

func (n *notifier) notify(ctx context.Context, logger *zap.Logger, device *models.Device, kind models.NotificationType, at time.Time) dispatch.Result {
	n.metrics.PresenceFlip(kind)

	tokens := n.recipients.ResolvePushTokens(ctx, device.DeviceID)
	msg := formatter.BuildPush(formatter.PushInput{
		Type:       kind,
		DeviceID:   device.DeviceID,
		DeviceName: device.DisplayName(),
		At:         at,
		LinkPath:   n.linkPath,
	})
	result := n.push.Dispatch(ctx, tokens, msg)
	n.metrics.Delivered(models.ChannelPush, result.SuccessCount, result.FailureCount)

	logger.Info("Presence notification sent",
		zap.String("device_id", device.DeviceID),
		zap.String("type", string(kind)),
		zap.Int("success_count", result.SuccessCount),
		zap.Int("failure_count", result.FailureCount),
	)
	return result
}
