package detector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Cloudtempmonitor/templogger/internal/dispatch"
	"github.com/Cloudtempmonitor/templogger/internal/formatter"
	"github.com/Cloudtempmonitor/templogger/internal/idempotency"
	"github.com/Cloudtempmonitor/templogger/internal/metrics"
	"github.com/Cloudtempmonitor/templogger/internal/models"
	"github.com/Cloudtempmonitor/templogger/internal/recipient"
	"github.com/Cloudtempmonitor/templogger/internal/repository"
	"github.com/Cloudtempmonitor/templogger/internal/timezone"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrIntegrity 引用的设备或单元记录不存在
var ErrIntegrity = errors.New("integrity fault")

// DeviceReader 设备读取接口
type DeviceReader interface {
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
}

// UnitReader 单元读取接口
type UnitReader interface {
	GetUnit(ctx context.Context, unitID string) (*models.Unit, error)
}

// EventReader 报警事件读取接口
type EventReader interface {
	GetAlarmEvent(ctx context.Context, deviceID, eventID string) (*models.AlarmEvent, error)
}

// Action 本次调用执行的动作
type Action string

const (
	ActionNone  Action = "none"
	ActionStart Action = "start"
	ActionEnd   Action = "end"
)

// Outcome 一次调用的结果
type Outcome struct {
	Action Action
	// Skipped 非空表示检测到转换但没有发送（integrity_fault / duplicate）
	Skipped string
	Push    dispatch.Result
	Email   dispatch.Result
}

// Dependencies 检测器依赖
type Dependencies struct {
	Devices    DeviceReader
	Units      UnitReader
	Events     EventReader
	Recipients *recipient.Resolver
	Timezones  *timezone.Resolver
	Push       *dispatch.PushDispatcher
	Email      *dispatch.EmailDispatcher
	Guard      idempotency.Guard // 为空时不去重
	Metrics    *metrics.Metrics  // 可为空
	LinkPath   string            // 推送深链前缀
}

// Detector 报警状态转换检测器
type Detector struct {
	deps   Dependencies
	logger *zap.Logger
	now    func() time.Time
}

// New 创建检测器
func New(deps Dependencies, logger *zap.Logger) *Detector {
	if deps.Guard == nil {
		deps.Guard = idempotency.NoopGuard{}
	}
	return &Detector{
		deps:   deps,
		logger: logger,
		now:    time.Now,
	}
}

// Handle 处理 devices/{deviceId}/events/currentAlarmState 的一次写入
// 只有完整性错误以外的存储读取错误会返回 error（消息不确认，等待重投）
func (d *Detector) Handle(ctx context.Context, deviceID string, change models.DocumentChange) (Outcome, error) {
	before := Normalize(change.Before)
	after := Normalize(change.After)

	if before.Active == after.Active {
		return Outcome{Action: ActionNone}, nil
	}

	logger := d.logger.With(
		zap.String("invocation_id", uuid.NewString()),
		zap.String("device_id", deviceID),
	)

	action := ActionStart
	notification := models.NotificationAlarmStart
	if !after.Active {
		action = ActionEnd
		notification = models.NotificationAlarmEnd
	}
	d.deps.Metrics.Transition(notification)

	eventID := after.EventID
	if eventID == "" {
		eventID = before.EventID
	}

	logger.Info("Alarm state transition detected",
		zap.String("action", string(action)),
		zap.String("event_id", eventID),
		zap.String("kind", firstNonEmpty(after.Kind, before.Kind)),
	)

	tc, err := d.gather(ctx, logger, deviceID, eventID)
	if err != nil {
		if errors.Is(err, ErrIntegrity) {
			logger.Error("Transition dropped: referenced record missing", zap.Error(err))
			d.deps.Metrics.IntegrityFault()
			return Outcome{Action: action, Skipped: "integrity_fault"}, nil
		}
		return Outcome{Action: action}, err
	}

	fresh := true
	if token := dedupToken(eventID, change); token != "" {
		key := idempotency.Key(deviceID, token, after.Active, before.Active, after.Active)
		fresh, err = d.deps.Guard.Acquire(ctx, key)
		if err != nil {
			logger.Warn("Idempotency guard unavailable, notifying anyway", zap.Error(err))
			fresh = true
		}
	}
	if !fresh {
		logger.Info("Transition already notified, skipped", zap.String("event_id", eventID))
		d.deps.Metrics.Duplicate()
		return Outcome{Action: action, Skipped: "duplicate"}, nil
	}

	at := d.now()
	if change.Timestamp.Valid() {
		at = change.Timestamp.Time
	}

	var push models.PushMessage
	var email models.EmailContent
	var buildErr error
	if action == ActionStart {
		push, email, buildErr = d.startContent(tc, after, eventID, at)
	} else {
		push, email, buildErr = d.endContent(tc, before, after, eventID, at)
	}

	outcome := d.fanOut(ctx, logger, tc.recipients, push, email, buildErr)
	outcome.Action = action

	logger.Info("Alarm notification completed",
		zap.String("action", string(action)),
		zap.Int("push_success", outcome.Push.SuccessCount),
		zap.Int("push_failure", outcome.Push.FailureCount),
		zap.Int("email_success", outcome.Email.SuccessCount),
		zap.Int("email_failure", outcome.Email.FailureCount),
	)
	return outcome, nil
}

// transitionContext 一次转换所需的上下文
type transitionContext struct {
	device     *models.Device
	unit       *models.Unit
	location   *time.Location
	recipients recipient.Recipients
	event      *models.AlarmEvent
}

// gather 读取设备、单元、时区，并发解析受众和事件记录
func (d *Detector) gather(ctx context.Context, logger *zap.Logger, deviceID, eventID string) (*transitionContext, error) {
	device, err := d.deps.Devices.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("device %s: %w", deviceID, ErrIntegrity)
		}
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	tc := &transitionContext{device: device}

	var regionCode string
	if device.UnitID != "" {
		unit, err := d.deps.Units.GetUnit(ctx, device.UnitID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("unit %s of device %s: %w", device.UnitID, deviceID, ErrIntegrity)
			}
			return nil, fmt.Errorf("failed to load unit: %w", err)
		}
		tc.unit = unit
		regionCode = unit.RegionCode
	} else {
		logger.Debug("Device has no unit, using default timezone")
	}
	zone, loc := d.deps.Timezones.ResolveLocation(regionCode)
	tc.location = loc
	logger.Debug("Timezone resolved",
		zap.String("region_code", regionCode),
		zap.String("timezone", zone),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tc.recipients = d.deps.Recipients.Resolve(gctx, deviceID)
		return nil
	})
	if eventID != "" {
		g.Go(func() error {
			event, err := d.deps.Events.GetAlarmEvent(gctx, deviceID, eventID)
			if err != nil {
				// 事件记录只影响读数展示，读取失败不阻断通知
				if errors.Is(err, repository.ErrNotFound) {
					logger.Warn("Alarm event not found, readings shown as unavailable",
						zap.String("event_id", eventID),
					)
				} else {
					logger.Warn("Failed to load alarm event, readings shown as unavailable",
						zap.String("event_id", eventID),
						zap.Error(err),
					)
				}
				return nil
			}
			tc.event = event
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tc, nil
}

func (d *Detector) details(tc *transitionContext) formatter.AlarmDetails {
	det := formatter.AlarmDetails{
		InstitutionName: tc.device.InstitutionName,
		UnitName:        tc.device.UnitName,
		SectorName:      tc.device.SectorName,
		DeviceName:      tc.device.DisplayName(),
		DeviceID:        tc.device.DeviceID,
		Location:        tc.location,
	}
	if det.UnitName == "" && tc.unit != nil {
		det.UnitName = tc.unit.Name
	}
	return det
}

func (d *Detector) startContent(tc *transitionContext, after models.AlarmState, eventID string, at time.Time) (models.PushMessage, models.EmailContent, error) {
	det := d.details(tc)
	det.Reason = after.Kind
	det.TriggeredBy = after.TriggeredBy
	det.At = at
	det.StartedAt = at
	if ev := tc.event; ev != nil {
		det.Readings = ev.StartReadings.Sanitized()
		if !ev.StartedAt.IsZero() {
			det.StartedAt = ev.StartedAt
		}
		if det.Reason == "" {
			det.Reason = ev.Kind
		}
		if len(det.TriggeredBy) == 0 {
			det.TriggeredBy = ev.TriggeredBy
		}
	}

	push := formatter.BuildPush(formatter.PushInput{
		Type:       models.NotificationAlarmStart,
		DeviceID:   tc.device.DeviceID,
		DeviceName: tc.device.DisplayName(),
		EventID:    eventID,
		Kind:       det.Reason,
		At:         at,
		LinkPath:   d.deps.LinkPath,
	})
	email, err := formatter.BuildStartEmail(det)
	return push, email, err
}

func (d *Detector) endContent(tc *transitionContext, before, after models.AlarmState, eventID string, at time.Time) (models.PushMessage, models.EmailContent, error) {
	det := d.details(tc)
	det.Reason = firstNonEmpty(before.Kind, after.Kind)
	det.TriggeredBy = before.TriggeredBy
	det.At = at
	det.StartedAt = at
	det.Thresholds = &tc.device.Thresholds

	if ev := tc.event; ev != nil {
		if !ev.StartedAt.IsZero() {
			det.StartedAt = ev.StartedAt
		}
		det.EndedAt = ev.EndedAt
		det.Readings = ev.EndReadings.Sanitized()
		switch {
		case ev.EndThresholds != nil:
			det.Thresholds = ev.EndThresholds
		case ev.StartThresholds != nil:
			det.Thresholds = ev.StartThresholds
		}
		if det.Reason == "" {
			det.Reason = ev.Kind
		}
		if len(det.TriggeredBy) == 0 {
			det.TriggeredBy = ev.TriggeredBy
		}
	}
	if det.Readings == nil {
		det.Readings = tc.device.LastReadings.Sanitized()
	}

	push := formatter.BuildPush(formatter.PushInput{
		Type:       models.NotificationAlarmEnd,
		DeviceID:   tc.device.DeviceID,
		DeviceName: tc.device.DisplayName(),
		EventID:    eventID,
		Kind:       det.Reason,
		At:         at,
		LinkPath:   d.deps.LinkPath,
	})
	email, err := formatter.BuildEndEmail(det)
	return push, email, err
}

// fanOut 推送和邮件并发发送，两者都结束后返回
func (d *Detector) fanOut(ctx context.Context, logger *zap.Logger, to recipient.Recipients, push models.PushMessage, email models.EmailContent, emailErr error) Outcome {
	var outcome Outcome

	var g errgroup.Group
	g.Go(func() error {
		outcome.Push = d.deps.Push.Dispatch(ctx, to.PushTokens, push)
		return nil
	})
	g.Go(func() error {
		if emailErr != nil {
			logger.Error("Failed to build email, email skipped", zap.Error(emailErr))
			outcome.Email = dispatch.Result{Channel: models.ChannelEmail}
			return nil
		}
		outcome.Email = d.deps.Email.Dispatch(ctx, to.Emails, email)
		return nil
	})
	_ = g.Wait()

	d.deps.Metrics.Delivered(models.ChannelPush, outcome.Push.SuccessCount, outcome.Push.FailureCount)
	d.deps.Metrics.Delivered(models.ChannelEmail, outcome.Email.SuccessCount, outcome.Email.FailureCount)
	return outcome
}

// dedupToken 去重标识：优先事件 ID，其次投递 ID，再次变更时间；都没有时返回空（不去重）
func dedupToken(eventID string, change models.DocumentChange) string {
	switch {
	case eventID != "":
		return eventID
	case change.ID != "":
		return "delivery:" + change.ID
	case change.Timestamp.Valid():
		return "at:" + strconv.FormatInt(change.Timestamp.UnixMilli(), 10)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
