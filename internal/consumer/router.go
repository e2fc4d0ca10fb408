package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Cloudtempmonitor/templogger/internal/detector"
	"github.com/Cloudtempmonitor/templogger/internal/metrics"
	"github.com/Cloudtempmonitor/templogger/internal/models"

	"go.uber.org/zap"
)

// Route 变更路径类别
type Route string

const (
	RouteAlarmState Route = "alarm_state" // devices/{id}/events/currentAlarmState
	RouteDevice     Route = "device"      // devices/{id}
	RouteUnknown    Route = "unknown"
)

// 设备集合名（dispositivos 为旧名）
var deviceCollections = map[string]bool{
	"devices":      true,
	"dispositivos": true,
}

// ParsePath 解析文档路径，返回设备 ID 和路由
func ParsePath(path string) (string, Route) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || !deviceCollections[parts[0]] || parts[1] == "" {
		return "", RouteUnknown
	}
	deviceID := parts[1]
	switch {
	case len(parts) == 2:
		return deviceID, RouteDevice
	case len(parts) == 4 && parts[2] == "events" && parts[3] == "currentAlarmState":
		return deviceID, RouteAlarmState
	}
	return deviceID, RouteUnknown
}

// AlarmStateHandler 报警状态变更处理（detector.Detector）
type AlarmStateHandler interface {
	Handle(ctx context.Context, deviceID string, change models.DocumentChange) (detector.Outcome, error)
}

// DeviceHandler 设备文档变更处理（presence.Recovery）
type DeviceHandler interface {
	Handle(ctx context.Context, deviceID string, change models.DocumentChange) (bool, error)
}

// Router 按路径分发变更事件
type Router struct {
	alarms  AlarmStateHandler
	devices DeviceHandler // 可为空（关闭在线恢复时）
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewRouter 创建路由
func NewRouter(alarms AlarmStateHandler, devices DeviceHandler, m *metrics.Metrics, logger *zap.Logger) *Router {
	return &Router{
		alarms:  alarms,
		devices: devices,
		metrics: m,
		logger:  logger,
	}
}

// Dispatch 处理一条变更；返回 error 表示应当稍后重试（不确认消息）
func (r *Router) Dispatch(ctx context.Context, change models.DocumentChange) error {
	deviceID, route := ParsePath(change.Path)

	var err error
	switch route {
	case RouteAlarmState:
		_, err = r.alarms.Handle(ctx, deviceID, change)
	case RouteDevice:
		if r.devices == nil {
			r.metrics.Change(string(route), "ignored")
			return nil
		}
		_, err = r.devices.Handle(ctx, deviceID, change)
	default:
		r.logger.Debug("Ignoring change on unrouted path", zap.String("path", change.Path))
		r.metrics.Change(string(RouteUnknown), "ignored")
		return nil
	}

	if err != nil {
		r.metrics.Change(string(route), "error")
		return fmt.Errorf("failed to handle %s change for %s: %w", route, deviceID, err)
	}
	r.metrics.Change(string(route), "ok")
	return nil
}

// DecodeChange 解析变更事件 JSON；fallbackPath 用于消息体中没有 path 的情况
func DecodeChange(payload []byte, fallbackPath string) (models.DocumentChange, error) {
	var change models.DocumentChange
	if err := json.Unmarshal(payload, &change); err != nil {
		return change, fmt.Errorf("failed to decode change event: %w", err)
	}
	if change.Path == "" {
		change.Path = fallbackPath
	}
	if change.Path == "" {
		return change, fmt.Errorf("change event has no path")
	}
	return change, nil
}
