package models

import (
	"time"
)

// 报警事件状态
const (
	AlarmEventStatusActive   = "ativo"
	AlarmEventStatusResolved = "resolvido"
)

// AlarmEvent 报警事件历史（对应 alarm_events 表）
// 进入报警时创建，解除时更新一次（结束时间、结束读数、结束阈值）
type AlarmEvent struct {
	EventID         string           `json:"event_id" db:"event_id"`
	DeviceID        string           `json:"device_id" db:"device_id"`
	Kind            string           `json:"kind" db:"kind"`
	Status          string           `json:"status" db:"status"`
	StartedAt       time.Time        `json:"started_at" db:"started_at"`
	EndedAt         *time.Time       `json:"ended_at,omitempty" db:"ended_at"`
	StartReadings   *Readings        `json:"start_readings,omitempty" db:"start_readings"`     // JSONB
	EndReadings     *Readings        `json:"end_readings,omitempty" db:"end_readings"`         // JSONB
	StartThresholds *ThresholdConfig `json:"start_thresholds,omitempty" db:"start_thresholds"` // JSONB
	EndThresholds   *ThresholdConfig `json:"end_thresholds,omitempty" db:"end_thresholds"`     // JSONB
	TriggeredBy     []string         `json:"triggered_by,omitempty" db:"triggered_by"`         // text[]
}

// AlarmState 规范化后的"当前报警状态"
type AlarmState struct {
	Active      bool
	Kind        string
	EventID     string
	TriggeredBy []string
}

// NotificationType 推送事件类型标签
type NotificationType string

const (
	NotificationAlarmStart NotificationType = "alarm_start"
	NotificationAlarmEnd   NotificationType = "alarm_end"
	NotificationOffline    NotificationType = "offline"
	NotificationOnline     NotificationType = "online"
)
