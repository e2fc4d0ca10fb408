package models

import (
	"time"
)

// Device 设备（对应 devices 表，主键为硬件 MAC 地址）
type Device struct {
	DeviceID        string `json:"device_id" db:"device_id"`
	Name            string `json:"device_name" db:"device_name"`
	InstitutionID   string `json:"institution_id" db:"institution_id"`
	InstitutionName string `json:"institution_name" db:"institution_name"`
	UnitID          string `json:"unit_id" db:"unit_id"`
	UnitName        string `json:"unit_name" db:"unit_name"`
	SectorID        string `json:"sector_id" db:"sector_id"`
	SectorName      string `json:"sector_name" db:"sector_name"`

	ProbeEnabled         bool `json:"probe_enabled" db:"probe_enabled"`
	ProbeAlarmEnabled    bool `json:"probe_alarm_enabled" db:"probe_alarm_enabled"`
	AmbientAlarmEnabled  bool `json:"ambient_alarm_enabled" db:"ambient_alarm_enabled"`
	HumidityAlarmEnabled bool `json:"humidity_alarm_enabled" db:"humidity_alarm_enabled"`

	Thresholds      ThresholdConfig `json:"thresholds" db:"thresholds"` // JSONB
	StatusTimestamp *time.Time      `json:"status_timestamp,omitempty" db:"status_timestamp"`
	IsOffline       bool            `json:"is_offline" db:"is_offline"`
	LastReadings    *Readings       `json:"last_readings,omitempty" db:"last_readings"` // JSONB
}

// DisplayName 设备显示名，未命名时使用 MAC
func (d *Device) DisplayName() string {
	if d == nil {
		return ""
	}
	if d.Name != "" {
		return d.Name
	}
	return d.DeviceID
}

// Unit 组织单元（携带行政区代码，用于解析时区）
type Unit struct {
	UnitID     string `json:"unit_id" db:"unit_id"`
	Name       string `json:"unit_name" db:"unit_name"`
	RegionCode string `json:"region_code" db:"region_code"` // 州代码，如 "SP"
}
