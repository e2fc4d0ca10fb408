package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Cloudtempmonitor/templogger/internal/models"

	"go.uber.org/zap"
)

// DeviceRepository 设备仓库
// 通知核心只读设备配置，唯一的写操作是 is_offline 标记的条件翻转
type DeviceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeviceRepository 创建设备仓库
func NewDeviceRepository(db *sql.DB, logger *zap.Logger) *DeviceRepository {
	return &DeviceRepository{
		db:     db,
		logger: logger,
	}
}

const deviceColumns = `
			device_id,
			device_name,
			institution_id,
			institution_name,
			unit_id,
			unit_name,
			sector_id,
			sector_name,
			probe_enabled,
			probe_alarm_enabled,
			ambient_alarm_enabled,
			humidity_alarm_enabled,
			thresholds,
			status_timestamp,
			is_offline,
			last_readings`

type rowScanner interface {
	Scan(dest ...any) error
}

// GetDevice 根据 MAC 获取设备
func (r *DeviceRepository) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	query := `SELECT` + deviceColumns + `
		FROM devices
		WHERE device_id = $1
	`

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("device not found: %s: %w", deviceID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return device, nil
}

// ListStaleDevices 列出仍标记为在线、但状态时间戳早于 cutoff 的设备
// 从未上报过的设备（status_timestamp 为 NULL）不在此列
func (r *DeviceRepository) ListStaleDevices(ctx context.Context, cutoff time.Time) ([]models.Device, error) {
	query := `SELECT` + deviceColumns + `
		FROM devices
		WHERE is_offline = false
		  AND status_timestamp IS NOT NULL
		  AND status_timestamp < $1
		ORDER BY status_timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	return devices, nil
}

// MarkOffline 将仍早于 cutoff 的在线设备标记为离线；返回 true 表示本次调用完成了翻转
// 列表之后又上报过的设备不会被翻转
func (r *DeviceRepository) MarkOffline(ctx context.Context, deviceID string, cutoff time.Time) (bool, error) {
	query := `
		UPDATE devices
		SET is_offline = true,
		    offline_since = NOW()
		WHERE device_id = $1
		  AND is_offline = false
		  AND status_timestamp < $2
	`
	return r.flip(ctx, query, deviceID, cutoff)
}

// MarkOnline 将设备标记为在线；返回 true 表示本次调用完成了翻转
func (r *DeviceRepository) MarkOnline(ctx context.Context, deviceID string) (bool, error) {
	query := `
		UPDATE devices
		SET is_offline = false,
		    offline_since = NULL
		WHERE device_id = $1
		  AND is_offline = true
	`
	return r.flip(ctx, query, deviceID)
}

func (r *DeviceRepository) flip(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update device status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var d models.Device
	var name, institutionID, institutionName, unitID, unitName, sectorID, sectorName sql.NullString
	var statusTimestamp sql.NullTime
	var thresholds, lastReadings []byte

	err := row.Scan(
		&d.DeviceID,
		&name,
		&institutionID,
		&institutionName,
		&unitID,
		&unitName,
		&sectorID,
		&sectorName,
		&d.ProbeEnabled,
		&d.ProbeAlarmEnabled,
		&d.AmbientAlarmEnabled,
		&d.HumidityAlarmEnabled,
		&thresholds,
		&statusTimestamp,
		&d.IsOffline,
		&lastReadings,
	)
	if err != nil {
		return nil, err
	}

	// 处理可空字段
	d.Name = name.String
	d.InstitutionID = institutionID.String
	d.InstitutionName = institutionName.String
	d.UnitID = unitID.String
	d.UnitName = unitName.String
	d.SectorID = sectorID.String
	d.SectorName = sectorName.String
	if statusTimestamp.Valid {
		ts := statusTimestamp.Time
		d.StatusTimestamp = &ts
	}

	// JSONB 字段
	if len(thresholds) > 0 {
		if err := json.Unmarshal(thresholds, &d.Thresholds); err != nil {
			return nil, fmt.Errorf("failed to unmarshal thresholds for %s: %w", d.DeviceID, err)
		}
	}
	if len(lastReadings) > 0 {
		var readings models.Readings
		if err := json.Unmarshal(lastReadings, &readings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal last_readings for %s: %w", d.DeviceID, err)
		}
		d.LastReadings = &readings
	}

	return &d, nil
}
