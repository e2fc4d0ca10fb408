package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Cloudtempmonitor/templogger/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// AlarmEventsRepository 报警事件历史仓库（只读）
type AlarmEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlarmEventsRepository 创建报警事件仓库
func NewAlarmEventsRepository(db *sql.DB, logger *zap.Logger) *AlarmEventsRepository {
	return &AlarmEventsRepository{
		db:     db,
		logger: logger,
	}
}

// GetAlarmEvent 根据 device_id + event_id 获取报警事件
func (r *AlarmEventsRepository) GetAlarmEvent(ctx context.Context, deviceID, eventID string) (*models.AlarmEvent, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if eventID == "" {
		return nil, fmt.Errorf("event_id is required")
	}

	query := `
		SELECT
			event_id,
			device_id,
			kind,
			status,
			started_at,
			ended_at,
			start_readings,
			end_readings,
			start_thresholds,
			end_thresholds,
			triggered_by
		FROM alarm_events
		WHERE event_id = $1
		  AND device_id = $2
	`

	var event models.AlarmEvent
	var kind, status sql.NullString
	var endedAt sql.NullTime
	var startReadings, endReadings, startThresholds, endThresholds []byte
	var triggeredBy pq.StringArray

	err := r.db.QueryRowContext(ctx, query, eventID, deviceID).Scan(
		&event.EventID,
		&event.DeviceID,
		&kind,
		&status,
		&event.StartedAt,
		&endedAt,
		&startReadings,
		&endReadings,
		&startThresholds,
		&endThresholds,
		&triggeredBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("alarm event not found: event_id=%s, device_id=%s: %w", eventID, deviceID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get alarm event: %w", err)
	}

	// 处理可空字段
	event.Kind = kind.String
	event.Status = status.String
	if endedAt.Valid {
		t := endedAt.Time
		event.EndedAt = &t
	}
	if len(triggeredBy) > 0 {
		event.TriggeredBy = triggeredBy
	}

	// JSONB 快照：解析失败只记日志，快照按缺失处理
	event.StartReadings = r.decodeReadings(eventID, "start_readings", startReadings)
	event.EndReadings = r.decodeReadings(eventID, "end_readings", endReadings)
	event.StartThresholds = r.decodeThresholds(eventID, "start_thresholds", startThresholds)
	event.EndThresholds = r.decodeThresholds(eventID, "end_thresholds", endThresholds)

	return &event, nil
}

func (r *AlarmEventsRepository) decodeReadings(eventID, column string, raw []byte) *models.Readings {
	if len(raw) == 0 {
		return nil
	}
	var readings models.Readings
	if err := json.Unmarshal(raw, &readings); err != nil {
		r.logger.Warn("Failed to decode readings snapshot",
			zap.String("event_id", eventID),
			zap.String("column", column),
			zap.Error(err),
		)
		return nil
	}
	return &readings
}

func (r *AlarmEventsRepository) decodeThresholds(eventID, column string, raw []byte) *models.ThresholdConfig {
	if len(raw) == 0 {
		return nil
	}
	var cfg models.ThresholdConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		r.logger.Warn("Failed to decode threshold snapshot",
			zap.String("event_id", eventID),
			zap.String("column", column),
			zap.Error(err),
		)
		return nil
	}
	return &cfg
}
