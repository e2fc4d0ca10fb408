package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Cloudtempmonitor/templogger/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// UserRepository 用户仓库（只读：按设备访问权限和渠道订阅查找接收人）
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// 渠道 → 订阅开关列（固定映射，不拼接外部输入）
var channelOptInColumn = map[models.Channel]string{
	models.ChannelPush:  "push_enabled",
	models.ChannelEmail: "email_enabled",
}

// FindNotifiableUsers 查找可接收某设备通知的用户
// 条件：active = true，设备在 device_access 中，渠道开关（缺省取 alarms_enabled）为 true
func (r *UserRepository) FindNotifiableUsers(ctx context.Context, deviceID string, channel models.Channel) ([]models.User, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	column, ok := channelOptInColumn[channel]
	if !ok {
		return nil, fmt.Errorf("unsupported channel: %s", channel)
	}

	query := fmt.Sprintf(`
		SELECT
			user_id,
			name,
			email,
			active,
			push_enabled,
			email_enabled,
			alarms_enabled,
			device_access,
			push_tokens
		FROM users
		WHERE active = true
		  AND $1 = ANY(device_access)
		  AND COALESCE(%s, alarms_enabled, false) = true
	`, column)

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var name, email sql.NullString
		var pushEnabled, emailEnabled, alarmsEnabled sql.NullBool
		var deviceAccess, pushTokens pq.StringArray

		if err := rows.Scan(
			&u.UserID,
			&name,
			&email,
			&u.Active,
			&pushEnabled,
			&emailEnabled,
			&alarmsEnabled,
			&deviceAccess,
			&pushTokens,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}

		u.Name = name.String
		u.Email = email.String
		u.PushEnabled = nullBoolPtr(pushEnabled)
		u.EmailEnabled = nullBoolPtr(emailEnabled)
		u.AlarmsEnabled = nullBoolPtr(alarmsEnabled)
		u.DeviceAccess = deviceAccess
		u.PushTokens = pushTokens

		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

func nullBoolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}
