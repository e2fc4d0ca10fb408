package models

// Channel 通知渠道
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
)

// User 用户（对应 users 表）
// 订阅开关存在两代 schema：新版按渠道（push_enabled / email_enabled），
// 旧版只有一个总开关（alarms_enabled）。两者都可能为 NULL。
type User struct {
	UserID        string   `json:"user_id" db:"user_id"`
	Name          string   `json:"name" db:"name"`
	Email         string   `json:"email" db:"email"`
	Active        bool     `json:"active" db:"active"`
	PushEnabled   *bool    `json:"push_enabled,omitempty" db:"push_enabled"`
	EmailEnabled  *bool    `json:"email_enabled,omitempty" db:"email_enabled"`
	AlarmsEnabled *bool    `json:"alarms_enabled,omitempty" db:"alarms_enabled"`
	DeviceAccess  []string `json:"device_access" db:"device_access"` // text[]
	PushTokens    []string `json:"push_tokens" db:"push_tokens"`     // text[]
}

// OptedIn 渠道订阅判定：渠道开关优先，其次总开关，都没有则视为未订阅
func (u *User) OptedIn(ch Channel) bool {
	var flag *bool
	switch ch {
	case ChannelPush:
		flag = u.PushEnabled
	case ChannelEmail:
		flag = u.EmailEnabled
	}
	if flag != nil {
		return *flag
	}
	if u.AlarmsEnabled != nil {
		return *u.AlarmsEnabled
	}
	return false
}

// HasDevice 访问列表是否直接授予了该设备
func (u *User) HasDevice(deviceID string) bool {
	for _, id := range u.DeviceAccess {
		if id == deviceID {
			return true
		}
	}
	return false
}

// Eligible 三个条件同时满足才可接收通知
func (u *User) Eligible(deviceID string, ch Channel) bool {
	return u.Active && u.HasDevice(deviceID) && u.OptedIn(ch)
}
