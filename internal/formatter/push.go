package formatter

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Cloudtempmonitor/templogger/internal/models"
)

// PushInput 推送内容所需的数据
type PushInput struct {
	Type       models.NotificationType
	DeviceID   string
	DeviceName string
	EventID    string
	Kind       string
	At         time.Time
	LinkPath   string // 深链前缀，如 /device-details.html?mac=
}

// BuildPush 构造推送消息；Data 为扁平字符串 map
func BuildPush(in PushInput) models.PushMessage {
	name := in.DeviceName
	if name == "" {
		name = in.DeviceID
	}
	at := in.At
	if at.IsZero() {
		at = time.Now()
	}

	var title, body string
	switch in.Type {
	case models.NotificationAlarmStart:
		title = fmt.Sprintf("🚨 ALARME: %s", name)
		body = fmt.Sprintf("%s detectado! Verifique imediatamente.", FriendlyKind(in.Kind))
	case models.NotificationAlarmEnd:
		title = fmt.Sprintf("✅ Normalizado: %s", name)
		body = "O dispositivo voltou a operar dentro dos limites."
	case models.NotificationOffline:
		title = fmt.Sprintf("📴 Offline: %s", name)
		body = "O dispositivo parou de enviar dados. Verifique a conexão."
	case models.NotificationOnline:
		title = fmt.Sprintf("📶 Online: %s", name)
		body = "O dispositivo voltou a se comunicar."
	default:
		title = name
	}

	data := map[string]string{
		"title":     title,
		"message":   body,
		"deviceId":  in.DeviceID,
		"type":      string(in.Type),
		"timestamp": strconv.FormatInt(at.UnixMilli(), 10),
	}
	if in.EventID != "" {
		data["eventId"] = in.EventID
	}
	if in.Kind != "" {
		data["kind"] = in.Kind
	}
	if in.LinkPath != "" {
		data["url"] = in.LinkPath + in.DeviceID
	}

	return models.PushMessage{
		Title: title,
		Body:  body,
		Data:  data,
	}
}
