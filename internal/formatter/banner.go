package formatter

import (
	"strings"
)

// Banner 邮件横幅类别
type Banner int

const (
	BannerGeneric Banner = iota
	BannerTemperature
	BannerHumidity
)

// ClassifyBanner 按关键字粗分类：原因文本 + triggeredBy 拼接后小写匹配
//   - 含 "umid" → 湿度
//   - 含 "temp" 或 "sonda" → 温度
//   - 其他 → 通用
//
// 已知局限：温度和湿度同时触发的事件会被归为湿度。上游给出明确的原因枚举后可替换掉这里。
func ClassifyBanner(reason string, triggeredBy []string) Banner {
	text := strings.ToLower(reason + " " + strings.Join(triggeredBy, " "))
	switch {
	case strings.Contains(text, "umid"):
		return BannerHumidity
	case strings.Contains(text, "temp"), strings.Contains(text, "sonda"):
		return BannerTemperature
	default:
		return BannerGeneric
	}
}

// Title 横幅标题
func (b Banner) Title() string {
	switch b {
	case BannerHumidity:
		return "Alerta de Umidade"
	case BannerTemperature:
		return "Alerta de Temperatura"
	default:
		return "Alerta do Dispositivo"
	}
}

// Icon 横幅图标
func (b Banner) Icon() string {
	switch b {
	case BannerHumidity:
		return "💧"
	case BannerTemperature:
		return "🌡️"
	default:
		return "⚠️"
	}
}

func (b Banner) String() string {
	switch b {
	case BannerHumidity:
		return "humidity"
	case BannerTemperature:
		return "temperature"
	default:
		return "generic"
	}
}
