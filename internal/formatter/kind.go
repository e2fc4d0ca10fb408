package formatter

import (
	"strings"
)

// DefaultKindText 缺少报警原因时的文本
const DefaultKindText = "Alarme Crítico"

var kindTexts = map[string]string{
	"sonda_max":               "Temperatura da sonda acima do máximo",
	"sonda_min":               "Temperatura da sonda abaixo do mínimo",
	"temperatura_max":         "Temperatura acima do máximo",
	"temperatura_min":         "Temperatura abaixo do mínimo",
	"ambiente_max":            "Temperatura ambiente acima do máximo",
	"ambiente_min":            "Temperatura ambiente abaixo do mínimo",
	"temperaturaambiente_max": "Temperatura ambiente acima do máximo",
	"temperaturaambiente_min": "Temperatura ambiente abaixo do mínimo",
	"umidade_max":             "Umidade acima do máximo",
	"umidade_min":             "Umidade abaixo do mínimo",
}

// FriendlyKind 报警原因代码 → 可读文本；未知代码原样返回
func FriendlyKind(kind string) string {
	trimmed := strings.TrimSpace(kind)
	if trimmed == "" {
		return DefaultKindText
	}
	if text, ok := kindTexts[strings.ToLower(trimmed)]; ok {
		return text
	}
	return trimmed
}
