package detector

import (
	"encoding/json"

	"github.com/Cloudtempmonitor/templogger/internal/models"
)

// StateWrapperKey 旧版文档把状态包在这个字段下
const StateWrapperKey = "estadoAlarmeAtual"

// Normalize 把"当前报警状态"文档规范化为 AlarmState
//   - 同时接受 {active, kind, eventId} 平铺形式和 {estadoAlarmeAtual: {...}} 包装形式
//   - 同时接受旧字段名 ativo / tipo
//   - 文档缺失、不是对象、或标志不是布尔值时视为未激活
func Normalize(raw json.RawMessage) models.AlarmState {
	var state models.AlarmState

	fields := decodeObject(raw)
	if fields == nil {
		return state
	}
	if inner, ok := fields[StateWrapperKey]; ok {
		if nested := decodeObject(inner); nested != nil {
			fields = nested
		}
	}

	state.Active = boolField(fields, "active", "ativo")
	state.Kind = stringField(fields, "kind", "tipo")
	state.EventID = stringField(fields, "eventId")
	if v, ok := fields["triggeredBy"]; ok {
		var list []string
		if err := json.Unmarshal(v, &list); err == nil {
			state.TriggeredBy = list
		}
	}
	return state
}

func decodeObject(raw json.RawMessage) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	return fields
}

// boolField 取第一个存在的字段；存在但不是布尔值时为 false
func boolField(fields map[string]json.RawMessage, keys ...string) bool {
	for _, key := range keys {
		v, ok := fields[key]
		if !ok {
			continue
		}
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return false
		}
		return b
	}
	return false
}

func stringField(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		v, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
	}
	return ""
}
