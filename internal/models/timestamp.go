package models

import (
	"bytes"
	"encoding/json"
	"math"
	"time"
)

// Timestamp 兼容多种时间形态的 JSON 时间戳：
//   - 结构化对象 {"seconds":..,"nanoseconds":..} 或 {"_seconds":..,"_nanoseconds":..}
//   - RFC3339 字符串
//   - 纪元毫秒数字
//
// 无法识别的值按"缺失"处理，不返回错误。
type Timestamp struct {
	time.Time
}

// NewTimestamp 包装 time.Time
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// Valid 是否携带了时间
func (t Timestamp) Valid() bool {
	return !t.Time.IsZero()
}

// Ptr 缺失时返回 nil
func (t Timestamp) Ptr() *time.Time {
	if !t.Valid() {
		return nil
	}
	v := t.Time
	return &v
}

type structuredTimestamp struct {
	Seconds     *int64 `json:"seconds"`
	Nanoseconds int64  `json:"nanoseconds"`
	USeconds    *int64 `json:"_seconds"`
	UNanos      int64  `json:"_nanoseconds"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON 实现 json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = Timestamp{}

	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				t.Time = parsed
				return nil
			}
		}
	case '{':
		var st structuredTimestamp
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil
		}
		switch {
		case st.Seconds != nil:
			t.Time = time.Unix(*st.Seconds, st.Nanoseconds)
		case st.USeconds != nil:
			t.Time = time.Unix(*st.USeconds, st.UNanos)
		}
	default:
		var ms float64
		if err := json.Unmarshal(raw, &ms); err != nil || math.IsNaN(ms) || ms <= 0 {
			return nil
		}
		t.Time = time.UnixMilli(int64(ms))
	}

	return nil
}

// MarshalJSON 实现 json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}
