package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func floatPtr(f float64) *float64 { return &f }

func TestTimestamp_UnmarshalShapes(t *testing.T) {
	want := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
	}{
		{"structured", `{"seconds": 1741617000, "nanoseconds": 0}`},
		{"structured underscore", `{"_seconds": 1741617000, "_nanoseconds": 0}`},
		{"rfc3339", `"2025-03-10T14:30:00Z"`},
		{"epoch millis", `1741617000000`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &ts))
			assert.True(t, ts.Valid())
			assert.True(t, want.Equal(ts.Time), "got %s", ts.Time)
		})
	}
}

func TestTimestamp_UnknownShapesAreAbsent(t *testing.T) {
	for _, raw := range []string{`null`, `"not a date"`, `{"foo": 1}`, `true`, `-5`} {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(raw), &ts), raw)
		assert.False(t, ts.Valid(), raw)
		assert.Nil(t, ts.Ptr(), raw)
	}
}

func TestUser_OptedIn(t *testing.T) {
	// 渠道开关优先于总开关
	u := User{PushEnabled: boolPtr(false), AlarmsEnabled: boolPtr(true)}
	assert.False(t, u.OptedIn(ChannelPush))
	assert.True(t, u.OptedIn(ChannelEmail))

	// 只有总开关（旧 schema）
	legacy := User{AlarmsEnabled: boolPtr(true)}
	assert.True(t, legacy.OptedIn(ChannelPush))
	assert.True(t, legacy.OptedIn(ChannelEmail))

	// 都没有
	assert.False(t, (&User{}).OptedIn(ChannelPush))
}

func TestUser_Eligible(t *testing.T) {
	u := User{Active: true, PushEnabled: boolPtr(true), DeviceAccess: []string{"AA:BB:CC"}}
	assert.True(t, u.Eligible("AA:BB:CC", ChannelPush))
	assert.False(t, u.Eligible("DD:EE:FF", ChannelPush))
	assert.False(t, u.Eligible("AA:BB:CC", ChannelEmail))

	u.Active = false
	assert.False(t, u.Eligible("AA:BB:CC", ChannelPush))
}

func TestReadings_Sanitized(t *testing.T) {
	r := &Readings{ProbeTemp: floatPtr(-127), AmbientTemp: floatPtr(0), Humidity: floatPtr(-1)}
	s := r.Sanitized()
	assert.Nil(t, s.ProbeTemp)
	require.NotNil(t, s.AmbientTemp)
	assert.Equal(t, 0.0, *s.AmbientTemp)
	assert.Nil(t, s.Humidity)
	// 原对象不被修改
	assert.NotNil(t, r.ProbeTemp)
}

func TestThresholdConfig_OutOfRange(t *testing.T) {
	cfg := &ThresholdConfig{
		Min: Thresholds{Probe: floatPtr(2), Humidity: floatPtr(30)},
		Max: Thresholds{Probe: floatPtr(8), Humidity: floatPtr(70)},
	}
	r := &Readings{ProbeTemp: floatPtr(9.5), AmbientTemp: floatPtr(40), Humidity: floatPtr(50)}

	assert.True(t, cfg.OutOfRange(SensorProbe, r))
	// 环境温度没有阈值
	assert.False(t, cfg.OutOfRange(SensorAmbient, r))
	assert.False(t, cfg.OutOfRange(SensorHumidity, r))
	assert.False(t, cfg.OutOfRange(SensorProbe, &Readings{}))
}

func TestDocumentChange_Presence(t *testing.T) {
	var c DocumentChange
	require.NoError(t, json.Unmarshal([]byte(`{"path":"devices/x","before":null,"after":{"a":1}}`), &c))
	assert.False(t, c.HasBefore())
	assert.True(t, c.HasAfter())
}

func TestTimestamp_MarshalRoundTrip(t *testing.T) {
	ts := NewTimestamp(time.Date(2025, 3, 10, 12, 0, 0, 0, time.FixedZone("BRT", -3*3600)))
	raw, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.JSONEq(t, `"2025-03-10T15:00:00Z"`, string(raw))

	raw, err = json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
	assert.Nil(t, Timestamp{}.Ptr())
}
