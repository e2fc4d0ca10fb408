package models

// Readings 传感器读数快照
type Readings struct {
	ProbeTemp   *float64  `json:"temperatura,omitempty"`         // 外接探头温度 °C
	AmbientTemp *float64  `json:"temperaturaAmbiente,omitempty"` // 环境温度 °C
	Humidity    *float64  `json:"umidade,omitempty"`             // 湿度 %
	Timestamp   Timestamp `json:"timestamp"`
}

// Sanitized 去掉设备上报的哨兵值（探头/环境 <= -100°C，湿度 < 0% 表示无读数）
func (r *Readings) Sanitized() *Readings {
	if r == nil {
		return nil
	}
	out := *r
	if out.ProbeTemp != nil && *out.ProbeTemp <= -100 {
		out.ProbeTemp = nil
	}
	if out.AmbientTemp != nil && *out.AmbientTemp <= -100 {
		out.AmbientTemp = nil
	}
	if out.Humidity != nil && *out.Humidity < 0 {
		out.Humidity = nil
	}
	return &out
}

// Thresholds 各通道的阈值（nil 表示未配置）
type Thresholds struct {
	Probe    *float64 `json:"sonda,omitempty"`
	Ambient  *float64 `json:"temperaturaAmbiente,omitempty"`
	Humidity *float64 `json:"umidade,omitempty"`
}

// ThresholdConfig 最小/最大阈值配置
type ThresholdConfig struct {
	Min Thresholds `json:"alarmeMin"`
	Max Thresholds `json:"alarmeMax"`
}

// Sensor 传感器通道
type Sensor string

const (
	SensorProbe    Sensor = "sonda"
	SensorAmbient  Sensor = "temperaturaAmbiente"
	SensorHumidity Sensor = "umidade"
)

// Value 取某通道读数
func (r *Readings) Value(s Sensor) *float64 {
	if r == nil {
		return nil
	}
	switch s {
	case SensorProbe:
		return r.ProbeTemp
	case SensorAmbient:
		return r.AmbientTemp
	case SensorHumidity:
		return r.Humidity
	}
	return nil
}

// Bounds 取某通道的最小/最大阈值
func (c *ThresholdConfig) Bounds(s Sensor) (lo, hi *float64) {
	if c == nil {
		return nil, nil
	}
	switch s {
	case SensorProbe:
		return c.Min.Probe, c.Max.Probe
	case SensorAmbient:
		return c.Min.Ambient, c.Max.Ambient
	case SensorHumidity:
		return c.Min.Humidity, c.Max.Humidity
	}
	return nil, nil
}

// OutOfRange 判断该通道读数是否仍超出其自身阈值；读数缺失或阈值未配置时为 false
func (c *ThresholdConfig) OutOfRange(s Sensor, r *Readings) bool {
	v := r.Value(s)
	if v == nil {
		return false
	}
	lo, hi := c.Bounds(s)
	if lo != nil && *v < *lo {
		return true
	}
	if hi != nil && *v > *hi {
		return true
	}
	return false
}
