package formatter

import (
	"fmt"
	"time"

	"github.com/Cloudtempmonitor/templogger/internal/models"
)

// DateTimeLayout pt-BR 日期时间（dd/mm/yyyy HH:MM）
const DateTimeLayout = "02/01/2006 15:04"

// OngoingLabel 事件尚未结束时的时长标注
const OngoingLabel = "em andamento"

// FormatDateTime 在指定时区渲染时间；loc 为 nil 时按 UTC
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateTimeLayout)
}

// FormatDuration 整分钟时长：< 60 为 "N min"，否则 "Hh Mm"；负值按 0 处理
func FormatDuration(d time.Duration) string {
	minutes := int64(d / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// EventDuration 由事件起止时间计算时长文本；end 为空时以 now 为临时终点，ongoing 为 true
func EventDuration(start time.Time, end *time.Time, now time.Time) (text string, ongoing bool) {
	stop := now
	if end != nil && !end.IsZero() {
		stop = *end
	} else {
		ongoing = true
	}
	if start.IsZero() {
		return FormatDuration(0), ongoing
	}
	return FormatDuration(stop.Sub(start)), ongoing
}

// FormatTemperature 温度，一位小数
func FormatTemperature(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f°C", *v)
}

// FormatHumidity 湿度，一位小数
func FormatHumidity(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f%%", *v)
}

// ReadingRow 一行读数
type ReadingRow struct {
	Sensor models.Sensor
	Label  string
	Value  string
	// OutOfRange 仅用于结束通知的"最终读数"
	OutOfRange bool
}

var sensorLabels = []struct {
	sensor models.Sensor
	label  string
}{
	{models.SensorProbe, "Temperatura da sonda"},
	{models.SensorAmbient, "Temperatura ambiente"},
	{models.SensorHumidity, "Umidade"},
}

// readingRows 只输出有值的通道（0 也是有效读数）
func readingRows(r *models.Readings, thresholds *models.ThresholdConfig) []ReadingRow {
	if r == nil {
		return nil
	}
	var rows []ReadingRow
	for _, s := range sensorLabels {
		v := r.Value(s.sensor)
		if v == nil {
			continue
		}
		row := ReadingRow{Sensor: s.sensor, Label: s.label}
		if s.sensor == models.SensorHumidity {
			row.Value = FormatHumidity(v)
		} else {
			row.Value = FormatTemperature(v)
		}
		row.OutOfRange = thresholds.OutOfRange(s.sensor, r)
		rows = append(rows, row)
	}
	return rows
}
