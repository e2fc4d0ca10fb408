package formatter

import (
	"strings"
	"testing"
	"time"

	"github.com/Cloudtempmonitor/templogger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 { return &f }

func saoPaulo(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	return loc
}

func TestClassifyBanner(t *testing.T) {
	tests := []struct {
		name        string
		reason      string
		triggeredBy []string
		want        Banner
	}{
		{"humidity reason", "umidade_max", nil, BannerHumidity},
		{"humidity uppercase", "UMIDADE ALTA", nil, BannerHumidity},
		{"probe reason", "sonda_max", nil, BannerTemperature},
		{"temperature reason", "Temperatura ambiente", nil, BannerTemperature},
		{"generic reason", "bateria_fraca", nil, BannerGeneric},
		{"empty", "", nil, BannerGeneric},
		{"sub reason decides", "multiplo", []string{"umidade_min"}, BannerHumidity},
		{"mixed cause classifies as humidity", "sonda_max", []string{"umidade_max"}, BannerHumidity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyBanner(tt.reason, tt.triggeredBy))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0 min", FormatDuration(0))
	assert.Equal(t, "0 min", FormatDuration(-5*time.Minute))
	assert.Equal(t, "59 min", FormatDuration(59*time.Minute+59*time.Second))
	assert.Equal(t, "1h 0m", FormatDuration(time.Hour))
	assert.Equal(t, "1h 35m", FormatDuration(95*time.Minute))
	assert.Equal(t, "26h 5m", FormatDuration(26*time.Hour+5*time.Minute))
}

func TestEventDuration(t *testing.T) {
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	end := start.Add(95 * time.Minute)
	now := start.Add(10 * time.Minute)

	text, ongoing := EventDuration(start, &end, now)
	assert.Equal(t, "1h 35m", text)
	assert.False(t, ongoing)

	text, ongoing = EventDuration(start, nil, now)
	assert.Equal(t, "10 min", text)
	assert.True(t, ongoing)

	// 结束早于开始时不出现负值
	before := start.Add(-time.Hour)
	text, _ = EventDuration(start, &before, now)
	assert.Equal(t, "0 min", text)
}

func TestFormatDateTime(t *testing.T) {
	ts := time.Date(2025, 3, 10, 14, 5, 0, 0, time.UTC)
	assert.Equal(t, "10/03/2025 11:05", FormatDateTime(ts, saoPaulo(t)))
	assert.Equal(t, "10/03/2025 14:05", FormatDateTime(ts, nil))
}

func TestFriendlyKind(t *testing.T) {
	assert.Equal(t, "Temperatura da sonda acima do máximo", FriendlyKind("sonda_max"))
	assert.Equal(t, "Umidade abaixo do mínimo", FriendlyKind("UMIDADE_MIN"))
	assert.Equal(t, "falha_sensor", FriendlyKind("falha_sensor"))
	assert.Equal(t, DefaultKindText, FriendlyKind("  "))
}

func TestBuildStartEmail(t *testing.T) {
	details := AlarmDetails{
		InstitutionName: "Hospital Central",
		UnitName:        "Unidade Norte",
		SectorName:      "Farmácia",
		DeviceName:      "Freezer 01",
		DeviceID:        "AA:BB:CC",
		Reason:          "sonda_max",
		Readings: &models.Readings{
			ProbeTemp: floatPtr(9.14),
			Humidity:  floatPtr(0),
		},
		StartedAt: time.Date(2025, 3, 10, 14, 5, 0, 0, time.UTC),
		Location:  saoPaulo(t),
	}

	content, err := BuildStartEmail(details)
	require.NoError(t, err)

	assert.Equal(t, "🚨 [ALARME] Alerta de Temperatura - Freezer 01", content.Subject)
	assert.Contains(t, content.Text, "Alerta de Temperatura")
	assert.Contains(t, content.Text, "Motivo: Temperatura da sonda acima do máximo")
	assert.Contains(t, content.Text, "Início: 10/03/2025 11:05")
	assert.Contains(t, content.Text, "Temperatura da sonda: 9.1°C")
	// 0% 是有效读数
	assert.Contains(t, content.Text, "Umidade: 0.0%")
	assert.NotContains(t, content.Text, "Temperatura ambiente")
	assert.NotContains(t, content.Text, "Leituras indisponíveis")

	assert.Contains(t, content.HTML, "Hospital Central")
	assert.Contains(t, content.HTML, "Farmácia")
	assert.Contains(t, content.HTML, "9.1°C")
}

func TestBuildStartEmail_MissingReadingsUsePlaceholder(t *testing.T) {
	content, err := BuildStartEmail(AlarmDetails{
		DeviceID: "AA:BB:CC",
		Reason:   "umidade_max",
	})
	require.NoError(t, err)

	assert.Equal(t, "🚨 [ALARME] Alerta de Umidade - AA:BB:CC", content.Subject)
	assert.Contains(t, content.Text, "Leituras indisponíveis")
	assert.Contains(t, content.HTML, "Leituras indisponíveis")
}

func TestBuildEndEmail_FinalReadingsFlags(t *testing.T) {
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	end := start.Add(95 * time.Minute)

	content, err := BuildEndEmail(AlarmDetails{
		DeviceName: "Freezer 01",
		DeviceID:   "AA:BB:CC",
		Reason:     "sonda_max",
		Readings: &models.Readings{
			ProbeTemp: floatPtr(7.9),
			Humidity:  floatPtr(75),
		},
		Thresholds: &models.ThresholdConfig{
			Min: models.Thresholds{Probe: floatPtr(2), Humidity: floatPtr(30)},
			Max: models.Thresholds{Probe: floatPtr(8), Humidity: floatPtr(70)},
		},
		StartedAt: start,
		EndedAt:   &end,
		Location:  saoPaulo(t),
	})
	require.NoError(t, err)

	assert.Equal(t, "✅ [NORMALIZADO] Freezer 01", content.Subject)
	assert.Contains(t, content.Text, "Fim: 10/03/2025 10:35")
	assert.Contains(t, content.Text, "Duração: 1h 35m")
	assert.Contains(t, content.Text, "✅ Temperatura da sonda: 7.9°C")
	assert.Contains(t, content.Text, "⚠️ Umidade: 75.0%")
	assert.NotContains(t, content.Text, OngoingLabel)

	assert.Contains(t, content.HTML, "#c0392b")
	assert.Contains(t, content.HTML, "1h 35m")
}

func TestBuildEndEmail_Ongoing(t *testing.T) {
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	content, err := BuildEndEmail(AlarmDetails{
		DeviceID:  "AA:BB:CC",
		StartedAt: start,
		At:        start.Add(12 * time.Minute),
	})
	require.NoError(t, err)

	assert.Contains(t, content.Text, "Duração: 12 min (em andamento)")
	assert.NotContains(t, content.Text, "Fim:")
	assert.Equal(t, 1, strings.Count(content.Text, "Duração:"))
}

func TestBuildEmail_EscapesHTML(t *testing.T) {
	content, err := BuildStartEmail(AlarmDetails{
		DeviceName: "<script>alert(1)</script>",
		DeviceID:   "AA:BB:CC",
	})
	require.NoError(t, err)
	assert.NotContains(t, content.HTML, "<script>")
}

func TestBuildPush(t *testing.T) {
	at := time.UnixMilli(1741615200000)

	msg := BuildPush(PushInput{
		Type:       models.NotificationAlarmStart,
		DeviceID:   "AA:BB:CC",
		DeviceName: "Freezer 01",
		EventID:    "E1",
		Kind:       "sonda_max",
		At:         at,
		LinkPath:   "/device-details.html?mac=",
	})

	assert.Equal(t, "🚨 ALARME: Freezer 01", msg.Title)
	assert.Equal(t, "Temperatura da sonda acima do máximo detectado! Verifique imediatamente.", msg.Body)
	assert.Equal(t, map[string]string{
		"title":     msg.Title,
		"message":   msg.Body,
		"deviceId":  "AA:BB:CC",
		"type":      "alarm_start",
		"timestamp": "1741615200000",
		"eventId":   "E1",
		"kind":      "sonda_max",
		"url":       "/device-details.html?mac=AA:BB:CC",
	}, msg.Data)
}

func TestBuildPush_OtherTypes(t *testing.T) {
	end := BuildPush(PushInput{Type: models.NotificationAlarmEnd, DeviceID: "AA:BB:CC"})
	assert.Equal(t, "✅ Normalizado: AA:BB:CC", end.Title)
	assert.Equal(t, "O dispositivo voltou a operar dentro dos limites.", end.Body)
	assert.NotContains(t, end.Data, "eventId")
	assert.NotContains(t, end.Data, "url")
	assert.NotEmpty(t, end.Data["timestamp"])

	offline := BuildPush(PushInput{Type: models.NotificationOffline, DeviceID: "AA:BB:CC", DeviceName: "Freezer 01"})
	assert.Equal(t, "offline", offline.Data["type"])
	assert.Contains(t, offline.Title, "Offline")

	online := BuildPush(PushInput{Type: models.NotificationOnline, DeviceID: "AA:BB:CC"})
	assert.Equal(t, "online", online.Data["type"])
}
