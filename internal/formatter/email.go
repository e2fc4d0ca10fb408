package formatter

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/Cloudtempmonitor/templogger/internal/models"
)

// AlarmDetails 邮件内容所需的数据
type AlarmDetails struct {
	InstitutionName string
	UnitName        string
	SectorName      string
	DeviceName      string
	DeviceID        string

	Reason      string   // 报警原因代码，如 sonda_max
	TriggeredBy []string // 子原因（可选）

	// Readings 开始通知取开始快照，结束通知取结束快照；nil 时显示占位符
	Readings *models.Readings
	// Thresholds 结束时生效的阈值，用于标记"最终读数"是否仍越限
	Thresholds *models.ThresholdConfig

	StartedAt time.Time
	EndedAt   *time.Time // 结束通知：为空表示事件仍在进行
	At        time.Time  // 通知时间；为零值时取当前时间

	Location *time.Location
}

const (
	colorAlert = "#c0392b"
	colorOK    = "#27ae60"
)

type emailView struct {
	End         bool
	Banner      Banner
	BannerColor string
	Heading     string
	DeviceName  string
	DeviceID    string
	Institution string
	Unit        string
	Sector      string
	Reason      string
	Causes      string
	StartedAt   string
	EndedAt     string
	Duration    string
	Rows        []ReadingRow
	NoReadings  bool
}

var emailTemplate = template.Must(template.New("alarm").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; border: 1px solid #ddd; border-radius: 8px; overflow: hidden;">
    <div style="background: {{.BannerColor}}; color: #fff; padding: 16px 20px;">
      <h2 style="margin: 0;">{{.Heading}}</h2>
    </div>
    <div style="padding: 20px;">
      <p><strong>Dispositivo:</strong> {{.DeviceName}} ({{.DeviceID}})</p>
      {{if .Institution}}<p><strong>Instituição:</strong> {{.Institution}}</p>{{end}}
      {{if .Unit}}<p><strong>Unidade:</strong> {{.Unit}}</p>{{end}}
      {{if .Sector}}<p><strong>Setor:</strong> {{.Sector}}</p>{{end}}
      <p><strong>Motivo:</strong> {{.Reason}}</p>
      {{if .Causes}}<p><strong>Causas:</strong> {{.Causes}}</p>{{end}}
      <p><strong>Início:</strong> {{.StartedAt}}</p>
      {{if .End}}
      {{if .EndedAt}}<p><strong>Fim:</strong> {{.EndedAt}}</p>{{end}}
      <p><strong>Duração:</strong> {{.Duration}}</p>
      <h3>Leituras finais</h3>
      {{range .Rows}}<p style="color: {{if .OutOfRange}}#c0392b{{else}}#27ae60{{end}};">{{if .OutOfRange}}⚠️{{else}}✅{{end}} {{.Label}}: {{.Value}}</p>
      {{end}}
      {{else}}
      <h3>Leituras</h3>
      {{range .Rows}}<p>{{.Label}}: <strong>{{.Value}}</strong></p>
      {{end}}
      {{end}}
      {{if .NoReadings}}<p style="color: #888;">Leituras indisponíveis</p>{{end}}
    </div>
  </div>
</body>
</html>
`))

// BuildStartEmail 报警开始邮件
func BuildStartEmail(d AlarmDetails) (models.EmailContent, error) {
	return buildEmail(d, false)
}

// BuildEndEmail 报警结束邮件（含时长与最终读数）
func BuildEndEmail(d AlarmDetails) (models.EmailContent, error) {
	return buildEmail(d, true)
}

func buildEmail(d AlarmDetails, end bool) (models.EmailContent, error) {
	now := d.At
	if now.IsZero() {
		now = time.Now()
	}
	started := d.StartedAt
	if started.IsZero() {
		started = now
	}

	deviceName := d.DeviceName
	if deviceName == "" {
		deviceName = d.DeviceID
	}

	banner := ClassifyBanner(d.Reason, d.TriggeredBy)
	view := emailView{
		End:         end,
		Banner:      banner,
		BannerColor: colorAlert,
		Heading:     banner.Icon() + " " + banner.Title(),
		DeviceName:  deviceName,
		DeviceID:    d.DeviceID,
		Institution: d.InstitutionName,
		Unit:        d.UnitName,
		Sector:      d.SectorName,
		Reason:      FriendlyKind(d.Reason),
		Causes:      strings.Join(friendlyKinds(d.TriggeredBy), ", "),
		StartedAt:   FormatDateTime(started, d.Location),
	}

	var thresholds *models.ThresholdConfig
	if end {
		thresholds = d.Thresholds
		duration, ongoing := EventDuration(started, d.EndedAt, now)
		if ongoing {
			duration += " (" + OngoingLabel + ")"
		} else {
			view.EndedAt = FormatDateTime(*d.EndedAt, d.Location)
		}
		view.Duration = duration
		view.BannerColor = colorOK
		view.Heading = "✅ Alarme normalizado"
	}
	view.Rows = readingRows(d.Readings, thresholds)
	view.NoReadings = len(view.Rows) == 0

	var subject string
	if end {
		subject = fmt.Sprintf("✅ [NORMALIZADO] %s", deviceName)
	} else {
		subject = fmt.Sprintf("🚨 [ALARME] %s - %s", banner.Title(), deviceName)
	}

	var html bytes.Buffer
	if err := emailTemplate.Execute(&html, view); err != nil {
		return models.EmailContent{}, fmt.Errorf("failed to render email: %w", err)
	}

	return models.EmailContent{
		Subject: subject,
		Text:    renderText(view),
		HTML:    html.String(),
	}, nil
}

func renderText(v emailView) string {
	var b strings.Builder
	fmt.Fprintln(&b, v.Heading)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Dispositivo: %s (%s)\n", v.DeviceName, v.DeviceID)
	if v.Institution != "" {
		fmt.Fprintf(&b, "Instituição: %s\n", v.Institution)
	}
	if v.Unit != "" {
		fmt.Fprintf(&b, "Unidade: %s\n", v.Unit)
	}
	if v.Sector != "" {
		fmt.Fprintf(&b, "Setor: %s\n", v.Sector)
	}
	fmt.Fprintf(&b, "Motivo: %s\n", v.Reason)
	if v.Causes != "" {
		fmt.Fprintf(&b, "Causas: %s\n", v.Causes)
	}
	fmt.Fprintf(&b, "Início: %s\n", v.StartedAt)

	if v.End {
		if v.EndedAt != "" {
			fmt.Fprintf(&b, "Fim: %s\n", v.EndedAt)
		}
		fmt.Fprintf(&b, "Duração: %s\n", v.Duration)
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Leituras finais:")
		for _, row := range v.Rows {
			mark := "✅"
			if row.OutOfRange {
				mark = "⚠️"
			}
			fmt.Fprintf(&b, "%s %s: %s\n", mark, row.Label, row.Value)
		}
	} else {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Leituras:")
		for _, row := range v.Rows {
			fmt.Fprintf(&b, "- %s: %s\n", row.Label, row.Value)
		}
	}
	if v.NoReadings {
		fmt.Fprintln(&b, "Leituras indisponíveis")
	}
	return b.String()
}

func friendlyKinds(kinds []string) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		if strings.TrimSpace(k) == "" {
			continue
		}
		out = append(out, FriendlyKind(k))
	}
	return out
}
