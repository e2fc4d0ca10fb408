package detector

import (
	"encoding/json"
	"testing"

	"github.com/Cloudtempmonitor/templogger/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want models.AlarmState
	}{
		{"absent", ``, models.AlarmState{}},
		{"null", `null`, models.AlarmState{}},
		{"not an object", `[1,2]`, models.AlarmState{}},
		{"flat", `{"active":true,"kind":"sonda_max","eventId":"E1"}`,
			models.AlarmState{Active: true, Kind: "sonda_max", EventID: "E1"}},
		{"wrapped", `{"estadoAlarmeAtual":{"active":true,"kind":"umidade_max","eventId":"E2"},"other":1}`,
			models.AlarmState{Active: true, Kind: "umidade_max", EventID: "E2"}},
		{"legacy names", `{"ativo":true,"tipo":"sonda_min"}`,
			models.AlarmState{Active: true, Kind: "sonda_min"}},
		{"active wins over ativo", `{"active":false,"ativo":true}`, models.AlarmState{}},
		{"non boolean flag", `{"active":"true","kind":"x"}`, models.AlarmState{Kind: "x"}},
		{"null flag", `{"active":null}`, models.AlarmState{}},
		{"wrapper not an object", `{"estadoAlarmeAtual":"broken","active":true}`, models.AlarmState{Active: true}},
		{"triggered by", `{"active":true,"triggeredBy":["sonda_max","umidade_max"]}`,
			models.AlarmState{Active: true, TriggeredBy: []string{"sonda_max", "umidade_max"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(json.RawMessage(tt.raw)))
		})
	}
}
