package metrics

import (
	"testing"

	"github.com/Cloudtempmonitor/templogger/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Transition(models.NotificationAlarmStart)
	m.Transition(models.NotificationAlarmStart)
	m.Delivered(models.ChannelPush, 2, 1)
	m.Delivered(models.ChannelEmail, 0, 0)
	m.PresenceFlip(models.NotificationOffline)
	m.Change("alarm_state", "ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("alarm_start")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("push", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("push", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PresenceFlipsTotal.WithLabelValues("offline")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChangesTotal.WithLabelValues("alarm_state", "ok")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Transition(models.NotificationAlarmEnd)
		m.Delivered(models.ChannelPush, 1, 1)
		m.IntegrityFault()
		m.Duplicate()
		m.PresenceFlip(models.NotificationOnline)
		m.ObserveSweep(0.1)
		m.Change("device", "error")
	})
}
