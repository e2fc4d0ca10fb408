package metrics

import (
	"github.com/Cloudtempmonitor/templogger/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "templogger_"

// Metrics bundles notifier metrics. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	TransitionsTotal    *prometheus.CounterVec
	NotificationsTotal  *prometheus.CounterVec
	IntegrityFaultTotal prometheus.Counter
	DuplicatesTotal     prometheus.Counter
	PresenceFlipsTotal  *prometheus.CounterVec
	SweepDuration       prometheus.Histogram
	ChangesTotal        *prometheus.CounterVec
}

// New constructs metrics and registers them on reg (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_transitions_total",
				Help: "Alarm state transitions by notification type",
			},
			[]string{"type"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Notification deliveries by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		IntegrityFaultTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "integrity_faults_total",
			Help: "Transitions dropped because a referenced device or unit is missing",
		}),
		DuplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "duplicate_transitions_total",
			Help: "Transitions suppressed by the idempotency guard",
		}),
		PresenceFlipsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "presence_flips_total",
				Help: "Device online/offline flips won by this process",
			},
			[]string{"state"},
		),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "offline_sweep_duration_seconds",
			Help:    "Offline sweep duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		ChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "document_changes_total",
				Help: "Document change events consumed by route and result",
			},
			[]string{"route", "result"},
		),
	}
	reg.MustRegister(
		m.TransitionsTotal,
		m.NotificationsTotal,
		m.IntegrityFaultTotal,
		m.DuplicatesTotal,
		m.PresenceFlipsTotal,
		m.SweepDuration,
		m.ChangesTotal,
	)
	return m
}

// Transition counts one detected transition.
func (m *Metrics) Transition(t models.NotificationType) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(string(t)).Inc()
}

// Delivered adds per-channel delivery counts.
func (m *Metrics) Delivered(ch models.Channel, success, failure int) {
	if m == nil {
		return
	}
	if success > 0 {
		m.NotificationsTotal.WithLabelValues(string(ch), "success").Add(float64(success))
	}
	if failure > 0 {
		m.NotificationsTotal.WithLabelValues(string(ch), "failure").Add(float64(failure))
	}
}

// IntegrityFault counts one dropped transition.
func (m *Metrics) IntegrityFault() {
	if m == nil {
		return
	}
	m.IntegrityFaultTotal.Inc()
}

// Duplicate counts one suppressed transition.
func (m *Metrics) Duplicate() {
	if m == nil {
		return
	}
	m.DuplicatesTotal.Inc()
}

// PresenceFlip counts one won online/offline flip.
func (m *Metrics) PresenceFlip(t models.NotificationType) {
	if m == nil {
		return
	}
	m.PresenceFlipsTotal.WithLabelValues(string(t)).Inc()
}

// ObserveSweep records one sweep pass.
func (m *Metrics) ObserveSweep(seconds float64) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(seconds)
}

// Change counts one consumed change event.
func (m *Metrics) Change(route, result string) {
	if m == nil {
		return
	}
	m.ChangesTotal.WithLabelValues(route, result).Inc()
}
