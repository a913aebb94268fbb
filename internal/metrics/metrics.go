// Package metrics exposes Prometheus collectors for the telemetry engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sipsmart"

// Metrics groups the engine's collectors.
type Metrics struct {
	Notifications    *prometheus.CounterVec
	DecodeErrors     *prometheus.CounterVec
	DescriptorWrites *prometheus.CounterVec
	Records          *prometheus.CounterVec
	Alerts           prometheus.Counter
	SessionState     prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications received from the sensor, by channel.",
		}, []string{"channel"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Notifications dropped because the payload could not be decoded.",
		}, []string{"channel"}),
		DescriptorWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "descriptor_writes_total",
			Help:      "CCCD writes issued, by result.",
		}, []string{"result"}),
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Measurement records handed to the sync gateway, by result.",
		}, []string{"result"}),
		Alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Low-hydration alerts raised.",
		}),
		SessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "Current session state (0=disconnected ... 6=failed).",
		}),
	}
	reg.MustRegister(m.Notifications, m.DecodeErrors, m.DescriptorWrites, m.Records, m.Alerts, m.SessionState)
	return m
}

func (m *Metrics) Notification(channel string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(channel).Inc()
}

func (m *Metrics) DecodeError(channel string) {
	if m == nil {
		return
	}
	m.DecodeErrors.WithLabelValues(channel).Inc()
}

func (m *Metrics) DescriptorWrite(err error) {
	if m == nil {
		return
	}
	m.DescriptorWrites.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Record(err error) {
	if m == nil {
		return
	}
	m.Records.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Alert() {
	if m == nil {
		return
	}
	m.Alerts.Inc()
}

func (m *Metrics) State(v int) {
	if m == nil {
		return
	}
	m.SessionState.Set(float64(v))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
