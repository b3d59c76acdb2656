package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tickler/internal/domain"
)

// Metrics groups the collectors of one process. A nil *Metrics is a no-op.
type Metrics struct {
	Registry *prometheus.Registry

	Scans      *prometheus.CounterVec
	Alerts     *prometheus.CounterVec
	DuePending prometheus.Gauge
	Tasks      *prometheus.GaugeVec
	Permission *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Scans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickler_scans_total",
				Help: "Due-item scan passes by mode",
			},
			[]string{"mode"},
		),
		Alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickler_alerts_total",
				Help: "Alerts emitted by platform and outcome",
			},
			[]string{"platform", "outcome"},
		),
		DuePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tickler_due_pending",
			Help: "Active tasks with a future due instant still to alert",
		}),
		Tasks: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tickler_tasks",
				Help: "Tasks in the collection by state",
			},
			[]string{"state"},
		),
		Permission: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tickler_notification_permission",
				Help: "1 for the current notification permission state",
			},
			[]string{"state"},
		),
	}
	m.Registry.MustRegister(m.Scans, m.Alerts, m.DuePending, m.Tasks, m.Permission)
	return m
}

func (m *Metrics) ObserveScan(active bool, pending int) {
	if m == nil {
		return
	}
	mode := "idle"
	if active {
		mode = "active"
		m.DuePending.Set(float64(pending))
	}
	m.Scans.WithLabelValues(mode).Inc()
}

func (m *Metrics) ObserveAlert(platform string, delivered bool) {
	if m == nil {
		return
	}
	outcome := "delivered"
	if !delivered {
		outcome = "failed"
	}
	m.Alerts.WithLabelValues(platform, outcome).Inc()
}

func (m *Metrics) ObserveCounts(c domain.Counts) {
	if m == nil {
		return
	}
	m.Tasks.WithLabelValues("active").Set(float64(c.Active))
	m.Tasks.WithLabelValues("completed").Set(float64(c.Completed))
}

func (m *Metrics) ObservePermission(p domain.Permission) {
	if m == nil {
		return
	}
	for _, s := range []domain.Permission{domain.PermissionDefault, domain.PermissionGranted, domain.PermissionDenied} {
		v := 0.0
		if s == p {
			v = 1
		}
		m.Permission.WithLabelValues(string(s)).Set(v)
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
