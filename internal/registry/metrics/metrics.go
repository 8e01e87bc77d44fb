package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the identity registry. All methods are
// nil-safe so tests can pass a nil *Metrics and skip registration.
type Metrics struct {
	Transitions *prometheus.CounterVec
	Rejections  *prometheus.CounterVec
	Registered  prometheus.Gauge
	Paused      prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nymreg_registry_transitions_total",
			Help: "Completed registry state transitions by operation",
		}, []string{"operation"}), // register, logout, relogin, admin_recover

		Rejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nymreg_registry_rejections_total",
			Help: "Rejected registry operations by operation and reason",
		}, []string{"operation", "reason"}),

		Registered: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nymreg_registry_registered_accounts",
			Help: "Current number of registered accounts",
		}),

		Paused: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nymreg_registry_paused",
			Help: "1 while the registry is paused, 0 otherwise",
		}),
	}
}

func (m *Metrics) IncrementTransition(operation string) {
	if m != nil {
		m.Transitions.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) IncrementRejection(operation, reason string) {
	if m != nil {
		m.Rejections.WithLabelValues(operation, reason).Inc()
	}
}

func (m *Metrics) AddRegistered(delta int) {
	if m != nil {
		m.Registered.Add(float64(delta))
	}
}

func (m *Metrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	if paused {
		m.Paused.Set(1)
	} else {
		m.Paused.Set(0)
	}
}
